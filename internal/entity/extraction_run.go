package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractionRun records one extraction attempt against a bill.
type ExtractionRun struct {
	ID            uuid.UUID       `json:"id"`
	BillID        string          `json:"bill_id"`
	Pass          int             `json:"pass"`
	Strategy      string          `json:"strategy"`
	Quality       string          `json:"quality"`
	Contrast      float64         `json:"contrast"`
	Brightness    float64         `json:"brightness"`
	Skew          float64         `json:"skew"`
	ErrorCategory *string         `json:"error_category,omitempty"`
	Status        string          `json:"status"`
	Model         *string         `json:"model,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	RawJSON       json.RawMessage `json:"raw_json,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}
