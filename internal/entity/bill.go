package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/provider-bills/constants"
)

// Bill is one scanned claim form page and its extracted header fields.
type Bill struct {
	ID                     string               `json:"id"`
	ClaimID                *string              `json:"claim_id,omitempty"`
	UploadedBy             string               `json:"uploaded_by"`
	SourceFile             string               `json:"source_file"`
	Status                 constants.BillStatus `json:"status"`
	Action                 constants.BillAction `json:"action"`
	LastError              *string              `json:"last_error,omitempty"`
	PatientName            string               `json:"patient_name"`
	PatientDOB             string               `json:"patient_dob"`
	PatientZip             string               `json:"patient_zip"`
	BillingProviderName    string               `json:"billing_provider_name"`
	BillingProviderAddress string               `json:"billing_provider_address"`
	BillingProviderTIN     string               `json:"billing_provider_tin"`
	BillingProviderNPI     string               `json:"billing_provider_npi"`
	TotalCharge            decimal.NullDecimal  `json:"total_charge"`
	PatientAccountNo       string               `json:"patient_account_no"`
	BillPaid               string               `json:"bill_paid"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// LastErrorString returns last_error or "".
func (b *Bill) LastErrorString() string {
	if b.LastError == nil {
		return ""
	}
	return *b.LastError
}

// LineItem is one service line of a bill.
type LineItem struct {
	ID               int64               `json:"id"`
	BillID           string              `json:"provider_bill_id"`
	CPTCode          string              `json:"cpt_code"`
	Modifier         string              `json:"modifier"`
	Units            int                 `json:"units"`
	ChargeAmount     decimal.NullDecimal `json:"charge_amount"`
	AllowedAmount    decimal.NullDecimal `json:"allowed_amount"`
	Decision         string              `json:"decision"`
	ReasonCode       string              `json:"reason_code"`
	DateOfService    string              `json:"date_of_service"`
	PlaceOfService   string              `json:"place_of_service"`
	DiagnosisPointer string              `json:"diagnosis_pointer"`
}

// DecisionPending is the decision given to freshly extracted lines.
const DecisionPending = "pending"

// SumCharges adds every non-null charge.
func SumCharges(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.ChargeAmount.Valid {
			sum = sum.Add(it.ChargeAmount.Decimal)
		}
	}
	return sum
}
