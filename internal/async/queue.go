package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/provider-bills/constants"
)

// Job asks a worker to run one pass over one bill.
type Job struct {
	BillID      string
	Pass        constants.Pass
	SubmittedAt time.Time
	RequestID   string
}

type jobKey struct {
	billID string
	pass   constants.Pass
}

func (j Job) key() jobKey { return jobKey{j.BillID, j.Pass} }

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
