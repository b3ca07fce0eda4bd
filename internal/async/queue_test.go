package async

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/pipeline"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu      sync.Mutex
	seen    []Job
	release chan struct{}
}

func (r *recorder) ProcessBill(ctx context.Context, billID string, pass constants.Pass) (pipeline.Outcome, error) {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.seen = append(r.seen, Job{BillID: billID, Pass: pass, RequestID: common.RequestIDFromContext(ctx)})
	r.mu.Unlock()
	if billID == "boom" {
		panic("worker must survive")
	}
	return pipeline.Outcome{BillID: billID, Pass: pass, Status: constants.StatusValid}, nil
}

func (r *recorder) jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.seen...)
}

func TestProcessorQueue_ProcessesAndDrains(t *testing.T) {
	rec := &recorder{}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "depth"})
	q := NewProcessorQueue(rec, quiet, WithWorkers(2), WithQueueSize(4), WithDepthGauge(gauge))

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{BillID: "a", Pass: constants.FirstPass}))
	require.NoError(t, q.Enqueue(ctx, Job{BillID: "boom", Pass: constants.FirstPass}))
	require.NoError(t, q.Enqueue(ctx, Job{BillID: "b", Pass: constants.SecondPass}))
	q.Shutdown(ctx)

	jobs := rec.jobs()
	assert.Len(t, jobs, 3)
	for _, j := range jobs {
		assert.NotEmpty(t, j.RequestID)
	}
	assert.Zero(t, q.Pending())
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))

	// Closed queues drop silently.
	require.NoError(t, q.Enqueue(ctx, Job{BillID: "late", Pass: constants.FirstPass}))
	assert.Len(t, rec.jobs(), 3)
}

func TestProcessorQueue_DropsDuplicates(t *testing.T) {
	rec := &recorder{release: make(chan struct{})}
	q := NewProcessorQueue(rec, quiet, WithWorkers(1))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{BillID: "a", Pass: constants.FirstPass}))
	require.NoError(t, q.Enqueue(ctx, Job{BillID: "a", Pass: constants.FirstPass}))
	require.NoError(t, q.Enqueue(ctx, Job{BillID: "a", Pass: constants.SecondPass}))
	assert.Equal(t, 2, q.Pending())

	close(rec.release)
	q.Shutdown(ctx)
	assert.Len(t, rec.jobs(), 2)
}

func TestProcessorQueue_RejectsUnknownPass(t *testing.T) {
	q := NewProcessorQueue(&recorder{}, quiet)
	defer q.Shutdown(context.Background())
	err := q.Enqueue(context.Background(), Job{BillID: "a", Pass: 3})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

type captureQueue struct{ jobs []Job }

func (c *captureQueue) Enqueue(_ context.Context, job Job) error {
	c.jobs = append(c.jobs, job)
	return nil
}
func (c *captureQueue) Shutdown(context.Context) {}

func TestPoller_EnqueuesBothPasses(t *testing.T) {
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bills.db"), quiet)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	bills := repository.NewBillRepository(db, quiet)

	scanned := &entity.Bill{SourceFile: "a (Page 1)"}
	require.NoError(t, bills.Create(ctx, scanned))
	invalid := &entity.Bill{Status: constants.StatusInvalid, Action: constants.ActionToValidate}
	require.NoError(t, bills.Create(ctx, invalid))
	valid := &entity.Bill{Status: constants.StatusValid, Action: constants.ActionToMap}
	require.NoError(t, bills.Create(ctx, valid))

	cq := &captureQueue{}
	n, err := NewPoller(bills, cq, time.Second, 0, quiet).Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []Job{
		{BillID: scanned.ID, Pass: constants.FirstPass},
		{BillID: invalid.ID, Pass: constants.SecondPass},
	}, cq.jobs)
}
