package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/pipeline"
)

// ProcessorQueue feeds jobs to a fixed pool of workers. A bill/pass pair is
// held at most once between Enqueue and the end of its processing.
type ProcessorQueue struct {
	proc    pipeline.BillProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	depth   prometheus.Gauge

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	closed  bool
	pending map[jobKey]struct{}
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithDepthGauge reports the number of queued and in-flight jobs.
func WithDepthGauge(g prometheus.Gauge) Option {
	return func(q *ProcessorQueue) { q.depth = g }
}

func NewProcessorQueue(proc pipeline.BillProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
		pending: map[jobKey]struct{}{},
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Info("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	defer q.done(job)
	log := q.logger.With("worker_id", workerID, "bill_id", job.BillID, "pass", int(job.Pass))
	defer func() {
		if v := recover(); v != nil {
			log.Error("queue.job.panic", "panic", v)
		}
	}()

	ctx := common.WithRequestID(context.Background(), job.RequestID)
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	out, err := q.proc.ProcessBill(ctx, job.BillID, job.Pass)
	switch {
	case errors.Is(err, pipeline.ErrSkipped):
		log.Debug("queue.job.skipped")
	case err != nil:
		log.Error("queue.job.failed", "err", err, "waited_ms", time.Since(job.SubmittedAt).Milliseconds())
	default:
		log.Info("queue.job.done", "status", out.Status, "action", out.Action)
	}
}

func (q *ProcessorQueue) done(job Job) {
	q.mu.Lock()
	delete(q.pending, job.key())
	n := len(q.pending)
	q.mu.Unlock()
	q.setDepth(n)
}

func (q *ProcessorQueue) setDepth(n int) {
	if q.depth != nil {
		q.depth.Set(float64(n))
	}
}

// Enqueue hands job to the workers, blocking while the buffer is full. Jobs
// for a bill/pass already queued or running are dropped.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.RequestID == "" {
		job.RequestID = uuid.NewString()
	}
	if job.Pass != constants.FirstPass && job.Pass != constants.SecondPass {
		return common.NewAppError("INVALID_PASS", "pass must be 1 or 2", common.ErrInvalidInput)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "bill_id", job.BillID)
		return nil
	}
	if _, dup := q.pending[job.key()]; dup {
		q.logger.Debug("queue.enqueue.duplicate", "bill_id", job.BillID, "pass", int(job.Pass))
		return nil
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue.enqueue.backpressure", "bill_id", job.BillID)
		select {
		case q.ch <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.pending[job.key()] = struct{}{}
	q.setDepth(len(q.pending))
	q.logger.Debug("queue.enqueued", "bill_id", job.BillID, "pass", int(job.Pass))
	return nil
}

// Pending reports queued plus in-flight jobs.
func (q *ProcessorQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
