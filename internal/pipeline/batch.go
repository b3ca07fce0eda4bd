package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

// BillProcessor is the per-bill step a Batch drives.
type BillProcessor interface {
	ProcessBill(ctx context.Context, billID string, pass constants.Pass) (Outcome, error)
}

// Batch runs one pass over every claimable bill with bounded concurrency.
type Batch struct {
	proc    BillProcessor
	bills   repository.BillRepository
	workers int
	log     *slog.Logger
}

func NewBatch(proc BillProcessor, bills repository.BillRepository, workers int, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Batch{proc: proc, bills: bills, workers: workers, log: logger}
}

// Run processes up to limit bills (0 means all) in the pass's input status.
// Per-bill errors and panics are counted, never returned; the returned error
// is a listing failure or the context's cancellation.
func (r *Batch) Run(ctx context.Context, pass constants.Pass, limit int) (Snapshot, error) {
	log := r.log.With("pass", int(pass))
	ids, err := r.bills.ListClaimable(ctx, statusFor(pass), nil, limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list bills: %w", err)
	}
	log.Info("pipeline.batch.start", "bills", len(ids), "workers", r.workers)

	stats := NewStats()
	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	submitted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			log.Warn("pipeline.batch.cancelled", "submitted", submitted, "remaining", len(ids)-submitted)
			break
		}
		submitted++
		g.Go(func() error {
			r.runOne(ctx, log, stats, id, pass)
			return nil
		})
	}
	_ = g.Wait()

	snap := stats.Snapshot()
	snap.LogSummary(log, "pipeline.batch.done")
	return snap, ctx.Err()
}

func (r *Batch) runOne(ctx context.Context, log *slog.Logger, stats *Stats, billID string, pass constants.Pass) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			stats.Record(Outcome{BillID: billID, Pass: pass}, fmt.Errorf("panic: %v", v), time.Since(start))
			log.Error("pipeline.bill.panic", "bill_id", billID, "panic", v, "stack", string(debug.Stack()))
		}
	}()

	out, err := r.proc.ProcessBill(ctx, billID, pass)
	if errors.Is(err, ErrSkipped) {
		stats.RecordSkipped()
		log.Debug("pipeline.bill.skipped", "bill_id", billID)
		return
	}
	stats.Record(out, err, time.Since(start))
}
