package async

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

// Poller periodically enqueues claimable bills for both passes.
type Poller struct {
	bills    repository.BillRepository
	queue    Queue
	interval time.Duration
	limit    int
	logger   *slog.Logger
}

func NewPoller(bills repository.BillRepository, queue Queue, interval time.Duration, limit int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{bills: bills, queue: queue, interval: interval, limit: limit, logger: logger}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		if n, err := p.Poll(ctx); err != nil {
			p.logger.Warn("poller.poll.failed", "err", err)
		} else if n > 0 {
			p.logger.Info("poller.enqueued", "jobs", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Poll enqueues one round of SCANNED bills for the first pass and INVALID
// bills for the second pass, returning how many jobs were submitted.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	rounds := []struct {
		status constants.BillStatus
		pass   constants.Pass
	}{
		{constants.StatusScanned, constants.FirstPass},
		{constants.StatusInvalid, constants.SecondPass},
	}
	n := 0
	for _, r := range rounds {
		ids, err := p.bills.ListClaimable(ctx, r.status, nil, p.limit)
		if err != nil {
			return n, err
		}
		for _, id := range ids {
			if err := p.queue.Enqueue(ctx, Job{BillID: id, Pass: r.pass}); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
