package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/provider-bills/internal/common"
)

// Retrying wraps an Extractor with exponential backoff on retryable errors.
type Retrying struct {
	inner Extractor
	cfg   common.RetryConfig
	log   *slog.Logger
}

// NewRetrying retries retryable ExtractionErrors up to cfg.MaxRetries times.
func NewRetrying(inner Extractor, cfg common.RetryConfig, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ShouldRetry = IsRetryable
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("llm.extract.retry", "attempt", attempt+1, "delay_ms", delay.Milliseconds(), "code", ErrorCode(err), "error", err)
	}
	return &Retrying{inner: inner, cfg: cfg, log: logger}
}

func (r *Retrying) Extract(ctx context.Context, req Request) (*Result, error) {
	return common.WithRetry(ctx, r.cfg, func(ctx context.Context) (*Result, error) {
		return r.inner.Extract(ctx, req)
	})
}
