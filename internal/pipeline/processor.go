// Package pipeline runs the extraction passes over leased bills: render the
// page, pick a strategy, extract, store line items, validate, and commit the
// new status in one transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
	"github.com/joseph-ayodele/provider-bills/internal/metrics"
	"github.com/joseph-ayodele/provider-bills/internal/reconcile"
	"github.com/joseph-ayodele/provider-bills/internal/render"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
	"github.com/joseph-ayodele/provider-bills/internal/storage"
	"github.com/joseph-ayodele/provider-bills/internal/validation"
)

// ErrSkipped means the bill was leased by someone else or already moved on.
var ErrSkipped = errors.New("bill skipped")

// Config holds per-bill behaviour.
type Config struct {
	LeaseDuration  time.Duration
	ProcessTimeout time.Duration
	EstimateSkew   bool
	StorageRetry   common.RetryConfig
}

// ConfigFrom adapts the pipeline section of the app config.
func ConfigFrom(c common.PipelineConfig) Config {
	return Config{
		LeaseDuration:  c.LeaseDuration,
		ProcessTimeout: c.ProcessTimeout,
		EstimateSkew:   c.EstimateSkew,
	}
}

// Deps are the collaborators a Processor drives.
type Deps struct {
	DB        *repository.DB
	Bills     repository.BillRepository
	Lines     repository.LineItemRepository
	Runs      repository.ExtractionRunRepository
	Store     storage.ObjectStore
	Renderer  render.Renderer
	Extractor llm.Extractor
	Metrics   *metrics.Metrics // optional
}

// Processor handles one bill at a time; it is safe for concurrent use.
type Processor struct {
	Deps
	cfg   Config
	rec   *reconcile.Reconciler
	log   *slog.Logger
	stats *Stats
}

func NewProcessor(deps Deps, cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 10 * time.Minute
	}
	if cfg.StorageRetry.MaxRetries == 0 {
		cfg.StorageRetry = common.RetryConfig{
			MaxRetries:     2,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			BackoffFactor:  2,
			JitterFraction: 0.2,
		}
	}
	cfg.StorageRetry.ShouldRetry = storage.IsTransient
	return &Processor{
		Deps:  deps,
		cfg:   cfg,
		rec:   reconcile.NewReconciler(deps.Lines, logger),
		log:   logger,
		stats: NewStats(),
	}
}

// Stats returns the counters accumulated since the processor was built.
func (p *Processor) Stats() *Stats { return p.stats }

// Outcome is what happened to one bill.
type Outcome struct {
	BillID   string
	Pass     constants.Pass
	Status   constants.BillStatus
	Action   constants.BillAction
	Strategy constants.Strategy
	Quality  constants.QualityTier
	Message  string
}

// statusFor is the status a bill must be in to be picked up by pass.
func statusFor(pass constants.Pass) constants.BillStatus {
	if pass == constants.SecondPass {
		return constants.StatusInvalid
	}
	return constants.StatusScanned
}

// ProcessBill leases billID and runs pass over it. ErrSkipped means another
// worker holds it or it is no longer in the pass's input status.
func (p *Processor) ProcessBill(ctx context.Context, billID string, pass constants.Pass) (Outcome, error) {
	start := time.Now()
	ctx = common.WithBillID(ctx, billID)
	if common.RequestIDFromContext(ctx) == "" {
		ctx = common.WithRequestID(ctx, uuid.NewString())
	}
	log := common.LoggerFrom(ctx, p.log).With("pass", int(pass))

	token, ok, err := p.Bills.Claim(ctx, billID, statusFor(pass), p.cfg.LeaseDuration)
	if err != nil {
		return Outcome{BillID: billID, Pass: pass}, err
	}
	if !ok {
		p.stats.RecordSkipped()
		p.Metrics.ObserveBill(strconv.Itoa(int(pass)), "skipped")
		return Outcome{BillID: billID, Pass: pass}, ErrSkipped
	}
	// Save clears the lease; releasing covers the paths that never save.
	defer func() {
		if err := p.Bills.Release(context.WithoutCancel(ctx), billID, token); err != nil {
			log.Warn("pipeline.bill.release_failed", "err", err)
		}
	}()

	ctx, cancel := common.WithTimeout(ctx, p.cfg.ProcessTimeout)
	defer cancel()

	log.Info("pipeline.bill.start")
	out, err := p.process(ctx, log, billID, token, pass)
	elapsed := time.Since(start)
	p.stats.Record(out, err, elapsed)
	p.Metrics.ObserveBill(strconv.Itoa(int(pass)), outcomeLabel(out, err))
	if err != nil {
		log.Error("pipeline.bill.failed", "elapsed_ms", elapsed.Milliseconds(), "err", err)
		return out, err
	}
	log.Info("pipeline.bill.done", "status", out.Status, "action", out.Action,
		"strategy", out.Strategy, "quality", out.Quality, "elapsed_ms", elapsed.Milliseconds())
	return out, nil
}

func (p *Processor) process(ctx context.Context, log *slog.Logger, billID, token string, pass constants.Pass) (Outcome, error) {
	out := Outcome{BillID: billID, Pass: pass}
	b, err := p.Bills.GetClaimed(ctx, billID, token)
	if err != nil {
		return out, err
	}

	pdf, pdfKey, err := p.fetchPDF(ctx, b, pass)
	if err != nil {
		return p.notExtracted(ctx, log, b, token, out, constants.CategoryUnknown, fmt.Errorf("fetch pdf: %w", err))
	}

	page, err := p.prepare(ctx, log, b, pdf, pass)
	if err != nil {
		return p.notExtracted(ctx, log, b, token, out, constants.CategoryImageQuality, err)
	}
	out.Strategy, out.Quality = page.plan.Strategy, page.metrics.Tier

	res, err := p.extract(ctx, log, b, page)
	if err != nil {
		if aborted(ctx, err) {
			// The deferred release puts the bill back as it was.
			log.Warn("pipeline.bill.aborted", "err", err)
			return out, err
		}
		return p.fail(ctx, b, token, out, err)
	}

	if err := p.commit(ctx, log, b, token, pass, res, &out); err != nil {
		return out, err
	}
	p.publish(ctx, log, b.ID, pass, pdfKey, res)
	return out, nil
}

// notExtracted records a fetch or render failure as a failed run. The first
// pass leaves the bill SCANNED so a later run can pick it up; the second pass
// fails the bill.
func (p *Processor) notExtracted(ctx context.Context, log *slog.Logger, b *entity.Bill, token string,
	out Outcome, category constants.ErrorCategory, cause error) (Outcome, error) {
	p.recordFailedRun(ctx, log, b.ID, out.Pass, category, cause)
	if aborted(ctx, cause) {
		log.Warn("pipeline.bill.aborted", "err", cause)
		return out, cause
	}
	if out.Pass == constants.SecondPass {
		return p.fail(ctx, b, token, out, cause)
	}
	return out, cause
}

// recordFailedRun writes a run that failed before the extractor was called.
func (p *Processor) recordFailedRun(ctx context.Context, log *slog.Logger, billID string, pass constants.Pass,
	category constants.ErrorCategory, cause error) {
	ctx = context.WithoutCancel(ctx)
	run := &entity.ExtractionRun{BillID: billID, Pass: int(pass)}
	if err := p.Runs.Start(ctx, run); err != nil {
		log.Warn("pipeline.run.start_failed", "err", err)
		return
	}
	if err := p.Runs.FinishFailure(ctx, run.ID, category, runMessage(ctx, cause)); err != nil {
		log.Warn("pipeline.run.finish_failed", "run_id", run.ID, "err", err)
	}
}

// aborted reports whether err is the caller cancelling rather than the bill failing.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

// runMessage is the error_message of a failed run.
func runMessage(ctx context.Context, err error) string {
	if aborted(ctx, err) {
		return "aborted: " + err.Error()
	}
	return err.Error()
}

// fetchPDF reads the page PDF. The second pass prefers the archived copy.
func (p *Processor) fetchPDF(ctx context.Context, b *entity.Bill, pass constants.Pass) ([]byte, string, error) {
	source := sourceKey(b)
	keys := []string{source}
	if pass == constants.SecondPass {
		keys = []string{constants.ArchiveKey(b.ID + ".pdf"), source}
	}
	type got struct {
		data []byte
		key  string
	}
	r, err := common.WithRetry(ctx, p.cfg.StorageRetry, func(ctx context.Context) (got, error) {
		data, key, err := storage.GetFirst(ctx, p.Store, keys...)
		return got{data, key}, err
	})
	return r.data, r.key, err
}

// sourceKey is where intake stored the bill's page.
func sourceKey(b *entity.Bill) string {
	if strings.HasPrefix(b.SourceFile, constants.PDFPrefix) {
		return b.SourceFile
	}
	return constants.PDFKey(b.ID)
}

func (p *Processor) extract(ctx context.Context, log *slog.Logger, b *entity.Bill, page *preparedPage) (*llm.Result, error) {
	run := &entity.ExtractionRun{
		BillID:     b.ID,
		Pass:       int(page.plan.Pass),
		Strategy:   string(page.plan.Strategy),
		Quality:    string(page.metrics.Tier),
		Contrast:   page.metrics.Contrast,
		Brightness: page.metrics.Brightness,
		Skew:       page.metrics.Skew,
	}
	if err := p.Runs.Start(ctx, run); err != nil {
		return nil, err
	}

	req := llm.Request{
		BillID:      b.ID,
		Pass:        page.plan.Pass,
		Strategy:    page.plan.Strategy,
		Image:       page.png,
		ZoneImage:   page.zonePNG,
		ZoneMap:     page.zoneMap,
		Temperature: page.plan.Temperature,
	}
	if page.plan.Pass == constants.SecondPass {
		req.PriorError = b.LastErrorString()
	}

	start := time.Now()
	res, err := p.Extractor.Extract(ctx, req)
	p.Metrics.ObserveExtraction(string(page.plan.Strategy), llm.ErrorCode(err), time.Since(start))
	done := context.WithoutCancel(ctx)
	if err != nil {
		if ferr := p.Runs.FinishFailure(done, run.ID, runCategory(err), runMessage(ctx, err)); ferr != nil {
			log.Warn("pipeline.run.finish_failed", "run_id", run.ID, "err", ferr)
		}
		return nil, fmt.Errorf("extract: %w", err)
	}
	if ferr := p.Runs.FinishSuccess(done, run.ID, res.Model, res.Raw); ferr != nil {
		log.Warn("pipeline.run.finish_failed", "run_id", run.ID, "err", ferr)
	}
	for _, w := range res.Warnings {
		log.Warn("pipeline.extract.warning", "warning", w)
	}
	log.Info("llm.extract.ok", "model", res.Model, "service_lines", len(res.Fields.ServiceLines),
		"confidence", res.Confidence, "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

func runCategory(err error) constants.ErrorCategory {
	switch llm.ErrorCode(err) {
	case llm.CodeRateLimited, llm.CodeAPIError, llm.CodeTimeout:
		return constants.CategoryAPIError
	}
	return constants.CategoryUnknown
}

// commit stores the extraction and the validated status atomically.
func (p *Processor) commit(ctx context.Context, log *slog.Logger, b *entity.Bill, token string,
	pass constants.Pass, res *llm.Result, out *Outcome) error {
	return p.DB.InTx(ctx, func(ctx context.Context) error {
		cur, err := p.Bills.GetClaimed(ctx, b.ID, token)
		if err != nil {
			return err
		}

		if pass == constants.SecondPass {
			stored, err := p.Lines.ListByBill(ctx, cur.ID)
			if err != nil {
				return err
			}
			diff := reconcile.Compute(cur, stored, res.Fields, log)
			if diff.Empty() {
				log.Info("reconcile.no_changes")
			} else {
				reconcile.ApplyHeader(cur, res.Fields, log)
				if err := p.rec.Apply(ctx, cur.ID, diff); err != nil {
					return err
				}
			}
		} else {
			reconcile.ApplyHeader(cur, res.Fields, log)
			if err := p.rec.Replace(ctx, cur.ID, reconcile.LinesFromFields(cur.ID, res.Fields, log)); err != nil {
				return err
			}
		}

		lines, err := p.Lines.ListByBill(ctx, cur.ID)
		if err != nil {
			return err
		}
		v := validation.Validate(cur, lines, pass)
		v.Apply(cur)
		if err := p.Bills.Save(ctx, cur); err != nil {
			return err
		}
		out.Status, out.Action, out.Message = v.Status, v.Action, v.Message
		*b = *cur
		return nil
	})
}

// fail records an extraction-level failure on the bill.
func (p *Processor) fail(ctx context.Context, b *entity.Bill, token string, out Outcome, cause error) (Outcome, error) {
	msg := failureMessage(out.Pass, cause)
	err := p.DB.InTx(context.WithoutCancel(ctx), func(ctx context.Context) error {
		cur, err := p.Bills.GetClaimed(ctx, b.ID, token)
		if err != nil {
			return err
		}
		cur.LastError = &msg
		if out.Pass == constants.SecondPass {
			cur.Status = constants.StatusInvalid2
		} else {
			cur.Status = constants.StatusInvalid
		}
		if !constants.IsValidPair(cur.Status, cur.Action) {
			cur.Action = constants.ActionToValidate
		}
		if err := p.Bills.Save(ctx, cur); err != nil {
			return err
		}
		out.Status, out.Action, out.Message = cur.Status, cur.Action, msg
		return nil
	})
	if err != nil {
		return out, errors.Join(cause, err)
	}
	return out, cause
}

// publish writes the extraction artifact and, after the first pass, archives
// the page. The bill is already committed, so failures are only logged.
func (p *Processor) publish(ctx context.Context, log *slog.Logger, billID string, pass constants.Pass, pdfKey string, res *llm.Result) {
	ctx = context.WithoutCancel(ctx)
	artifact, err := artifactJSON(res)
	if err != nil {
		log.Warn("pipeline.artifact.encode_failed", "err", err)
	} else {
		key := constants.JSONKey(billID, pass)
		_, err := common.WithRetry(ctx, p.cfg.StorageRetry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.Store.Put(ctx, key, artifact)
		})
		if err != nil {
			log.Warn("pipeline.artifact.put_failed", "key", key, "err", err)
		}
	}

	if pass != constants.FirstPass {
		return
	}
	dst := constants.ArchiveKey(pdfKey)
	_, err = common.WithRetry(ctx, p.cfg.StorageRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Store.Move(ctx, pdfKey, dst)
	})
	if err != nil {
		log.Warn("pipeline.archive.failed", "src", pdfKey, "dst", dst, "err", err)
		return
	}
	log.Debug("pipeline.archived", "src", pdfKey, "dst", dst)
}

// failureMessage is the last_error of a failed attempt. First-pass messages
// name the failure kind so the second pass can classify them.
func failureMessage(pass constants.Pass, cause error) string {
	if pass == constants.SecondPass {
		return fmt.Sprintf("Second pass processing failed: %v", cause)
	}
	if llm.ErrorCode(cause) == llm.CodeMalformedResponse {
		return fmt.Sprintf("Extraction failed (malformed response): %v", cause)
	}
	return fmt.Sprintf("Extraction failed (API error): %v", cause)
}

func outcomeLabel(out Outcome, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "aborted"
	case err != nil:
		return "failed"
	}
	return strings.ToLower(string(out.Status))
}
