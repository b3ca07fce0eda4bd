package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
	"github.com/joseph-ayodele/provider-bills/internal/llm/openai"
	"github.com/joseph-ayodele/provider-bills/internal/llm/vertex"
	"github.com/joseph-ayodele/provider-bills/internal/pipeline"
	"github.com/joseph-ayodele/provider-bills/internal/render"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
	"github.com/joseph-ayodele/provider-bills/internal/storage"
)

// app is the set of collaborators a command needs. close releases them in
// reverse order of acquisition.
type app struct {
	db     *repository.DB
	bills  repository.BillRepository
	lines  repository.LineItemRepository
	orders repository.OrderRepository
	runs   repository.ExtractionRunRepository
	store  storage.ObjectStore

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp opens the database and the object store.
func openApp(ctx context.Context, cfg *common.Config, log *slog.Logger) (*app, error) {
	db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{
		db:      db,
		bills:   repository.NewBillRepository(db, log),
		lines:   repository.NewLineItemRepository(db, log),
		orders:  repository.NewOrderRepository(db, log),
		runs:    repository.NewExtractionRunRepository(db, log),
		closers: []func(){db.Close},
	}
	if err := db.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
		a.close()
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	return a, nil
}

func openStore(ctx context.Context, c common.StorageConfig, log *slog.Logger) (storage.ObjectStore, func(), error) {
	switch c.Backend {
	case "gcs":
		s, err := storage.NewGCSStore(ctx, c.Bucket, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs bucket %s: %w", c.Bucket, err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn("storage.close", "error", err)
			}
		}, nil
	default:
		s, err := storage.NewFSStore(c.Root, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open store %s: %w", c.Root, err)
		}
		return s, nil, nil
	}
}

// newRenderer prefers poppler and falls back to pulling the embedded scan
// out of the PDF when pdftoppm is missing or fails.
func newRenderer(cfg *common.Config, log *slog.Logger) render.Renderer {
	return render.Chain{
		Renderers: []render.Renderer{
			render.NewPdftoppm(cfg.Render.Pdftoppm, cfg.Render.WorkDir, log),
			render.NewEmbeddedImage(cfg.Render.WorkDir, log),
		},
		Log: log,
	}
}

// newExtractor builds the configured extraction client wrapped in retries.
// The returned func closes the client.
func newExtractor(ctx context.Context, cfg *common.Config, log *slog.Logger) (llm.Extractor, func(), error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, nil, err
	}
	var (
		inner   llm.Extractor
		closeFn = func() {}
	)
	switch strings.ToLower(cfg.LLM.Provider) {
	case "vertex":
		c, err := vertex.NewClient(ctx, vertex.Config{
			Project:  cfg.LLM.Project,
			Location: cfg.LLM.Location,
			Model:    vertexModel(cfg.LLM.Model),
		}, log)
		if err != nil {
			return nil, nil, err
		}
		inner = c
		closeFn = func() { _ = c.Close() }
	default:
		inner = openai.NewClient(openai.Config{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		}, log)
	}
	retries := cfg.LLM.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return llm.NewRetrying(inner, common.RetryConfig{
		MaxRetries:     retries,
		InitialDelay:   cfg.LLM.BaseDelay,
		MaxDelay:       cfg.LLM.MaxDelay,
		BackoffFactor:  2,
		JitterFraction: 0.2,
	}, log), closeFn, nil
}

// vertexModel ignores the OpenAI default model name.
func vertexModel(m string) string {
	if strings.HasPrefix(m, "gpt-") {
		return ""
	}
	return m
}

// newProcessor wires the pipeline over a.
func (a *app) newProcessor(ctx context.Context, cfg *common.Config, log *slog.Logger) (*pipeline.Processor, error) {
	ext, closeExt, err := newExtractor(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeExt)
	return pipeline.NewProcessor(pipeline.Deps{
		DB:        a.db,
		Bills:     a.bills,
		Lines:     a.lines,
		Runs:      a.runs,
		Store:     a.store,
		Renderer:  newRenderer(cfg, log),
		Extractor: ext,
	}, pipeline.ConfigFrom(cfg.Pipeline), log), nil
}
