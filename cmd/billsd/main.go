// Command billsd is the long-running pipeline: it polls for SCANNED and
// INVALID bills, runs them through a worker queue, maps VALID bills on an
// interval, and optionally watches an inbox directory for new PDFs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/provider-bills/internal/async"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/intake"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
	"github.com/joseph-ayodele/provider-bills/internal/llm/openai"
	"github.com/joseph-ayodele/provider-bills/internal/llm/vertex"
	"github.com/joseph-ayodele/provider-bills/internal/logging"
	"github.com/joseph-ayodele/provider-bills/internal/matcher"
	"github.com/joseph-ayodele/provider-bills/internal/metrics"
	"github.com/joseph-ayodele/provider-bills/internal/pipeline"
	"github.com/joseph-ayodele/provider-bills/internal/render"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
	"github.com/joseph-ayodele/provider-bills/internal/storage"
)

func main() {
	cfg := common.LoadConfig()
	logger := logging.Setup(cfg.Log.Format, cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if err := cfg.ValidateLLM(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	var store storage.ObjectStore
	if cfg.Storage.Backend == "gcs" {
		gcs, err := storage.NewGCSStore(ctx, cfg.Storage.Bucket, logger)
		if err != nil {
			logger.Error("failed to open bucket", "bucket", cfg.Storage.Bucket, "error", err)
			os.Exit(1)
		}
		defer func() { _ = gcs.Close() }()
		store = gcs
	} else {
		fs, err := storage.NewFSStore(cfg.Storage.Root, logger)
		if err != nil {
			logger.Error("failed to open store", "root", cfg.Storage.Root, "error", err)
			os.Exit(1)
		}
		store = fs
	}

	extractor, err := newExtractor(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build extractor", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	bills := repository.NewBillRepository(db, logger)
	lines := repository.NewLineItemRepository(db, logger)
	orders := repository.NewOrderRepository(db, logger)
	runs := repository.NewExtractionRunRepository(db, logger)

	processor := pipeline.NewProcessor(pipeline.Deps{
		DB:    db,
		Bills: bills,
		Lines: lines,
		Runs:  runs,
		Store: store,
		Renderer: render.Chain{
			Renderers: []render.Renderer{
				render.NewPdftoppm(cfg.Render.Pdftoppm, cfg.Render.WorkDir, logger),
				render.NewEmbeddedImage(cfg.Render.WorkDir, logger),
			},
			Log: logger,
		},
		Extractor: extractor,
		Metrics:   m,
	}, pipeline.ConfigFrom(cfg.Pipeline), logger)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(512),
		async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
		async.WithDepthGauge(m.QueueDepth),
	)
	poller := async.NewPoller(bills, queue, cfg.Pipeline.PollInterval, cfg.Pipeline.BatchLimit, logger)

	mapper := matcher.New(db, bills, lines, orders, matcher.ConfigFrom(cfg.Matcher), logger)
	mapper.Metrics = m

	// gRPC health for the orchestrator's probes.
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsMux(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("billsd listening", "grpc", cfg.Server.GRPCAddr, "metrics", cfg.Server.MetricsAddr)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics serve error", "error", err)
			stop()
		}
	}()

	go poller.Run(ctx)
	go runMapper(ctx, mapper, cfg.Pipeline.PollInterval, cfg.Pipeline.LeaseDuration, logger)
	if cfg.Pipeline.InboxDir != "" {
		in := intake.NewService(bills, store, intake.PDFCPUSplitter{WorkDir: cfg.Render.WorkDir}, cfg.Pipeline.UploadedBy, logger)
		go func() {
			if err := in.Watch(ctx, intake.WatchConfig{Dir: cfg.Pipeline.InboxDir, InitialScan: true}); err != nil {
				logger.Error("inbox watch stopped", "dir", cfg.Pipeline.InboxDir, "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ProcessTimeout+10*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	processor.Stats().Snapshot().LogSummary(logger, "pipeline.totals")
	_ = metricsServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// runMapper maps VALID bills every interval until ctx is done.
func runMapper(ctx context.Context, m *matcher.Matcher, interval, lease time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := m.MapAll(ctx, lease); err != nil && ctx.Err() == nil {
				log.Error("mapping pass failed", "error", err)
			}
		}
	}
}

func newExtractor(ctx context.Context, cfg *common.Config, log *slog.Logger) (llm.Extractor, error) {
	var inner llm.Extractor
	if cfg.LLM.Provider == "vertex" {
		c, err := vertex.NewClient(ctx, vertex.Config{Project: cfg.LLM.Project, Location: cfg.LLM.Location}, log)
		if err != nil {
			return nil, err
		}
		// Lives as long as the process.
		inner = c
	} else {
		inner = openai.NewClient(openai.Config{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		}, log)
	}
	return llm.NewRetrying(inner, common.RetryConfig{
		MaxRetries:     max(cfg.LLM.MaxAttempts-1, 0),
		InitialDelay:   cfg.LLM.BaseDelay,
		MaxDelay:       cfg.LLM.MaxDelay,
		BackoffFactor:  2,
		JitterFraction: 0.2,
	}, log), nil
}
