// Package intake splits uploaded claim batches into one SCANNED bill per page.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
	"github.com/joseph-ayodele/provider-bills/internal/storage"
)

// Service uploads pages and creates their bills.
type Service struct {
	bills      repository.BillRepository
	store      storage.ObjectStore
	splitter   Splitter
	uploadedBy string
	uploads    int
	log        *slog.Logger
}

func NewService(bills repository.BillRepository, store storage.ObjectStore, splitter Splitter, uploadedBy string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if uploadedBy == "" {
		uploadedBy = "intake"
	}
	return &Service{bills: bills, store: store, splitter: splitter, uploadedBy: uploadedBy, uploads: 8, log: logger}
}

// Result describes one ingested batch.
type Result struct {
	Source  string
	Pages   int
	BillIDs []string
	Failed  []int // 1-based page numbers
}

// SourceName normalises an uploaded file name for source_file.
func SourceName(name string) string {
	return strings.Join(strings.Fields(filepath.Base(name)), "_")
}

// Ingest splits pdf and creates a SCANNED bill per page. A page whose upload
// or insert fails is reported in Result.Failed and does not stop the batch.
func (s *Service) Ingest(ctx context.Context, name string, pdf []byte) (Result, error) {
	source := SourceName(name)
	log := s.log.With("source", source)
	if !AllowedExt(filepath.Ext(name)) {
		return Result{Source: source}, common.NewAppError("UNSUPPORTED_FILE", fmt.Sprintf("%s is not a PDF", name), common.ErrInvalidInput)
	}
	pages, err := s.splitter.Split(ctx, pdf)
	if err != nil {
		log.Error("intake.split.failed", "err", err)
		return Result{Source: source}, common.NewAppError("SPLIT_FAILED", "could not split "+source, err)
	}
	log.Info("intake.split", "pages", len(pages))

	ids := make([]string, len(pages))
	uploaded := make([]bool, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploads)
	for i, page := range pages {
		ids[i] = repository.NewBillID()
		g.Go(func() error {
			key := constants.PDFKey(ids[i])
			created, err := storage.PutIfAbsent(gctx, s.store, key, page)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("intake.page.upload_failed", "page", i+1, "key", key, "err", err)
				return nil
			}
			if !created {
				log.Warn("intake.page.exists", "page", i+1, "key", key)
				return nil
			}
			uploaded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Source: source, Pages: len(pages)}, err
	}

	res := Result{Source: source, Pages: len(pages)}
	for i := range pages {
		if !uploaded[i] {
			res.Failed = append(res.Failed, i+1)
			continue
		}
		b := &entity.Bill{
			ID:         ids[i],
			UploadedBy: s.uploadedBy,
			SourceFile: fmt.Sprintf("%s (Page %d)", source, i+1),
			Status:     constants.StatusScanned,
		}
		if err := s.bills.Create(ctx, b); err != nil {
			log.Error("intake.bill.create_failed", "page", i+1, "bill_id", b.ID, "err", err)
			res.Failed = append(res.Failed, i+1)
			continue
		}
		res.BillIDs = append(res.BillIDs, b.ID)
	}
	log.Info("intake.done", "bills", len(res.BillIDs), "failed", len(res.Failed))
	return res, nil
}

// IngestFile reads path and ingests it.
func (s *Service) IngestFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Source: SourceName(path)}, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Ingest(ctx, filepath.Base(path), data)
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   int
	Matched   int
	Succeeded int
	Failed    int
	Bills     int
}

// IngestDir ingests every PDF directly below root, skipping hidden files.
func (s *Service) IngestDir(ctx context.Context, root string) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError("INVALID_ROOT", "root path is required", common.ErrInvalidInput)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, DirStats{}, fmt.Errorf("read dir: %w", err)
	}
	var (
		results []Result
		stats   DirStats
	)
	for _, e := range entries {
		stats.Scanned++
		if e.IsDir() || IsHidden(e.Name()) || !AllowedExt(filepath.Ext(e.Name())) {
			continue
		}
		stats.Matched++
		res, err := s.IngestFile(ctx, filepath.Join(root, e.Name()))
		if errors.Is(err, context.Canceled) {
			return results, stats, err
		}
		if err != nil {
			s.log.Warn("intake.file.failed", "file", e.Name(), "err", err)
			stats.Failed++
			continue
		}
		results = append(results, res)
		stats.Succeeded++
		stats.Bills += len(res.BillIDs)
	}
	return results, stats, nil
}

// AllowedExt reports whether ext is accepted by intake.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden reports whether the base name starts with a dot.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
