package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Inbox subdirectories that ingested files are moved into.
const (
	DoneDir   = "processed"
	FailedDir = "failed"
)

type WatchConfig struct {
	Dir         string
	InitialScan bool          // ingest files already present
	Debounce    time.Duration // coalesce write bursts from copies in progress
}

// Watch ingests PDFs dropped into cfg.Dir until ctx is done. Each file is
// moved to processed/ or failed/ afterwards so restarts do not re-ingest it.
func (s *Service) Watch(ctx context.Context, cfg WatchConfig) error {
	if cfg.Dir == "" {
		return errors.New("watch: no inbox directory")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	for _, sub := range []string{DoneDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}
	s.log.Info("intake.watch.start", "dir", cfg.Dir)

	ready := make(chan string, 64)
	if cfg.InitialScan {
		entries, err := os.ReadDir(cfg.Dir)
		if err != nil {
			return err
		}
		go func() {
			for _, e := range entries {
				if !e.IsDir() && s.wanted(e.Name()) {
					select {
					case ready <- filepath.Join(cfg.Dir, e.Name()):
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	var (
		mu      sync.Mutex
		pending = map[string]*time.Timer{}
	)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Reset(cfg.Debounce)
			return
		}
		pending[path] = time.AfterFunc(cfg.Debounce, func() {
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range pending {
				t.Stop()
			}
			mu.Unlock()
			s.log.Info("intake.watch.stop", "dir", cfg.Dir)
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != filepath.Clean(cfg.Dir) || !s.wanted(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule(ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("intake.watch.error", "err", err)
		case path := <-ready:
			s.ingestInbox(ctx, cfg.Dir, path)
		}
	}
}

func (s *Service) wanted(name string) bool {
	return !IsHidden(name) && AllowedExt(filepath.Ext(name))
}

// ingestInbox ingests one inbox file and files it away.
func (s *Service) ingestInbox(ctx context.Context, dir, path string) {
	if _, err := os.Stat(path); err != nil {
		// Renamed away or already handled.
		return
	}
	sub := DoneDir
	res, err := s.IngestFile(ctx, path)
	if err != nil {
		s.log.Error("intake.watch.ingest_failed", "file", path, "err", err)
		sub = FailedDir
	} else {
		s.log.Info("intake.watch.ingested", "file", path, "bills", len(res.BillIDs), "failed_pages", len(res.Failed))
	}
	dst := filepath.Join(dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		s.log.Warn("intake.watch.move_failed", "file", path, "dst", dst, "err", err)
	}
}
