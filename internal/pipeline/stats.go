package pipeline

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/provider-bills/constants"
)

// Stats accumulates per-run counters. Safe for concurrent use.
type Stats struct {
	mu         sync.Mutex
	processed  int
	succeeded  int
	failed     int
	skipped    int
	total      time.Duration
	byStrategy map[constants.Strategy]int
	byQuality  map[constants.QualityTier]int
	byStatus   map[constants.BillStatus]int
}

func NewStats() *Stats {
	return &Stats{
		byStrategy: map[constants.Strategy]int{},
		byQuality:  map[constants.QualityTier]int{},
		byStatus:   map[constants.BillStatus]int{},
	}
}

// Record counts one processed bill. A bill counts as succeeded when the pass
// ran to a committed status, valid or not.
func (s *Stats) Record(out Outcome, err error, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.total += elapsed
	if err != nil {
		s.failed++
	} else {
		s.succeeded++
	}
	if out.Strategy != "" {
		s.byStrategy[out.Strategy]++
	}
	if out.Quality != "" {
		s.byQuality[out.Quality]++
	}
	if out.Status != "" {
		s.byStatus[out.Status]++
	}
}

func (s *Stats) RecordSkipped() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Processed   int
	Succeeded   int
	Failed      int
	Skipped     int
	AvgDuration time.Duration
	ByStrategy  map[constants.Strategy]int
	ByQuality   map[constants.QualityTier]int
	ByStatus    map[constants.BillStatus]int
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Processed:  s.processed,
		Succeeded:  s.succeeded,
		Failed:     s.failed,
		Skipped:    s.skipped,
		ByStrategy: make(map[constants.Strategy]int, len(s.byStrategy)),
		ByQuality:  make(map[constants.QualityTier]int, len(s.byQuality)),
		ByStatus:   make(map[constants.BillStatus]int, len(s.byStatus)),
	}
	if s.processed > 0 {
		snap.AvgDuration = s.total / time.Duration(s.processed)
	}
	for k, v := range s.byStrategy {
		snap.ByStrategy[k] = v
	}
	for k, v := range s.byQuality {
		snap.ByQuality[k] = v
	}
	for k, v := range s.byStatus {
		snap.ByStatus[k] = v
	}
	return snap
}

// LogSummary writes the snapshot as one structured record.
func (s Snapshot) LogSummary(log *slog.Logger, msg string) {
	log.Info(msg,
		"processed", s.Processed,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"avg_ms", s.AvgDuration.Milliseconds(),
		slog.Group("strategy", countAttrs(s.ByStrategy)...),
		slog.Group("quality", countAttrs(s.ByQuality)...),
		slog.Group("status", countAttrs(s.ByStatus)...),
	)
}

func countAttrs[K ~string](m map[K]int) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Int(k, m[K(k)]))
	}
	return attrs
}
