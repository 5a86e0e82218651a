// Package scheduler drives periodic library maintenance: rescanning the
// video directory for new files and verifying that cataloged files still
// exist.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/observability"
)

// Scheduler runs the library rescan on a cron schedule. Standard 5-field
// cron expressions and @every descriptors are accepted.
type Scheduler struct {
	cron    *cron.Cron
	catalog *library.Catalog
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

// New creates a scheduler maintaining the given catalog.
func New(catalog *library.Catalog, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		catalog: catalog,
		logger:  observability.WithComponent(logger, "scheduler"),
	}
}

// AddRescan schedules a verify-then-scan pass. May be called multiple
// times with different schedules.
func (s *Scheduler) AddRescan(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		s.Rescan(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid rescan schedule %q: %w", spec, err)
	}
	s.logger.Info("rescan scheduled", "schedule", spec)
	return nil
}

// Rescan verifies the catalog against disk, then scans for new files.
// Overlapping runs are skipped rather than queued: a slow scan must not
// pile up behind itself.
func (s *Scheduler) Rescan(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("rescan already in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	removed := s.catalog.Verify(ctx)
	result, err := s.catalog.Scan(ctx)

	s.mu.Lock()
	s.running = false
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled rescan failed", "error", err)
		return
	}
	s.logger.Debug("scheduled rescan complete",
		"removed", removed,
		"scanned", result.Scanned,
		"added", result.Added,
	)
}

// LastRun returns the completion time and error of the most recent rescan.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Run starts the cron loop and blocks until ctx is cancelled. Entries
// already started are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}
