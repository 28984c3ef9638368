/*
scheduler.go - Automated daily snapshot scheduler

PURPOSE:
  Periodically recomputes today's snapshot for every known user so stored
  scores keep decaying on days with no mutations.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Delegates the fan-out to tracker.RecomputeAll (bounded errgroup)
  - A user that fails is logged and retried on the next tick

CONFIGURATION:
  - Interval:    How often to recompute (default: 1 hour)
  - Concurrency: Users recomputed in parallel (default: 4)
  - Enabled:     Whether scheduler is active (default: true)

USAGE:
  s := NewSnapshotScheduler(tracker, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: RecomputeAll endpoint (manual run)
  - tracker/batch.go: RecomputeAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/harm-index/tracker"
)

// SnapshotScheduler refreshes daily snapshots on an interval.
type SnapshotScheduler struct {
	Tracker     *tracker.Tracker
	Interval    time.Duration
	Concurrency int
	Enabled     bool

	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   tracker.BatchResult
}

// NewSnapshotScheduler creates a new scheduler.
func NewSnapshotScheduler(t *tracker.Tracker, log *zap.Logger) *SnapshotScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SnapshotScheduler{
		Tracker:     t,
		Interval:    time.Hour,
		Concurrency: tracker.DefaultConcurrency,
		Enabled:     true,
		log:         log.Named("scheduler"),
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (s *SnapshotScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("started", zap.Duration("interval", s.Interval), zap.Int("concurrency", s.Concurrency))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *SnapshotScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("stopped")
}

// Last returns the result of the most recent run.
func (s *SnapshotScheduler) Last() tracker.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *SnapshotScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow recomputes every user's snapshot once.
func (s *SnapshotScheduler) RunNow(ctx context.Context) (tracker.BatchResult, error) {
	start := time.Now()
	res, err := s.Tracker.RecomputeAll(ctx, s.Concurrency)
	if err != nil {
		s.log.Error("recompute run failed", zap.Error(err))
		return res, err
	}
	for userID, userErr := range res.Failed {
		s.log.Warn("user snapshot not refreshed", zap.String("user_id", string(userID)), zap.Error(userErr))
	}
	s.log.Info("recompute run complete",
		zap.Int("users", res.Users),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("took", time.Since(start)))

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, nil
}
