// Package scheduler drives the registered collectors on a fixed cadence,
// isolating per-collector failures, keeping the storage connection alive and
// triggering periodic retention cleanup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hostmetry/agent/internal/collector"
	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/repository"
)

const pingTimeout = 5 * time.Second

// Config carries the scheduler's tunables. ReportInterval is read once per
// sleep and MaxMetricAge once per cleanup cycle, so configuration changes
// take effect without a restart.
type Config struct {
	ReportInterval func() time.Duration
	MaxMetricAge   func() time.Duration

	// CleanupEveryNCycles bounds the load retention queries place on
	// storage: cleanup runs only every Nth polling cycle.
	CleanupEveryNCycles int
}

// Scheduler owns the collector set and the shared storage handle. It is the
// sole caller of every collector, so collector state needs no synchronization
// beyond what the debug endpoint requires.
type Scheduler struct {
	storage    *repository.Shared
	reconnect  func(ctx context.Context) (repository.Repository, error)
	collectors []collector.Collector
	cfg        Config
	logger     *zap.SugaredLogger
}

// New creates a scheduler over the given storage handle and collectors.
// reconnect is called when the liveness check fails; the fresh repository is
// swapped into the shared handle so every other holder of it follows the
// reconnect. Collectors are polled in the order given.
func New(
	storage *repository.Shared,
	reconnect func(ctx context.Context) (repository.Repository, error),
	collectors []collector.Collector,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		storage:    storage,
		reconnect:  reconnect,
		collectors: collectors,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run arms every collector with a baseline sample, then polls forever. It
// returns nil when the context is cancelled and an error only when storage
// stays unreachable after a reconnect attempt — the process is expected to
// exit and be restarted by a supervisor in that case.
func (s *Scheduler) Run(ctx context.Context) error {
	s.arm(ctx)
	s.logger.Info("ready")

	var cycle int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReportInterval()):
		}
		cycle++

		if err := s.ensureStorage(ctx); err != nil {
			return err
		}

		s.pollAll(ctx)

		if s.cfg.CleanupEveryNCycles > 0 && cycle%int64(s.cfg.CleanupEveryNCycles) == 0 {
			s.cleanupAll(ctx)
		}
	}
}

// arm performs one collect pass so rate collectors hold a baseline sample
// before the first reporting cycle. Nothing is persisted.
func (s *Scheduler) arm(ctx context.Context) {
	for _, c := range s.collectors {
		if err := c.Collect(ctx); err != nil {
			s.logCollectError(c.Name(), err)
		}
	}
}

// ensureStorage checks storage liveness and attempts a single reconnect. A
// failure after the reconnect is fatal: without storage every cycle's
// telemetry would be silently discarded.
func (s *Scheduler) ensureStorage(ctx context.Context) error {
	if err := s.ping(ctx); err == nil {
		return nil
	}

	s.logger.Warn("storage connection is not live, reconnecting...")
	if err := s.storage.Close(); err != nil {
		s.logger.Warnf("failed to close stale storage handle: %v", err)
	}

	storage, err := s.reconnect(ctx)
	if err != nil {
		return fmt.Errorf("%w: reconnect failed: %v", apperrors.ErrStorageUnavailable, err)
	}
	s.storage.Swap(storage)

	if err := s.ping(ctx); err != nil {
		return fmt.Errorf("%w: still unreachable after reconnect: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Scheduler) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.storage.Ping(pingCtx)
}

// pollAll collects and saves every collector in registration order. One
// collector's failure is logged and never blocks the others. A collector
// whose collect failed skips persistence for the cycle.
func (s *Scheduler) pollAll(ctx context.Context) {
	for _, c := range s.collectors {
		if err := c.Collect(ctx); err != nil {
			s.logCollectError(c.Name(), err)
			continue
		}
		if err := c.Save(ctx, s.storage); err != nil {
			s.logger.Warnf("failed to save %s metric: %v", c.Name(), err)
		}
	}
}

// cleanupAll prunes every collector's rows past the retention horizon.
// Collectors touch disjoint storage regions, so the deletes run concurrently.
func (s *Scheduler) cleanupAll(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.MaxMetricAge())

	var wg sync.WaitGroup
	for _, c := range s.collectors {
		wg.Add(1)
		go func(c collector.Collector) {
			defer wg.Done()
			if err := c.Cleanup(ctx, s.storage, cutoff); err != nil {
				s.logger.Warnf("%s metric cleanup failed: %v", c.Name(), err)
			}
		}(c)
	}
	wg.Wait()
}

func (s *Scheduler) logCollectError(name string, err error) {
	if errors.Is(err, apperrors.ErrNotConfigured) {
		s.logger.Debugf("%s source is not configured, skipping", name)
		return
	}
	s.logger.Warnf("failed to collect %s metric: %v", name, err)
}
