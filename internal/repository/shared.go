package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hostmetry/agent/internal/metric"
)

// Shared is the one storage handle the rest of the process holds on to. The
// scheduler swaps the inner repository when it rebuilds the connection, so
// the debug endpoint and the shutdown path always reach the live connection
// through the same stable reference.
type Shared struct {
	mu    sync.RWMutex
	inner Repository
}

func NewShared(inner Repository) *Shared {
	return &Shared{inner: inner}
}

// Swap replaces the inner repository. The previous one must already be
// closed by the caller.
func (s *Shared) Swap(next Repository) {
	s.mu.Lock()
	s.inner = next
	s.mu.Unlock()
}

func (s *Shared) current() Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner
}

func (s *Shared) AppendEntry(ctx context.Context, hostname, source string, recordedAt time.Time, entry metric.Entry) error {
	return s.current().AppendEntry(ctx, hostname, source, recordedAt, entry)
}

func (s *Shared) PurgeOlderThan(ctx context.Context, hostname, source string, cutoff time.Time) error {
	return s.current().PurgeOlderThan(ctx, hostname, source, cutoff)
}

func (s *Shared) Ping(ctx context.Context) error {
	return s.current().Ping(ctx)
}

// Close closes whichever repository is current, not the one the handle
// started with.
func (s *Shared) Close() error {
	return s.current().Close()
}
