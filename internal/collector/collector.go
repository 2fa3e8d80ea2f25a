// Package collector binds one source adapter to the rate calculator and the
// persistence layer, owning the polling state of that source.
//
// Two variants exist: RateCollector keeps the previous Sample and derives its
// Metric from a pair of Samples; GaugeCollector derives a Metric from every
// single Sample and keeps no history.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// Source acquires a fresh Sample from one data source. Acquisition failures
// are reported through the shared error taxonomy: ErrReadFailed for
// transport/I-O problems, ErrParseFailed for malformed data and
// ErrNotConfigured for sources disabled absent configuration. Blocking calls
// inside Acquire must carry their own bounded timeout.
type Source interface {
	Name() string
	Acquire(ctx context.Context) (metric.Sample, error)
}

// Refiner is implemented by sources that derive additional values from a
// freshly computed Metric, e.g. a ratio of two counter rates.
type Refiner interface {
	Refine(m *metric.Metric)
}

// Store is the persistence surface a collector needs. Entries of one Metric
// are independent rows; each AppendEntry call is a single self-contained
// statement.
type Store interface {
	AppendEntry(ctx context.Context, hostname, source string, recordedAt time.Time, entry metric.Entry) error
	PurgeOlderThan(ctx context.Context, hostname, source string, cutoff time.Time) error
}

// Collector is the uniform unit the scheduler drives. Implementations own
// their polling state; only their own Collect call mutates it.
type Collector interface {
	Name() string

	// Collect acquires a new Sample and, when possible, computes a fresh
	// Metric. On failure the stored state is left untouched.
	Collect(ctx context.Context) error

	// Save persists every entry of the current Metric. A collector that has
	// not computed a Metric yet writes nothing and returns nil.
	Save(ctx context.Context, store Store) error

	// Encode serializes the current Metric for external inspection. It
	// returns ErrNoRecord until a Metric has been computed.
	Encode() (string, error)

	// Cleanup deletes this host's persisted rows of this source older than
	// cutoff.
	Cleanup(ctx context.Context, store Store, cutoff time.Time) error
}

// RateCollector polls a source with cumulative counters and differences
// consecutive Samples into per-interval rates.
type RateCollector struct {
	source   Source
	hostname string

	mu       sync.RWMutex
	previous *metric.Sample
	current  *metric.Metric
}

// NewRateCollector creates a collector that differences consecutive Samples
// of the given source.
func NewRateCollector(source Source, hostname string) *RateCollector {
	return &RateCollector{source: source, hostname: hostname}
}

func (c *RateCollector) Name() string { return c.source.Name() }

// Collect acquires a Sample and computes a Metric against the previous one.
// The newly acquired Sample always replaces the previous Sample, even when
// the rate computation fails, so a widened gap simply widens the divisor of
// the next successful computation. The first successful acquisition only arms
// the collector and computes nothing.
func (c *RateCollector) Collect(ctx context.Context) error {
	sample, err := c.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire %s sample: %w", c.source.Name(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.previous
	c.previous = &sample
	if previous == nil {
		return nil
	}

	m, err := metric.FromPair(*previous, sample)
	if err != nil {
		return fmt.Errorf("compute %s metric: %w", c.source.Name(), err)
	}
	if r, ok := c.source.(Refiner); ok {
		r.Refine(&m)
	}
	c.current = &m
	return nil
}

func (c *RateCollector) Save(ctx context.Context, store Store) error {
	c.mu.RLock()
	m := c.current
	c.mu.RUnlock()
	if m == nil {
		return nil
	}
	return appendEntries(ctx, store, c.hostname, c.source.Name(), *m)
}

func (c *RateCollector) Encode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return encodeMetric(c.source.Name(), c.current)
}

func (c *RateCollector) Cleanup(ctx context.Context, store Store, cutoff time.Time) error {
	if err := store.PurgeOlderThan(ctx, c.hostname, c.source.Name(), cutoff); err != nil {
		return fmt.Errorf("purge %s rows: %w", c.source.Name(), err)
	}
	return nil
}

// GaugeCollector polls a source whose readings are already absolute
// quantities. Every successful acquisition yields a ready Metric; there is no
// previous-sample bookkeeping.
type GaugeCollector struct {
	source   Source
	hostname string

	mu      sync.RWMutex
	current *metric.Metric
}

// NewGaugeCollector creates a collector that turns every Sample of the given
// source directly into a Metric.
func NewGaugeCollector(source Source, hostname string) *GaugeCollector {
	return &GaugeCollector{source: source, hostname: hostname}
}

func (c *GaugeCollector) Name() string { return c.source.Name() }

func (c *GaugeCollector) Collect(ctx context.Context) error {
	sample, err := c.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire %s sample: %w", c.source.Name(), err)
	}
	m := metric.FromSample(sample)
	if r, ok := c.source.(Refiner); ok {
		r.Refine(&m)
	}
	c.mu.Lock()
	c.current = &m
	c.mu.Unlock()
	return nil
}

func (c *GaugeCollector) Save(ctx context.Context, store Store) error {
	c.mu.RLock()
	m := c.current
	c.mu.RUnlock()
	if m == nil {
		return nil
	}
	return appendEntries(ctx, store, c.hostname, c.source.Name(), *m)
}

func (c *GaugeCollector) Encode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return encodeMetric(c.source.Name(), c.current)
}

func (c *GaugeCollector) Cleanup(ctx context.Context, store Store, cutoff time.Time) error {
	if err := store.PurgeOlderThan(ctx, c.hostname, c.source.Name(), cutoff); err != nil {
		return fmt.Errorf("purge %s rows: %w", c.source.Name(), err)
	}
	return nil
}

// appendEntries writes every entry of the metric concurrently. A failed entry
// does not abort sibling writes already in flight; all failures are collected
// and surfaced together.
func appendEntries(ctx context.Context, store Store, hostname, source string, m metric.Metric) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var result *multierror.Error

	for _, entry := range m.Entries {
		wg.Add(1)
		go func(entry metric.Entry) {
			defer wg.Done()
			if err := store.AppendEntry(ctx, hostname, source, m.Timestamp, entry); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("append %s entry %q: %w", source, entry.Key, err))
				mu.Unlock()
			}
		}(entry)
	}
	wg.Wait()

	return result.ErrorOrNil()
}

type encodedMetric struct {
	Source string `json:"source"`
	metric.Metric
}

func encodeMetric(source string, m *metric.Metric) (string, error) {
	if m == nil {
		return "", fmt.Errorf("encode %s metric: %w", source, apperrors.ErrNoRecord)
	}
	data, err := json.MarshalIndent(encodedMetric{Source: source, Metric: *m}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s metric: %w", source, err)
	}
	return string(data), nil
}
