package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeSource replays a scripted sequence of samples and errors.
type fakeSource struct {
	name    string
	samples []metric.Sample
	errs    []error
	calls   int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Acquire(ctx context.Context) (metric.Sample, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return metric.Sample{}, f.errs[i]
	}
	return f.samples[i], nil
}

type appended struct {
	hostname   string
	source     string
	recordedAt time.Time
	entry      metric.Entry
}

// fakeStore records appends and purges; entries whose key is in failKeys
// fail their write.
type fakeStore struct {
	mu       sync.Mutex
	appends  []appended
	purged   []string
	cutoffs  []time.Time
	failKeys map[string]bool
}

func (f *fakeStore) AppendEntry(ctx context.Context, hostname, source string, recordedAt time.Time, entry metric.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeys[entry.Key] {
		return fmt.Errorf("write failed for %s", entry.Key)
	}
	f.appends = append(f.appends, appended{hostname, source, recordedAt, entry})
	return nil
}

func (f *fakeStore) PurgeOlderThan(ctx context.Context, hostname, source string, cutoff time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, hostname+"/"+source)
	f.cutoffs = append(f.cutoffs, cutoff)
	return nil
}

func counterSample(ts time.Time, key string, value float64) metric.Sample {
	return metric.Sample{
		Timestamp: ts,
		Series: []metric.Series{{
			Key:      key,
			Counters: []metric.Counter{{Name: "read", Value: value}},
		}},
	}
}

func TestRateCollector_SingleSampleSaveIsNoOp(t *testing.T) {
	src := &fakeSource{name: "io", samples: []metric.Sample{counterSample(t0, "sda", 100)}}
	c := NewRateCollector(src, "host-1")
	store := &fakeStore{}
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))

	// Armed but not ready: nothing to persist yet.
	require.NoError(t, c.Save(ctx, store))
	assert.Empty(t, store.appends)
}

func TestRateCollector_ReadyAfterSecondSample(t *testing.T) {
	src := &fakeSource{name: "io", samples: []metric.Sample{
		counterSample(t0, "sda", 100),
		counterSample(t0.Add(10*time.Second), "sda", 600),
	}}
	c := NewRateCollector(src, "host-1")
	store := &fakeStore{}
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Save(ctx, store))

	require.Len(t, store.appends, 1)
	row := store.appends[0]
	assert.Equal(t, "host-1", row.hostname)
	assert.Equal(t, "io", row.source)
	assert.Equal(t, t0.Add(10*time.Second), row.recordedAt)

	rate, ok := row.entry.Lookup("read")
	require.True(t, ok)
	assert.Equal(t, 50.0, rate)
}

func TestRateCollector_FailedAcquisitionKeepsState(t *testing.T) {
	src := &fakeSource{name: "io",
		samples: []metric.Sample{
			counterSample(t0, "sda", 100),
			{},
			counterSample(t0.Add(20*time.Second), "sda", 300),
		},
		errs: []error{nil, fmt.Errorf("%w: boom", apperrors.ErrReadFailed), nil},
	}
	c := NewRateCollector(src, "host-1")
	store := &fakeStore{}
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))

	err := c.Collect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrReadFailed)

	// The baseline survived the outage: the next success differences against
	// the first sample over the widened 20s interval.
	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Save(ctx, store))
	require.Len(t, store.appends, 1)
	rate, _ := store.appends[0].entry.Lookup("read")
	assert.Equal(t, 10.0, rate)
}

func TestRateCollector_InvalidIntervalReplacesBaseline(t *testing.T) {
	src := &fakeSource{name: "io", samples: []metric.Sample{
		counterSample(t0, "sda", 100),
		counterSample(t0, "sda", 200), // same timestamp
		counterSample(t0.Add(10*time.Second), "sda", 700),
	}}
	c := NewRateCollector(src, "host-1")
	store := &fakeStore{}
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))

	err := c.Collect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInterval)

	// The failed computation still replaced the previous sample, so the next
	// rate is computed against the second sample, not the first.
	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Save(ctx, store))
	require.Len(t, store.appends, 1)
	rate, _ := store.appends[0].entry.Lookup("read")
	assert.Equal(t, 50.0, rate)
}

func TestRateCollector_EncodeBeforeReady(t *testing.T) {
	c := NewRateCollector(&fakeSource{name: "io"}, "host-1")
	_, err := c.Encode()
	assert.ErrorIs(t, err, apperrors.ErrNoRecord)
}

func TestRateCollector_Encode(t *testing.T) {
	src := &fakeSource{name: "io", samples: []metric.Sample{
		counterSample(t0, "sda", 0),
		counterSample(t0.Add(time.Second), "sda", 42),
	}}
	c := NewRateCollector(src, "host-1")
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Collect(ctx))

	document, err := c.Encode()
	require.NoError(t, err)
	assert.Contains(t, document, `"source": "io"`)
	assert.Contains(t, document, `"series": "sda"`)
	assert.Contains(t, document, `"read"`)
}

func TestGaugeCollector_ReadyAfterFirstSample(t *testing.T) {
	src := &fakeSource{name: "memory", samples: []metric.Sample{{
		Timestamp: t0,
		Series:    []metric.Series{{Gauges: []metric.Gauge{{Name: "free", Value: 1024}}}},
	}}}
	c := NewGaugeCollector(src, "host-1")
	store := &fakeStore{}
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Save(ctx, store))

	require.Len(t, store.appends, 1)
	free, ok := store.appends[0].entry.Lookup("free")
	require.True(t, ok)
	assert.Equal(t, 1024.0, free)

	_, err := c.Encode()
	assert.NoError(t, err)
}

func TestSave_EntryFailureDoesNotAbortSiblings(t *testing.T) {
	sample := func(ts time.Time, v float64) metric.Sample {
		return metric.Sample{Timestamp: ts, Series: []metric.Series{
			{Key: "sda", Counters: []metric.Counter{{Name: "read", Value: v}}},
			{Key: "sdb", Counters: []metric.Counter{{Name: "read", Value: v}}},
		}}
	}
	src := &fakeSource{name: "io", samples: []metric.Sample{
		sample(t0, 0),
		sample(t0.Add(time.Second), 100),
	}}
	c := NewRateCollector(src, "host-1")
	store := &fakeStore{failKeys: map[string]bool{"sda": true}}
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Collect(ctx))

	err := c.Save(ctx, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sda")

	// The sibling entry was still written.
	require.Len(t, store.appends, 1)
	assert.Equal(t, "sdb", store.appends[0].entry.Key)
}

func TestCleanup_DelegatesToStore(t *testing.T) {
	c := NewRateCollector(&fakeSource{name: "io"}, "host-1")
	store := &fakeStore{}
	cutoff := t0.Add(-14 * 24 * time.Hour)

	require.NoError(t, c.Cleanup(context.Background(), store, cutoff))
	// Scoped to this host's rows of this source.
	require.Equal(t, []string{"host-1/io"}, store.purged)
	assert.Equal(t, cutoff, store.cutoffs[0])
}

// refiningSource doubles every value after the rate computation.
type refiningSource struct {
	fakeSource
}

func (r *refiningSource) Refine(m *metric.Metric) {
	for i := range m.Entries {
		for j := range m.Entries[i].Values {
			m.Entries[i].Values[j].Value *= 2
		}
	}
}

func TestRateCollector_RefinerApplied(t *testing.T) {
	src := &refiningSource{fakeSource{name: "docker", samples: []metric.Sample{
		counterSample(t0, "web", 0),
		counterSample(t0.Add(time.Second), "web", 21),
	}}}
	c := NewRateCollector(src, "host-1")
	store := &fakeStore{}
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Collect(ctx))
	require.NoError(t, c.Save(ctx, store))

	require.Len(t, store.appends, 1)
	rate, _ := store.appends[0].entry.Lookup("read")
	assert.Equal(t, 42.0, rate)
}

func TestRateCollector_NotConfiguredPassedThrough(t *testing.T) {
	src := &fakeSource{name: "nginx", errs: []error{apperrors.ErrNotConfigured}, samples: []metric.Sample{{}}}
	c := NewRateCollector(src, "host-1")

	err := c.Collect(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrNotConfigured))
}
