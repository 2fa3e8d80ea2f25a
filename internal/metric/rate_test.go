package metric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hostmetry/agent/internal/errors"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleAt(ts time.Time, series ...Series) Sample {
	return Sample{Timestamp: ts, Series: series}
}

func counters(values map[string]float64) Series {
	s := Series{}
	for name, value := range values {
		s.Counters = append(s.Counters, Counter{Name: name, Value: value})
	}
	return s
}

func TestFromPair_RateCorrectness(t *testing.T) {
	first := sampleAt(t0, counters(map[string]float64{"read": 1000}))
	second := sampleAt(t0.Add(10*time.Second), counters(map[string]float64{"read": 5000}))

	m, err := FromPair(first, second)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	rate, ok := m.Entries[0].Lookup("read")
	require.True(t, ok)
	assert.Equal(t, 400.0, rate)
	assert.Equal(t, second.Timestamp, m.Timestamp)
	assert.Equal(t, 10.0, m.Elapsed)
}

func TestFromPair_CounterResetClampsToZero(t *testing.T) {
	first := sampleAt(t0, counters(map[string]float64{"x": 500}))
	second := sampleAt(t0.Add(5*time.Second), counters(map[string]float64{"x": 100}))

	m, err := FromPair(first, second)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	rate, ok := m.Entries[0].Lookup("x")
	require.True(t, ok)
	// Never a negative rate for a monotone counter.
	assert.Equal(t, 0.0, rate)
}

func TestFromPair_DisjointKeysDropped(t *testing.T) {
	first := sampleAt(t0, counters(map[string]float64{"a": 1, "shared": 10}))
	second := sampleAt(t0.Add(time.Second), counters(map[string]float64{"b": 2, "shared": 20}))

	m, err := FromPair(first, second)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	_, ok := m.Entries[0].Lookup("a")
	assert.False(t, ok)
	_, ok = m.Entries[0].Lookup("b")
	assert.False(t, ok)

	rate, ok := m.Entries[0].Lookup("shared")
	require.True(t, ok)
	assert.Equal(t, 10.0, rate)
}

func TestFromPair_DisjointSeriesDropped(t *testing.T) {
	sda := counters(map[string]float64{"read": 100})
	sda.Key = "sda"
	sdb := counters(map[string]float64{"read": 100})
	sdb.Key = "sdb"

	sda2 := counters(map[string]float64{"read": 200})
	sda2.Key = "sda"
	sdc := counters(map[string]float64{"read": 300})
	sdc.Key = "sdc"

	m, err := FromPair(sampleAt(t0, sda, sdb), sampleAt(t0.Add(time.Second), sda2, sdc))
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "sda", m.Entries[0].Key)
}

func TestFromPair_ZeroIntervalRejected(t *testing.T) {
	first := sampleAt(t0, counters(map[string]float64{"x": 1}))
	second := sampleAt(t0, counters(map[string]float64{"x": 2}))

	_, err := FromPair(first, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInterval)
}

func TestFromPair_InvertedTimestampsRejected(t *testing.T) {
	first := sampleAt(t0.Add(time.Second), counters(map[string]float64{"x": 1}))
	second := sampleAt(t0, counters(map[string]float64{"x": 2}))

	_, err := FromPair(first, second)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInterval)
}

func TestFromPair_PerMinuteTruncates(t *testing.T) {
	s := Series{Counters: []Counter{{Name: "handled_requests", Value: 1000, Kind: KindPerMinute}}}
	s2 := Series{Counters: []Counter{{Name: "handled_requests", Value: 1351, Kind: KindPerMinute}}}

	// 351 requests over two whole minutes truncates to 175 per minute.
	m, err := FromPair(sampleAt(t0, s), sampleAt(t0.Add(2*time.Minute), s2))
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	rate, ok := m.Entries[0].Lookup("handled_requests")
	require.True(t, ok)
	assert.Equal(t, 175.0, rate)
}

func TestFromPair_PerMinuteOmittedUnderOneMinute(t *testing.T) {
	s := Series{Counters: []Counter{{Name: "handled_requests", Value: 10, Kind: KindPerMinute}}}
	s2 := Series{Counters: []Counter{{Name: "handled_requests", Value: 20, Kind: KindPerMinute}}}

	m, err := FromPair(sampleAt(t0, s), sampleAt(t0.Add(30*time.Second), s2))
	require.NoError(t, err)
	assert.Empty(t, m.Entries)
}

func TestFromPair_DeltaKind(t *testing.T) {
	s := Series{Counters: []Counter{{Name: "inserted", Value: 100, Kind: KindDelta}}}
	s2 := Series{Counters: []Counter{{Name: "inserted", Value: 175, Kind: KindDelta}}}

	m, err := FromPair(sampleAt(t0, s), sampleAt(t0.Add(10*time.Second), s2))
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	delta, ok := m.Entries[0].Lookup("inserted")
	require.True(t, ok)
	assert.Equal(t, 75.0, delta)
}

func TestFromPair_GaugesCarriedFromNewestSample(t *testing.T) {
	s := Series{
		Counters: []Counter{{Name: "rx", Value: 0}},
		Gauges:   []Gauge{{Name: "memory_usage", Value: 100}},
	}
	s2 := Series{
		Counters: []Counter{{Name: "rx", Value: 50}},
		Gauges:   []Gauge{{Name: "memory_usage", Value: 250}},
	}

	m, err := FromPair(sampleAt(t0, s), sampleAt(t0.Add(10*time.Second), s2))
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	usage, ok := m.Entries[0].Lookup("memory_usage")
	require.True(t, ok)
	assert.Equal(t, 250.0, usage)
}

func TestFromPair_AttrsFromNewestSample(t *testing.T) {
	s := Series{Key: "web", Counters: []Counter{{Name: "rx", Value: 0}}, Attrs: map[string]string{"state": "running"}}
	s2 := Series{Key: "web", Counters: []Counter{{Name: "rx", Value: 10}}, Attrs: map[string]string{"state": "paused"}}

	m, err := FromPair(sampleAt(t0, s), sampleAt(t0.Add(time.Second), s2))
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "paused", m.Entries[0].Attrs["state"])
}

func TestFromSample(t *testing.T) {
	s := Series{Gauges: []Gauge{{Name: "one", Value: 0.42}, {Name: "five", Value: 0.17}}}

	m := FromSample(sampleAt(t0, s))
	require.Len(t, m.Entries, 1)
	assert.Equal(t, t0, m.Timestamp)
	assert.Zero(t, m.Elapsed)

	one, ok := m.Entries[0].Lookup("one")
	require.True(t, ok)
	assert.Equal(t, 0.42, one)
}

func TestEntry_SetAndDrop(t *testing.T) {
	entry := Entry{Values: []Value{{Name: "a", Value: 1}, {Name: "b", Value: 2}}}

	entry.Set("a", 3)
	entry.Set("c", 4)
	a, _ := entry.Lookup("a")
	assert.Equal(t, 3.0, a)

	entry.Drop("b")
	_, ok := entry.Lookup("b")
	assert.False(t, ok)
	c, _ := entry.Lookup("c")
	assert.Equal(t, 4.0, c)
}
