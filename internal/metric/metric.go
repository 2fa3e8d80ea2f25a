// Package metric defines the data model shared by every collector: raw
// Samples acquired from a source and reporting-ready Metrics derived from
// one or two Samples.
package metric

import "time"

// Kind describes how a pair of counter readings becomes a reported value.
type Kind int

const (
	// KindRate reports (second - first) / elapsed seconds as a float64.
	KindRate Kind = iota

	// KindPerMinute reports (second - first) / whole elapsed minutes using
	// integer division. Used for inherently discrete quantities such as
	// handled request counts.
	KindPerMinute

	// KindDelta reports the plain difference second - first.
	KindDelta
)

// Counter is a single named cumulative reading. Kernel and application
// counters of this kind never decrease except on restart or reset.
type Counter struct {
	Name  string
	Value float64
	Kind  Kind
}

// Gauge is a single named absolute reading. It needs no differencing and is
// carried into the Metric as-is from the newest Sample.
type Gauge struct {
	Name  string
	Value float64
}

// Series groups the readings of one logical sub-source: a disk device, a
// network interface, a container, a database table. Sources with a single
// stream of readings use one Series with an empty Key.
type Series struct {
	Key      string
	Counters []Counter
	Gauges   []Gauge
	Attrs    map[string]string
}

// Sample is one point-in-time reading from a source. It is immutable once
// constructed and owned by the collector that fetched it.
type Sample struct {
	Timestamp time.Time
	Series    []Series
}

// Value is a single named reporting-ready number inside a Metric entry.
type Value struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Entry holds the derived values of one Series.
type Entry struct {
	Key    string            `json:"series,omitempty"`
	Values []Value           `json:"values"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Metric is a derived, reporting-ready reading. Elapsed is the number of
// seconds between the paired Samples it was computed from, or zero when the
// Metric came from a single Sample.
type Metric struct {
	Timestamp time.Time `json:"timestamp"`
	Elapsed   float64   `json:"elapsed_seconds,omitempty"`
	Entries   []Entry   `json:"entries"`
}

// Lookup returns the named value of the entry and whether it is present.
func (e Entry) Lookup(name string) (float64, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// Drop removes the named value from the entry.
func (e *Entry) Drop(name string) {
	kept := e.Values[:0]
	for _, v := range e.Values {
		if v.Name != name {
			kept = append(kept, v)
		}
	}
	e.Values = kept
}

// Set replaces the named value or appends it when absent.
func (e *Entry) Set(name string, value float64) {
	for i, v := range e.Values {
		if v.Name == name {
			e.Values[i].Value = value
			return
		}
	}
	e.Values = append(e.Values, Value{Name: name, Value: value})
}
