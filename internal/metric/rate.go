package metric

import (
	"fmt"

	apperrors "github.com/hostmetry/agent/internal/errors"
)

// FromPair derives a Metric from two time-ordered Samples of the same source.
//
// Series are matched by key and counters by name; a series or counter present
// in only one of the two Samples is dropped from the result, never treated as
// zero. A counter that decreased between the Samples (process or container
// restart) is clamped to zero rather than reported as a negative rate.
//
// The second Sample must be strictly later than the first; a zero or negative
// interval returns ErrInvalidInterval.
func FromPair(first, second Sample) (Metric, error) {
	elapsed := second.Timestamp.Sub(first.Timestamp).Seconds()
	if elapsed <= 0 {
		return Metric{}, fmt.Errorf("%w: %v is not after %v",
			apperrors.ErrInvalidInterval, second.Timestamp, first.Timestamp)
	}

	previous := make(map[string]Series, len(first.Series))
	for _, s := range first.Series {
		previous[s.Key] = s
	}

	entries := make([]Entry, 0, len(second.Series))
	for _, s := range second.Series {
		p, ok := previous[s.Key]
		if !ok {
			continue
		}
		entry := Entry{Key: s.Key, Attrs: s.Attrs}
		prevCounters := make(map[string]Counter, len(p.Counters))
		for _, c := range p.Counters {
			prevCounters[c.Name] = c
		}
		for _, c := range s.Counters {
			pc, ok := prevCounters[c.Name]
			if !ok {
				continue
			}
			diff := c.Value - pc.Value
			if diff < 0 {
				diff = 0
			}
			switch c.Kind {
			case KindPerMinute:
				minutes := int64(elapsed / 60)
				if minutes < 1 {
					// Too little time passed for a whole-minute figure.
					continue
				}
				entry.Values = append(entry.Values, Value{Name: c.Name, Value: float64(int64(diff) / minutes)})
			case KindDelta:
				entry.Values = append(entry.Values, Value{Name: c.Name, Value: diff})
			default:
				entry.Values = append(entry.Values, Value{Name: c.Name, Value: diff / elapsed})
			}
		}
		for _, g := range s.Gauges {
			entry.Values = append(entry.Values, Value{Name: g.Name, Value: g.Value})
		}
		if len(entry.Values) == 0 {
			continue
		}
		entries = append(entries, entry)
	}

	return Metric{Timestamp: second.Timestamp, Elapsed: elapsed, Entries: entries}, nil
}

// FromSample derives a Metric directly from a single Sample. Used by sources
// whose readings are already absolute quantities and need no differencing.
func FromSample(sample Sample) Metric {
	entries := make([]Entry, 0, len(sample.Series))
	for _, s := range sample.Series {
		entry := Entry{Key: s.Key, Attrs: s.Attrs}
		for _, c := range s.Counters {
			entry.Values = append(entry.Values, Value{Name: c.Name, Value: c.Value})
		}
		for _, g := range s.Gauges {
			entry.Values = append(entry.Values, Value{Name: g.Name, Value: g.Value})
		}
		if len(entry.Values) == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	return Metric{Timestamp: sample.Timestamp, Entries: entries}
}
