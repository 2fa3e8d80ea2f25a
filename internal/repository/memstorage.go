package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hostmetry/agent/internal/metric"
)

// Row is one persisted metric value.
type Row struct {
	Hostname   string
	Source     string
	Series     string
	RecordedAt time.Time
	Field      string
	Value      float64
	Labels     map[string]string
}

// MemStorage keeps metric rows in memory. Used when the agent runs without a
// database and as the storage fake in tests. Collectors append entries
// concurrently, so access is guarded.
type MemStorage struct {
	mu   sync.Mutex
	rows []Row
}

func NewMemStorage() *MemStorage {
	return &MemStorage{}
}

func (ms *MemStorage) AppendEntry(ctx context.Context, hostname, source string, recordedAt time.Time, entry metric.Entry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, v := range entry.Values {
		ms.rows = append(ms.rows, Row{
			Hostname:   hostname,
			Source:     source,
			Series:     entry.Key,
			RecordedAt: recordedAt,
			Field:      v.Name,
			Value:      v.Value,
			Labels:     entry.Attrs,
		})
	}
	return nil
}

func (ms *MemStorage) PurgeOlderThan(ctx context.Context, hostname, source string, cutoff time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	kept := ms.rows[:0]
	for _, row := range ms.rows {
		if row.Hostname == hostname && row.Source == source && row.RecordedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, row)
	}
	ms.rows = kept
	return nil
}

func (ms *MemStorage) Ping(ctx context.Context) error {
	return nil
}

func (ms *MemStorage) Close() error {
	return nil
}

// Rows returns a copy of all stored rows.
func (ms *MemStorage) Rows() []Row {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	rows := make([]Row, len(ms.rows))
	copy(rows, ms.rows)
	return rows
}

// RowsBySource returns a copy of the rows persisted for one source.
func (ms *MemStorage) RowsBySource(source string) []Row {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var rows []Row
	for _, row := range ms.rows {
		if row.Source == source {
			rows = append(rows, row)
		}
	}
	return rows
}
