package source

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

const tableSizeQuery = `
SELECT c.relname, c.reltuples, pg_total_relation_size(c.oid) AS total_bytes
  FROM pg_class c
  LEFT JOIN pg_namespace n ON n.oid = c.relnamespace
 WHERE c.relkind = 'r'
   AND c.relname NOT LIKE 'pg\_%'
   AND c.relname NOT LIKE 'sql\_%'`

// Postgres reads database-wide tuple counters and per-table size estimates
// from the monitored database's catalog. Tuple counters are recorded as plain
// interval deltas; table figures are absolute. Disabled when no database name
// is configured or no database connection exists.
type Postgres struct {
	db       *sql.DB
	database string
}

func NewPostgres(db *sql.DB, database string) *Postgres {
	return &Postgres{db: db, database: database}
}

func (s *Postgres) Name() string { return "postgres" }

func (s *Postgres) Acquire(ctx context.Context) (metric.Sample, error) {
	if s.db == nil || s.database == "" {
		return metric.Sample{}, apperrors.ErrNotConfigured
	}

	timestamp := now()

	var returned, fetched, inserted, updated, deleted int64
	row := s.db.QueryRowContext(ctx,
		"SELECT tup_returned, tup_fetched, tup_inserted, tup_updated, tup_deleted FROM pg_stat_database WHERE datname = $1",
		s.database)
	if err := row.Scan(&returned, &fetched, &inserted, &updated, &deleted); err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	sample := metric.Sample{
		Timestamp: timestamp,
		Series: []metric.Series{{
			Key:   s.database,
			Attrs: map[string]string{"kind": "database"},
			Counters: []metric.Counter{
				{Name: "returned", Value: float64(returned), Kind: metric.KindDelta},
				{Name: "fetched", Value: float64(fetched), Kind: metric.KindDelta},
				{Name: "inserted", Value: float64(inserted), Kind: metric.KindDelta},
				{Name: "updated", Value: float64(updated), Kind: metric.KindDelta},
				{Name: "deleted", Value: float64(deleted), Kind: metric.KindDelta},
			},
		}},
	}

	rows, err := s.db.QueryContext(ctx, tableSizeQuery)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var table string
		var rowEstimate float64
		var totalBytes int64
		if err := rows.Scan(&table, &rowEstimate, &totalBytes); err != nil {
			return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
		}
		sample.Series = append(sample.Series, metric.Series{
			Key:   table,
			Attrs: map[string]string{"kind": "table"},
			Gauges: []metric.Gauge{
				{Name: "rows", Value: rowEstimate},
				{Name: "total_bytes", Value: float64(totalBytes)},
			},
		})
	}
	if err := rows.Err(); err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	return sample, nil
}
