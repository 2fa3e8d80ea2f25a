package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// DBStorage persists metric rows in PostgreSQL. One row per entry value in
// the metric_points table.
type DBStorage struct {
	db *sql.DB
}

func NewDBStorage(dsn string) (*DBStorage, error) {
	dbConnect, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	return &DBStorage{db: dbConnect}, nil
}

func (storage *DBStorage) Close() error {
	return storage.db.Close()
}

// AppendEntry writes every value of the entry as one multi-row insert.
func (storage *DBStorage) AppendEntry(ctx context.Context, hostname, source string, recordedAt time.Time, entry metric.Entry) error {
	if len(entry.Values) == 0 {
		return nil
	}

	var labels []byte
	if len(entry.Attrs) > 0 {
		var err error
		labels, err = json.Marshal(entry.Attrs)
		if err != nil {
			return fmt.Errorf("error marshalling entry labels: %w", err)
		}
	}

	var query strings.Builder
	query.WriteString("INSERT INTO metric_points (hostname, source, series, recorded_at, field, value, labels) VALUES ")
	args := make([]any, 0, len(entry.Values)*7)
	for i, v := range entry.Values {
		if i > 0 {
			query.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&query, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, hostname, source, entry.Key, recordedAt, v.Name, v.Value, labels)
	}

	if _, err := storage.db.ExecContext(ctx, query.String(), args...); err != nil {
		if IsConnectionError(err) {
			return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("error saving metric rows: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes this host's rows of the source older than cutoff.
// Scoped to the hostname so agents sharing one database with different
// retention settings never prune each other's rows. Idempotent and safe when
// no rows match.
func (storage *DBStorage) PurgeOlderThan(ctx context.Context, hostname, source string, cutoff time.Time) error {
	query := "DELETE FROM metric_points WHERE hostname = $1 AND source = $2 AND recorded_at < $3"
	if _, err := storage.db.ExecContext(ctx, query, hostname, source, cutoff); err != nil {
		if IsConnectionError(err) {
			return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("error purging metric rows: %w", err)
	}
	return nil
}

func (storage *DBStorage) Ping(ctx context.Context) error {
	if err := storage.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}
