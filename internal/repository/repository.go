// Package repository implements the persistence adapters metrics are written
// through: a PostgreSQL storage and an in-memory storage used when no
// database is configured and in tests.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hostmetry/agent/internal/metric"
)

// Repository is the storage surface shared by the scheduler and every
// collector. Each AppendEntry call is one self-contained statement; no
// transaction spans collectors.
type Repository interface {
	AppendEntry(ctx context.Context, hostname, source string, recordedAt time.Time, entry metric.Entry) error
	PurgeOlderThan(ctx context.Context, hostname, source string, cutoff time.Time) error
	Ping(ctx context.Context) error
	Close() error
}

// IsConnectionError reports whether the error indicates a lost or unusable
// database connection rather than a statement-level failure.
func IsConnectionError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout")
}
