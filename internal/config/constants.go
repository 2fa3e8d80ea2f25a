// Package config loads the agent configuration from command-line flags and
// environment variables.
package config

import "time"

const (
	// DefaultReportInterval is the polling cadence when none is configured.
	DefaultReportInterval = 60 * time.Second

	// DefaultMaxMetricAge is the retention horizon when none is configured:
	// persisted rows older than this are pruned. Two weeks.
	DefaultMaxMetricAge = 14 * 24 * time.Hour

	// DefaultCleanupEveryNCycles spaces retention cleanup runs: once per this
	// many polling cycles.
	DefaultCleanupEveryNCycles = 100

	// DefaultDebugAddress is the listen address of the read-only debug
	// endpoint.
	DefaultDebugAddress = "localhost:8090"
)
