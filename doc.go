// Package agent implements a host telemetry agent that periodically samples
// operating-system and application counters and persists them in PostgreSQL.
//
// The agent polls a fixed set of sources on a uniform interval: CPU time,
// memory and swap, load average, disk I/O, filesystem usage, network
// interfaces, Docker container statistics, nginx handled requests and
// PostgreSQL internals. Cumulative counters are differenced into
// per-interval rates; sources whose readings are already absolute report
// them directly.
//
// Features:
//   - uniform collector lifecycle (collect, save, encode, cleanup)
//   - per-collector failure isolation: one source's outage never blocks
//     another source's data
//   - storage liveness checks with a single reconnect attempt; a failed
//     reconnect terminates the process for a supervisor restart
//   - age-based retention pruning on a reduced cadence
//   - read-only debug HTTP endpoint exposing the latest metric per source
//   - configuration via command-line flags and environment variables
//
// Optional sources (nginx, postgres) stay disabled until configured and are
// never treated as failures.
package agent
