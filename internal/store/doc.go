// Package store provides the SQLite-backed invocation journal.
//
// The journal is an append-only record of engine bus events with:
//   - Events: every published event, keyed by its logical sequence number
//   - Invocations: one row per invocation, opened by invocation.started and
//     closed by the terminal event
//   - Plans: the fingerprint and description of each compiled class
//
// # Ordering
//
// All ordering uses the seq column (the engine's logical clock), never
// timestamps. Queries order by seq ASC, so reading a journal twice yields the
// same result.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
