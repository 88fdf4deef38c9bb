// Package store provides SQLite-backed durable storage for Willow.
//
// Tables:
//   - bot_config: dynamic key-value configuration with change notification
//   - event_channels: day-of-week rotation schedule (7 rows at steady state)
//   - event_participants: per-day participation, UNIQUE on (date, member)
//   - support_channels: private support channel per member
//
// Scheduled-deletion state for the venting sweep is deliberately NOT
// persisted; the sweep's periodic rescan recovers it from channel history.
//
// # Self-healing schema
//
// The full schema is applied idempotently at Open. Additionally, any read or
// write that fails with a missing-table error re-applies the schema and
// retries once, so the store tolerates being queried before its backing
// schema exists (e.g. a database file swapped out from under a running
// process).
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - single connection: SQLite supports one writer at a time
package store
