// Package store provides SQLite-backed durable storage for field rotation
// state.
//
// The store keeps two tables:
//   - fields: one checkpoint per field (the two history slots and the seq of
//     the last event applied)
//   - events: append-only decision log of sowing checks and harvests
//
// # Critical Patterns
//
// Logical Time:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Checkpoints only move forward: a write with a lower seq is ignored
//
// Deterministic Query Results:
//   - Event queries use ORDER BY seq ASC, id ASC COLLATE BINARY
//
// Idempotency:
//   - Events are content-addressed (ir.EventID); duplicate appends are no-ops
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Events must reference an existing field
package store
