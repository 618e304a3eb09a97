// Package store provides SQLite-backed history of scenario runs.
//
// Each run is one row in runs plus one row per step in run_steps. Runs are
// identified by a UUIDv7 string and ordered by seq, the insertion counter,
// so listings do not depend on wall-clock timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce step to run references
//
// Writes are idempotent on the run ID: recording the same run twice keeps
// the first copy.
package store
