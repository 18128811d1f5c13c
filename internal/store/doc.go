// Package store provides the SQLite-backed commit journal of a livedoc
// session.
//
// Every committed revision of a document is appended as one row:
//   - Commits: revision, operation, write id, before/after hashes, and the
//     zstd-compressed source that was written to disk
//
// # Invariants
//
// Revisions are keyed by (session_id, revision). A session id is minted per
// process start, so the in-memory revision counter can restart at 1 without
// colliding with earlier runs of the same document.
//
// Write ids are unique per session. AppendCommit ignores a duplicate write id
// (ON CONFLICT DO NOTHING) and LookupWriteID returns the original revision,
// which is how a retried transform is answered without a second commit.
//
// History is ordered by created sequence (rowid), never by wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
