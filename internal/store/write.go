package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Commit is one journal row.
type Commit struct {
	SessionID  string
	Revision   int64
	Op         string
	WriteID    string
	BeforeHash string
	AfterHash  string
	External   bool
	Source     string
	CreatedAt  time.Time
}

// BeginSession records a session for the document at path.
// Uses ON CONFLICT(id) DO NOTHING; reopening the same session is a no-op.
func (s *Store) BeginSession(ctx context.Context, id, path string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, path, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, path, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// AppendCommit inserts c. It reports inserted=false when the revision or
// the write id is already journaled for the session; the existing row is
// left untouched.
//
// Note: the session referenced by SessionID must exist (foreign key constraint).
func (s *Store) AppendCommit(ctx context.Context, c Commit) (inserted bool, err error) {
	blob := s.compress([]byte(c.Source))

	var writeID sql.NullString
	if c.WriteID != "" {
		writeID = sql.NullString{String: c.WriteID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO commits
		(session_id, revision, op, write_id, before_hash, after_hash, external, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		c.SessionID,
		c.Revision,
		c.Op,
		writeID,
		c.BeforeHash,
		c.AfterHash,
		c.External,
		blob,
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("append commit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append commit: rows affected: %w", err)
	}
	return n > 0, nil
}
