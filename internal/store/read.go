package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LookupWriteID returns the revision committed under writeID in the
// session. found is false when the write id was never journaled.
func (s *Store) LookupWriteID(ctx context.Context, sessionID, writeID string) (revision int64, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT revision FROM commits
		WHERE session_id = ? AND write_id = ?
	`, sessionID, writeID).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup write id: %w", err)
	}
	return revision, true, nil
}

// LoadSource returns the source committed at revision in the session.
func (s *Store) LoadSource(ctx context.Context, sessionID string, revision int64) (string, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT source FROM commits
		WHERE session_id = ? AND revision = ?
	`, sessionID, revision).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("load source: revision %d not journaled", revision)
	}
	if err != nil {
		return "", fmt.Errorf("load source: %w", err)
	}
	src, err := s.decompress(blob)
	if err != nil {
		return "", fmt.Errorf("load source: %w", err)
	}
	return string(src), nil
}

// History returns the most recent commits for the document at path across
// every session, oldest first. limit <= 0 returns all of them. Source is
// left empty; use LoadSource for the text.
//
// Returns an empty slice (not nil) if nothing was journaled.
func (s *Store) History(ctx context.Context, path string, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, revision, op, write_id, before_hash, after_hash, external, created_at
		FROM (
			SELECT c.* FROM commits c
			JOIN sessions s ON c.session_id = s.id
			WHERE s.path = ?
			ORDER BY c.seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	commits := []Commit{}
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return commits, nil
}

func scanCommit(rows *sql.Rows) (Commit, error) {
	var (
		c         Commit
		writeID   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&c.SessionID, &c.Revision, &c.Op, &writeID,
		&c.BeforeHash, &c.AfterHash, &c.External, &createdAt); err != nil {
		return Commit{}, fmt.Errorf("scan commit: %w", err)
	}
	c.WriteID = writeID.String
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Commit{}, fmt.Errorf("scan commit: created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}
