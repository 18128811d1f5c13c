package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore opens a journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession registers a session for path.
func createTestSession(t *testing.T, s *Store, id, path string) {
	t.Helper()
	if err := s.BeginSession(context.Background(), id, path, epoch); err != nil {
		t.Fatalf("BeginSession() failed: %v", err)
	}
}

// createTestCommit builds a commit with minimal required fields.
func createTestCommit(session string, rev int64, writeID, source string) Commit {
	return Commit{
		SessionID:  session,
		Revision:   rev,
		Op:         "setText",
		WriteID:    writeID,
		BeforeHash: "before",
		AfterHash:  "after",
		Source:     source,
		CreatedAt:  epoch.Add(time.Duration(rev) * time.Second),
	}
}
