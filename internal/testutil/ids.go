package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable write ids for tests.
//
// Ids have the form "<prefix>-0001", "<prefix>-0002", ... so golden output
// and assertions do not depend on random UUIDs.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. If prefix is empty, "write" is used.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "write"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next id.
//
// Implements client.IDGenerator.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
