// Package testutil provides deterministic helpers shared by backend tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable UUID-shaped identifiers for tests.
//
// The first call to Generate returns "00000000-0000-0000-0000-000000000001",
// the second "...0002", and so on, so golden output does not depend on
// random UUIDs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialIDs creates a generator starting at 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Generate returns the next identifier.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.seq)
}

// Reset restarts the sequence for test reuse.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
