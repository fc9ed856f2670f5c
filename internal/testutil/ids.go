package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs issues predictable subscriber IDs: "<prefix>-1", "<prefix>-2", ...
// It satisfies store.IDGenerator. Golden traces depend on it.
//
// An empty prefix defaults to "sub". Safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator with the given prefix.
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "sub"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
