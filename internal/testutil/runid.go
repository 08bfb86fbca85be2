package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDs generates predictable run IDs: "<prefix>-1", "<prefix>-2", ...
//
// This keeps distribution logs and scenario snapshots byte-identical across
// runs.
//
// Thread-safety: FixedRunIDs is safe for concurrent use via internal mutex.
type FixedRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedRunIDs creates a generator. If prefix is empty, "test-run" is used.
func NewFixedRunIDs(prefix string) *FixedRunIDs {
	if prefix == "" {
		prefix = "test-run"
	}
	return &FixedRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
//
// Implements points.RunIDGenerator interface.
func (g *FixedRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
