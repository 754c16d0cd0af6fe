package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator numbers field ids from 1: "field-0001", "field-0002", ...
//
// Unlike engine.FixedGenerator it never runs out, so scenarios can create as
// many fields as they like and still produce byte-identical traces.
//
// Implements engine.FieldIDGenerator.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator with the given prefix.
// An empty prefix defaults to "field".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "field"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
