package testutil

import "fmt"

// SequencedTokenGenerator returns predictable deployment tokens for
// tests: "test-deploy-000001", "test-deploy-000002", and so on.
//
// The same scenario with the same generator produces byte-identical
// event logs and golden files.
//
// Not safe for concurrent use; drive it from a single test goroutine.
type SequencedTokenGenerator struct {
	prefix string
	seq    int
}

// NewSequencedTokenGenerator creates a generator with the given prefix.
// An empty prefix defaults to "test-deploy".
func NewSequencedTokenGenerator(prefix string) *SequencedTokenGenerator {
	if prefix == "" {
		prefix = "test-deploy"
	}
	return &SequencedTokenGenerator{prefix: prefix}
}

// Generate returns the next token in sequence.
func (g *SequencedTokenGenerator) Generate() string {
	g.seq++
	return fmt.Sprintf("%s-%06d", g.prefix, g.seq)
}
