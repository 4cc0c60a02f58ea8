package secret

import (
	"context"
	"fmt"
)

// MemoryStore is an in-memory secret store for local mode and tests.
// References map to tokens; Denied marks references the caller may not
// read.
type MemoryStore struct {
	Secrets map[string]string
	Denied  map[string]bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Secrets: make(map[string]string), Denied: make(map[string]bool)}
}

// Resolve implements Store.
func (m *MemoryStore) Resolve(ctx context.Context, ref string) (Handle, error) {
	if m.Denied[ref] {
		return Handle{}, fmt.Errorf("resolve %q: %w", ref, ErrAccessDenied)
	}
	token, ok := m.Secrets[ref]
	if !ok {
		return Handle{}, fmt.Errorf("resolve %q: %w", ref, ErrNotFound)
	}
	return Handle{Ref: ref, Token: token}, nil
}
