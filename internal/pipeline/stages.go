package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/flotilla/internal/model"
)

// Builder produces a locally tagged container image for the stack's task
// containers. The pipeline only forwards the returned tag.
type Builder interface {
	Build(ctx context.Context, stack model.Stack) (string, error)
}

// ImageRegistry publishes a local image and returns the immutable
// reference (digest-pinned) the task definition revision will run.
type ImageRegistry interface {
	Publish(ctx context.Context, image string) (string, error)
}

// Verifier checks that the service's externally reachable endpoint
// responds after rollout.
type Verifier interface {
	Verify(ctx context.Context, endpoint string) error
}

// MemoryBuilder is a deterministic builder for local mode and tests.
type MemoryBuilder struct {
	mu     sync.Mutex
	Fail   error
	builds []string
}

// Build implements Builder.
func (b *MemoryBuilder) Build(ctx context.Context, stack model.Stack) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return "", b.Fail
	}
	image := fmt.Sprintf("local/%s:%d", stack.Name, len(b.builds)+1)
	b.builds = append(b.builds, image)
	return image, nil
}

// Builds returns the images built so far.
func (b *MemoryBuilder) Builds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.builds))
	copy(out, b.builds)
	return out
}

// MemoryRegistry is a deterministic image registry for local mode and
// tests. Published references are digest-shaped but sequential.
type MemoryRegistry struct {
	mu        sync.Mutex
	Fail      error
	published []string
}

// Publish implements ImageRegistry.
func (r *MemoryRegistry) Publish(ctx context.Context, image string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return "", r.Fail
	}
	ref := fmt.Sprintf("registry.sim/%s@sha256:%064d", image, len(r.published)+1)
	r.published = append(r.published, ref)
	return ref, nil
}

// Published returns the references published so far.
func (r *MemoryRegistry) Published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.published))
	copy(out, r.published)
	return out
}

// MemoryVerifier records verified endpoints.
type MemoryVerifier struct {
	mu        sync.Mutex
	Fail      error
	endpoints []string
}

// Verify implements Verifier.
func (v *MemoryVerifier) Verify(ctx context.Context, endpoint string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Fail != nil {
		return v.Fail
	}
	v.endpoints = append(v.endpoints, endpoint)
	return nil
}

// Verified returns the endpoints verified so far.
func (v *MemoryVerifier) Verified() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.endpoints))
	copy(out, v.endpoints)
	return out
}
