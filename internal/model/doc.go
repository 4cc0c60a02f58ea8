// Package model defines the typed resource model shared by every other
// package: provisionable resources and their attribute/reference graph,
// task definitions with per-container startup conditions, and the secret
// bindings attached to containers.
//
// Attribute values are a sealed interface (AttrValue) constrained to
// strings, integers, booleans, lists, maps, and cross-resource references.
// Floats are deliberately excluded - attribute sets are content-hashed for
// diffing, and float formatting breaks deterministic hashing.
//
// References (RefVal) point at another resource's output attribute, e.g.
// the generated ID of a network. The model only ever stores the reference;
// resolution against live attributes happens at apply time.
//
// Secret plaintext never enters the model. A SecretBinding carries the
// target environment variable name and the secret store reference; values
// are resolved to opaque runtime handles outside this package.
package model
