package rollout

import "github.com/google/uuid"

// TokenGenerator produces opaque tokens that tie together the events and
// instance IDs of one rollout or deployment.
type TokenGenerator interface {
	Generate() string
}

// UUIDTokenGenerator generates UUIDv7 tokens. Time-ordered, so tokens
// sort by creation time in logs and history listings.
type UUIDTokenGenerator struct{}

// Generate implements TokenGenerator.
func (UUIDTokenGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
