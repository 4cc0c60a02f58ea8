package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix is the environment variable prefix EnvStore reads.
const DefaultEnvPrefix = "FLOTILLA_SECRET_"

// EnvStore resolves secret references from process environment
// variables. The conventional "secret." namespace is dropped, the rest
// is uppercased with non-alphanumerics mapped to underscores, and the
// prefix is prepended: "secret.trader_api_key" resolves from
// FLOTILLA_SECRET_TRADER_API_KEY. This is the CLI's local-mode store; a
// real deployment would back the same interface with a secrets manager.
type EnvStore struct {
	// Prefix overrides DefaultEnvPrefix when non-empty.
	Prefix string
}

// Resolve implements Store.
func (e EnvStore) Resolve(ctx context.Context, ref string) (Handle, error) {
	name := e.varName(ref)
	value, ok := os.LookupEnv(name)
	if !ok {
		return Handle{}, fmt.Errorf("resolve %q (env %s): %w", ref, name, ErrNotFound)
	}
	return Handle{Ref: ref, Token: value}, nil
}

func (e EnvStore) varName(ref string) string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, strings.TrimPrefix(ref, "secret."))
	return prefix + mapped
}
