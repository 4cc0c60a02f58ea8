package secret

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flotilla/internal/model"
)

func taskWithSecrets() model.TaskDefinition {
	return model.TaskDefinition{
		Family:   "trader",
		Revision: 1,
		Containers: []model.ContainerSpec{
			{
				Name:  "app",
				Image: "registry.sim/trader:1",
				Secrets: []model.SecretBinding{
					{Env: "API_KEY", Ref: "secret.trader_api_key"},
					{Env: "DB_PASSWORD", Ref: "secret.trader_db"},
				},
			},
		},
	}
}

func TestInjector_Inject_ResolvesAll(t *testing.T) {
	store := NewMemoryStore()
	store.Secrets["secret.trader_api_key"] = "tok-1"
	store.Secrets["secret.trader_db"] = "tok-2"

	resolved, err := NewInjector(store, nil).Inject(context.Background(), taskWithSecrets())
	require.NoError(t, err)
	require.Len(t, resolved["app"], 2)
	assert.Equal(t, "API_KEY", resolved["app"][0].Env)
	assert.Equal(t, "tok-1", resolved["app"][0].Handle.Token)
}

func TestInjector_Inject_NotFoundIsFatal(t *testing.T) {
	store := NewMemoryStore()
	store.Secrets["secret.trader_api_key"] = "tok-1"
	// secret.trader_db missing.

	_, err := NewInjector(store, nil).Inject(context.Background(), taskWithSecrets())
	require.Error(t, err)
	require.True(t, IsResolutionError(err))

	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CodeNotFound, re.Code)
	assert.Equal(t, "app", re.Container)
	assert.Equal(t, "DB_PASSWORD", re.Env)
	assert.Equal(t, "secret.trader_db", re.Ref)
}

func TestInjector_Inject_AccessDenied(t *testing.T) {
	store := NewMemoryStore()
	store.Secrets["secret.trader_api_key"] = "tok-1"
	store.Secrets["secret.trader_db"] = "tok-2"
	store.Denied["secret.trader_db"] = true

	_, err := NewInjector(store, nil).Inject(context.Background(), taskWithSecrets())
	require.Error(t, err)

	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CodeAccessDenied, re.Code)
}

func TestResolutionError_NeverLeaksToken(t *testing.T) {
	err := &ResolutionError{
		Code: CodeNotFound, Container: "app", Env: "API_KEY",
		Ref: "secret.trader_api_key", Err: fmt.Errorf("resolve: %w", ErrNotFound),
	}
	assert.NotContains(t, err.Error(), "tok-")
}

func TestHandle_StringRedactsToken(t *testing.T) {
	h := Handle{Ref: "secret.trader_api_key", Token: "super-secret-token"}
	assert.Equal(t, "secret.trader_api_key", h.String())
	assert.NotContains(t, fmt.Sprintf("%s", h), "super-secret-token")
}
