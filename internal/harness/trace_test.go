package harness

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCapturesAttrs(t *testing.T) {
	rec := NewRecorder()
	log := slog.New(rec)

	log.Info("reconcile", "stage", "apply", "resource", "network.main", "action", "create")
	log.Debug("secret resolved", "stage", "secrets", "ref", "secret.api_key")

	events := rec.Events()
	require.Len(t, events, 2)

	assert.Equal(t, "INFO", events[0].Level)
	assert.Equal(t, "reconcile", events[0].Message)
	assert.Equal(t, "apply", events[0].Stage())
	assert.Equal(t, "create", events[0].Attrs["action"])

	assert.Equal(t, "DEBUG", events[1].Level)
	assert.Equal(t, "secrets", events[1].Stage())
}

func TestRecorderBoundAttrs(t *testing.T) {
	rec := NewRecorder()
	log := slog.New(rec).With("stage", "rollout", "token", "ro-000001")

	log.Info("instance healthy", "instance", "web-ro-000001-0")

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "rollout", events[0].Stage())
	assert.Equal(t, "ro-000001", events[0].Attrs["token"])
	assert.Equal(t, "web-ro-000001-0", events[0].Attrs["instance"])
}

func TestEventMatches(t *testing.T) {
	ev := TraceEvent{
		Level:   "INFO",
		Message: "reconcile",
		Attrs:   map[string]string{"stage": "apply", "action": "create", "outcome": "applied"},
	}

	assert.True(t, ev.Matches("apply", nil))
	assert.True(t, ev.Matches("", map[string]string{"action": "create"}))
	assert.True(t, ev.Matches("apply", map[string]string{"outcome": "applied"}))
	assert.False(t, ev.Matches("rollout", nil))
	assert.False(t, ev.Matches("apply", map[string]string{"action": "delete"}))
}
