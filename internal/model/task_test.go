package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyCheck() *HealthCheck {
	return &HealthCheck{
		Command:     []string{"CMD-SHELL", "curl -f http://localhost:11434/api/tags"},
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		Retries:     3,
		StartPeriod: 60 * time.Second,
	}
}

func twoContainerTask() TaskDefinition {
	return TaskDefinition{
		Family:      "trader",
		Revision:    1,
		NetworkMode: "awsvpc",
		ExecutionRole: Key{Type: "iam_role", Name: "task_exec"},
		TaskRole:      Key{Type: "iam_role", Name: "task"},
		Containers: []ContainerSpec{
			{
				Name:      "model-server",
				Image:     "registry.example/model:1",
				Essential: true,
				Health:    healthyCheck(),
			},
			{
				Name:      "app",
				Image:     "registry.example/app:1",
				Essential: true,
				DependsOn: []DependsOn{{Container: "model-server", Condition: ConditionHealthy}},
			},
		},
	}
}

func TestParseCondition(t *testing.T) {
	for _, valid := range []string{"START", "HEALTHY", "COMPLETE", "SUCCESS"} {
		c, err := ParseCondition(valid)
		require.NoError(t, err)
		assert.Equal(t, Condition(valid), c)
	}
	_, err := ParseCondition("healthy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "healthy")
}

func TestHealthCheck_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*HealthCheck)
		wantErr string
	}{
		{"valid", func(h *HealthCheck) {}, ""},
		{"no command", func(h *HealthCheck) { h.Command = nil }, "command"},
		{"zero interval", func(h *HealthCheck) { h.Interval = 0 }, "interval"},
		{"zero timeout", func(h *HealthCheck) { h.Timeout = 0 }, "timeout"},
		{"zero retries", func(h *HealthCheck) { h.Retries = 0 }, "retries"},
		{"negative start period", func(h *HealthCheck) { h.StartPeriod = -time.Second }, "start period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := healthyCheck()
			tt.mutate(h)
			err := h.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestContainerSpec_StartBudget(t *testing.T) {
	c := ContainerSpec{Name: "model-server", Health: healthyCheck()}
	// 60s start period + 3 x 30s interval.
	assert.Equal(t, 150*time.Second, c.StartBudget())

	noHealth := ContainerSpec{Name: "app"}
	assert.Equal(t, time.Duration(0), noHealth.StartBudget())
}

func TestTaskDefinition_Validate_OK(t *testing.T) {
	assert.NoError(t, twoContainerTask().Validate())
}

func TestTaskDefinition_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TaskDefinition)
		wantErr string
	}{
		{
			"duplicate container",
			func(td *TaskDefinition) { td.Containers[1].Name = "model-server" },
			"duplicate container",
		},
		{
			"unknown dependency",
			func(td *TaskDefinition) { td.Containers[1].DependsOn[0].Container = "ghost" },
			`unknown container "ghost"`,
		},
		{
			"self dependency",
			func(td *TaskDefinition) { td.Containers[1].DependsOn[0].Container = "app" },
			"depends on itself",
		},
		{
			"forward dependency",
			func(td *TaskDefinition) {
				td.Containers[0].DependsOn = []DependsOn{{Container: "app", Condition: ConditionStart}}
			},
			"later container",
		},
		{
			"healthy without health check",
			func(td *TaskDefinition) { td.Containers[0].Health = nil },
			"no health check",
		},
		{
			"invalid condition",
			func(td *TaskDefinition) { td.Containers[1].DependsOn[0].Condition = "READY" },
			"invalid container condition",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := twoContainerTask()
			tt.mutate(&td)
			err := td.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTaskDefinition_NewRevision_DoesNotMutateReceiver(t *testing.T) {
	td := twoContainerTask()
	next := td.NewRevision("registry.example/app:2@sha256:abc")

	assert.Equal(t, 2, next.Revision)
	assert.Equal(t, 1, td.Revision, "receiver revision must not change")
	for _, c := range next.Containers {
		assert.Equal(t, "registry.example/app:2@sha256:abc", c.Image)
	}
	assert.Equal(t, "registry.example/model:1", td.Containers[0].Image, "receiver containers must not change")
}

func TestTaskDefinition_Hash_IgnoresRevisionNumber(t *testing.T) {
	a := twoContainerTask()
	b := twoContainerTask()
	b.Revision = 7

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "revision number is identity, not payload")
}

func TestTaskDefinition_Hash_ChangesWithImage(t *testing.T) {
	a := twoContainerTask()
	b := a.NewRevision("registry.example/app:2")

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestServiceSpec_Validate(t *testing.T) {
	svc := ServiceSpec{Name: "trader", TaskFamily: "trader", DesiredCount: 1}
	assert.NoError(t, svc.Validate())

	svc.DesiredCount = 0
	err := svc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desired count")
}
