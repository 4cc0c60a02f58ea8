package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flotilla/internal/state"
)

// Snapshot is the golden-file projection of a result: step results and
// the final recorded state. The raw trace is excluded; its volume
// depends on poll cadence and would drown the signal, and trace
// assertions cover it directly.
type Snapshot struct {
	Scenario        string                       `json:"scenario"`
	Steps           []StepResult                 `json:"steps"`
	FinalGeneration state.Generation             `json:"final_generation"`
	FinalState      map[string]map[string]string `json:"final_state"`
}

// RunWithGolden executes a scenario, fails the test on any expect or
// assertion violation, and compares the outcome snapshot against
// testdata/golden/<scenario-name>.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	snapshot := Snapshot{
		Scenario:        scenario.Name,
		Steps:           result.Steps,
		FinalGeneration: result.FinalGeneration,
		FinalState:      result.FinalState,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}
