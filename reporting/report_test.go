package reporting

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ska-telescope/ska-pss-protest/types"
)

func sampleRun() *types.RunResult {
	run := &types.RunResult{
		RunID:    "7c2254a8-1111-2222-3333-444455556666",
		Suite:    "sps-mid",
		Started:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Duration: 95 * time.Second,
	}

	pass := &types.ScenarioResult{
		Metadata:   types.ScenarioMetadata{ID: "sps-detect-msp", Suite: "sps-mid"},
		Status:     types.ScenarioStatusPass,
		Duration:   40 * time.Second,
		Expected:   60,
		Detections: 60,
	}
	fail := &types.ScenarioResult{
		Metadata:      types.ScenarioMetadata{ID: "sps-detect-weak", Suite: "sps-mid"},
		Status:        types.ScenarioStatusFail,
		Duration:      55 * time.Second,
		Error:         errors.New("3 expected pulses not recovered"),
		Expected:      60,
		Detections:    57,
		NonDetections: 3,
	}

	run.Scenarios = []*types.ScenarioResult{pass, fail}
	run.Stats.Add(pass.Status)
	run.Stats.Add(fail.Status)
	return run
}

func TestFormatResultsTable(t *testing.T) {
	out := FormatResultsTable(sampleRun())

	assert.Contains(t, out, "sps-detect-msp")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "sps-detect-weak")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "2 scenarios")
}

func TestTextSummarySink(t *testing.T) {
	run := sampleRun()
	path := filepath.Join(t.TempDir(), "summary.txt")
	sink := NewTextSummarySink(path)

	for _, res := range run.Scenarios {
		require.NoError(t, sink.Consume(res, run.RunID))
	}
	require.NoError(t, sink.Complete(run))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	summary := string(data)

	assert.Contains(t, summary, "Suite:    sps-mid")
	assert.Contains(t, summary, "FAIL (1 passed, 1 failed, 0 errored, 0 skipped)")
	assert.Contains(t, summary, "detected 60/60 pulses")
	assert.Contains(t, summary, "3 expected pulses not recovered")
}

func TestJSONSink(t *testing.T) {
	run := sampleRun()
	path := filepath.Join(t.TempDir(), "results.json")
	sink := NewJSONSink(path)

	for _, res := range run.Scenarios {
		require.NoError(t, sink.Consume(res, run.RunID))
	}
	require.NoError(t, sink.Complete(run))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "fail", decoded["status"])
	assert.Equal(t, "sps-mid", decoded["suite"])
	scenarios := decoded["scenarios"].([]any)
	require.Len(t, scenarios, 2)
	first := scenarios[0].(map[string]any)
	assert.Equal(t, "sps-detect-msp", first["id"])
	assert.Equal(t, "pass", first["status"])
}
