package reporting

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ska-telescope/ska-pss-protest/types"
)

// JSONSink exports the run results as machine-readable JSON for CI
// consumers.
type JSONSink struct {
	path    string
	results []jsonScenario
}

type jsonScenario struct {
	Suite         string        `json:"suite"`
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	Duration      time.Duration `json:"duration_ns"`
	TimedOut      bool          `json:"timed_out,omitempty"`
	Error         string        `json:"error,omitempty"`
	Vector        string        `json:"vector,omitempty"`
	ExitCode      int           `json:"exit_code"`
	Expected      int           `json:"expected"`
	Detections    int           `json:"detections"`
	NonDetections int           `json:"non_detections"`
}

type jsonRun struct {
	RunID     string            `json:"run_id"`
	Suite     string            `json:"suite"`
	Started   time.Time         `json:"started"`
	Duration  time.Duration     `json:"duration_ns"`
	Status    string            `json:"status"`
	Stats     types.ResultStats `json:"stats"`
	Scenarios []jsonScenario    `json:"scenarios"`
}

// NewJSONSink creates a sink writing to path.
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

// Consume records one scenario result.
func (s *JSONSink) Consume(result *types.ScenarioResult, runID string) error {
	entry := jsonScenario{
		Suite:         result.Metadata.Suite,
		ID:            result.Metadata.ID,
		Status:        string(result.Status),
		Duration:      result.Duration,
		TimedOut:      result.TimedOut,
		Vector:        result.VectorPath,
		ExitCode:      result.ExitCode,
		Expected:      result.Expected,
		Detections:    result.Detections,
		NonDetections: result.NonDetections,
	}
	if result.Error != nil {
		entry.Error = result.Error.Error()
	}
	s.results = append(s.results, entry)
	return nil
}

// Complete writes the JSON export.
func (s *JSONSink) Complete(run *types.RunResult) error {
	out := jsonRun{
		RunID:     run.RunID,
		Suite:     run.Suite,
		Started:   run.Started,
		Duration:  run.Duration,
		Status:    string(run.Status()),
		Stats:     run.Stats,
		Scenarios: s.results,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
