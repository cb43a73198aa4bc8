package reporting

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ska-telescope/ska-pss-protest/types"
)

// TextSummarySink writes a human-readable summary of the run to a file.
type TextSummarySink struct {
	path  string
	lines []string
}

// NewTextSummarySink creates a sink writing to path.
func NewTextSummarySink(path string) *TextSummarySink {
	return &TextSummarySink{path: path}
}

// Consume records one scenario result.
func (s *TextSummarySink) Consume(result *types.ScenarioResult, runID string) error {
	line := fmt.Sprintf("%s/%s: %s (%s)",
		result.Metadata.Suite, result.Metadata.ID,
		statusText(result.Status), formatDuration(result.Duration))
	if result.Expected > 0 {
		line += fmt.Sprintf(", detected %d/%d pulses", result.Detections, result.Expected)
	}
	if result.TimedOut {
		line += ", cheetah timed out"
	}
	if result.Error != nil {
		line += fmt.Sprintf(": %v", result.Error)
	}
	s.lines = append(s.lines, line)
	return nil
}

// Complete writes the summary file.
func (s *TextSummarySink) Complete(run *types.RunResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ProTest run %s\n", run.RunID)
	fmt.Fprintf(&b, "Suite:    %s\n", run.Suite)
	fmt.Fprintf(&b, "Started:  %s\n", run.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(run.Duration))
	fmt.Fprintf(&b, "Result:   %s (%d passed, %d failed, %d errored, %d skipped)\n\n",
		statusText(run.Status()), run.Stats.Passed, run.Stats.Failed,
		run.Stats.Errored, run.Stats.Skipped)

	for _, line := range s.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	return os.WriteFile(s.path, []byte(b.String()), 0o644)
}
