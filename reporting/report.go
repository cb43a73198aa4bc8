// Package reporting renders run results for people (console table,
// summary file) and machines (JSON export).
package reporting

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ska-telescope/ska-pss-protest/types"
)

// ResultSink consumes the results of a run.
type ResultSink interface {
	// Consume processes a single scenario result
	Consume(result *types.ScenarioResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(run *types.RunResult) error
}

// statusText maps a scenario status to its display form.
func statusText(status types.ScenarioStatus) string {
	switch status {
	case types.ScenarioStatusPass:
		return "PASS"
	case types.ScenarioStatusFail:
		return "FAIL"
	case types.ScenarioStatusSkip:
		return "SKIP"
	case types.ScenarioStatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// FormatResultsTable renders a run as a console table.
func FormatResultsTable(run *types.RunResult) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Suite %s (run %s)", run.Suite, run.RunID))
	t.AppendHeader(table.Row{"Scenario", "Status", "Duration", "Detected", "Missed", "Error"})

	for _, res := range run.Scenarios {
		errMsg := ""
		if res.Error != nil {
			errMsg = res.Error.Error()
		}
		t.AppendRow(table.Row{
			res.Metadata.ID,
			statusText(res.Status),
			formatDuration(res.Duration),
			res.Detections,
			res.NonDetections,
			text.WrapSoft(errMsg, 40),
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d scenarios", run.Stats.Total),
		statusText(run.Status()),
		formatDuration(run.Duration),
		"", "", "",
	})
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	return t.Render()
}
