package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ska-telescope/ska-pss-protest/types"
)

const (
	MetricsNamespace = "protest"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of executed scenarios",
	}, []string{
		"suite",
		"run_id",
		"scenario",
		"result",
	})

	pulsesExpected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pulses_expected",
		Help:      "Number of pulses expected to be recovered per scenario",
	}, []string{
		"suite",
		"run_id",
		"scenario",
	})

	pulsesDetected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pulses_detected",
		Help:      "Number of expected pulses recovered per scenario",
	}, []string{
		"suite",
		"run_id",
		"scenario",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of suite runs",
	}, []string{
		"suite",
		"run_id",
		"result",
	})

	runScenarioCounts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_counts",
		Help:      "Scenario counts per run by outcome",
	}, []string{
		"suite",
		"run_id",
		"outcome",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of suite runs",
	}, []string{
		"suite",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

// RecordError counts an operational error.
func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	RecordError(fmt.Sprintf("%s.%s", label, errToLabel(err)))
}

// RecordScenario records the outcome of a single scenario.
func RecordScenario(suite, runID string, result *types.ScenarioResult) {
	scenariosTotal.WithLabelValues(suite, runID, result.Metadata.ID, string(result.Status)).Inc()
	if result.Expected > 0 {
		pulsesExpected.WithLabelValues(suite, runID, result.Metadata.ID).Set(float64(result.Expected))
		pulsesDetected.WithLabelValues(suite, runID, result.Metadata.ID).Set(float64(result.Detections))
	}
}

// RecordRun records the aggregate outcome of a suite run.
func RecordRun(run *types.RunResult, duration time.Duration) {
	runResults.WithLabelValues(run.Suite, run.RunID, string(run.Status())).Set(1)
	runDuration.WithLabelValues(run.Suite, run.RunID).Set(duration.Seconds())

	counts := map[string]int{
		"total":   run.Stats.Total,
		"passed":  run.Stats.Passed,
		"failed":  run.Stats.Failed,
		"errored": run.Stats.Errored,
		"skipped": run.Stats.Skipped,
	}
	for outcome, n := range counts {
		runScenarioCounts.WithLabelValues(run.Suite, run.RunID, outcome).Set(float64(n))
	}
}
