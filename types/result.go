package types

import "time"

// ResultStats aggregates scenario outcomes.
type ResultStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Errored int
}

// Add counts one scenario outcome.
func (s *ResultStats) Add(status ScenarioStatus) {
	s.Total++
	switch status {
	case ScenarioStatusPass:
		s.Passed++
	case ScenarioStatusFail:
		s.Failed++
	case ScenarioStatusSkip:
		s.Skipped++
	case ScenarioStatusError:
		s.Errored++
	}
}

// PassRate returns the fraction of non-skipped scenarios that passed.
func (s ResultStats) PassRate() float64 {
	ran := s.Total - s.Skipped
	if ran == 0 {
		return 0
	}
	return float64(s.Passed) / float64(ran)
}

// RunResult captures the outcome of one run of a suite.
type RunResult struct {
	RunID     string
	Suite     string
	Started   time.Time
	Duration  time.Duration
	Scenarios []*ScenarioResult
	Stats     ResultStats
}

// Status derives the overall outcome: error if any scenario errored,
// fail if any failed, pass otherwise.
func (r *RunResult) Status() ScenarioStatus {
	if r.Stats.Errored > 0 {
		return ScenarioStatusError
	}
	if r.Stats.Failed > 0 {
		return ScenarioStatusFail
	}
	return ScenarioStatusPass
}
