package types

import (
	"strings"
	"time"
)

// ScenarioStatus represents the possible outcomes of a scenario run
type ScenarioStatus string

const (
	ScenarioStatusPass  ScenarioStatus = "pass"
	ScenarioStatusFail  ScenarioStatus = "fail"
	ScenarioStatusSkip  ScenarioStatus = "skip"
	ScenarioStatusError ScenarioStatus = "error"
)

// ScenarioMetadata describes a single product-test scenario: which cheetah
// launcher and pipeline to run, which test vector to feed it, how to edit
// the configuration template, and how to judge the data products.
type ScenarioMetadata struct {
	ID          string
	Suite       string
	Description string
	Tags        []string

	Launcher string // cheetah_pipeline, cheetah_emulator, cheetah_candidate_pipeline
	Pipeline string // e.g. SinglePulse, Fdas
	Source   string // e.g. sigproc, udp
	Template string // path to the XML configuration template

	Vector     VectorSpec
	Overrides  map[string]string // XML tag path -> value
	Validation ValidationSpec

	Timeout time.Duration
	Debug   bool // pass --log-level=debug to cheetah
}

// HasTag reports whether the scenario carries the given tag.
func (m ScenarioMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// VectorSpec identifies a test vector either by exact filename or by the
// signal properties the vector server should match.
type VectorSpec struct {
	Name string `yaml:"name,omitempty"`

	Type  string  `yaml:"type,omitempty"`
	Freq  float64 `yaml:"freq,omitempty"`
	Duty  float64 `yaml:"duty,omitempty"`
	DM    float64 `yaml:"dm,omitempty"`
	Accel float64 `yaml:"accel,omitempty"`
	Shape string  `yaml:"shape,omitempty"`
	SN    float64 `yaml:"sn,omitempty"`
	RFI   string  `yaml:"rfi,omitempty"`

	// Refresh forces a fresh download even when the vector is cached.
	Refresh bool `yaml:"refresh,omitempty"`
}

// ByName reports whether the vector is pinned to an exact filename.
func (v VectorSpec) ByName() bool { return v.Name != "" }

// Validation kinds understood by the runner.
const (
	ValidateSPS    = "sps"
	ValidateFDAS   = "fdas"
	ValidateIngest = "ingest"
)

// ValidationSpec controls how the data products of a scenario are compared
// against the ground truth encoded in the test-vector name.
type ValidationSpec struct {
	Kind    string `yaml:"kind"`
	Ruleset string `yaml:"ruleset,omitempty"` // sps: widthstep|dm, fdas: basic|dummy

	// SNThreshold is the fraction of the injected S/N a detection must
	// retain. Zero means the default of 0.85.
	SNThreshold float64 `yaml:"sn_threshold,omitempty"`

	// Widths lists the boxcar matched-filter widths (in bins) searched by
	// the SPS algorithm; used by the widthstep ruleset.
	Widths []int `yaml:"widths,omitempty"`

	// DDSamples is the dedispersion buffer length in samples. Candidates
	// expected in the final buffer are not required to be detected.
	DDSamples int `yaml:"dd_samples,omitempty"`

	// CompareData enables the bitwise comparison of the exported candidate
	// filterbank against the input vector.
	CompareData bool `yaml:"compare_data,omitempty"`

	// CheckHeaders enables the candidate filterbank header consistency
	// checks against the input vector.
	CheckHeaders bool `yaml:"check_headers,omitempty"`
}

// ScenarioResult captures the outcome of a single scenario run
type ScenarioResult struct {
	Metadata ScenarioMetadata
	Status   ScenarioStatus
	Error    error
	Duration time.Duration
	TimedOut bool

	VectorPath string // local path of the test vector used
	WorkDir    string // directory holding the scenario's data products
	ExitCode   int    // cheetah exit code

	// Detection bookkeeping (SPS: pulses, FDAS: 0 or 1).
	Expected      int
	Detections    int
	NonDetections int
}
