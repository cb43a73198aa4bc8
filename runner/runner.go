// Package runner executes the scenarios of a suite: it resolves each
// scenario's test vector, generates the cheetah configuration, runs the
// pipeline and validates its data products.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ska-telescope/ska-pss-protest/cheetah"
	"github.com/ska-telescope/ska-pss-protest/fil"
	"github.com/ska-telescope/ska-pss-protest/logging"
	"github.com/ska-telescope/ska-pss-protest/registry"
	"github.com/ska-telescope/ska-pss-protest/reporting"
	"github.com/ska-telescope/ska-pss-protest/types"
	"github.com/ska-telescope/ska-pss-protest/validation"
	"github.com/ska-telescope/ska-pss-protest/vectors"
)

// defaultSNThreshold is the fraction of the injected S/N a detection
// must retain when the plan does not set one.
const defaultSNThreshold = 0.85

// Config holds runner configuration
type Config struct {
	Registry   *registry.Registry
	Fetcher    *vectors.Fetcher
	Suite      string
	CheetahDir string
	OutDir     string
	Keep       bool
	Reduce     bool
	Log        *clog.Logger
}

// SuiteRunner executes one complete suite run.
type SuiteRunner interface {
	RunSuite(ctx context.Context) (*types.RunResult, error)
}

var _ SuiteRunner = (*Runner)(nil)

// Runner runs the scenarios of one suite.
type Runner struct {
	config Config
	tracer trace.Tracer
	log    *clog.Logger
}

// NewRunner creates a new Runner instance
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("vector fetcher is required")
	}
	if cfg.Suite == "" {
		return nil, fmt.Errorf("suite is required")
	}
	if cfg.Log == nil {
		cfg.Log = clog.DefaultLogger()
	}

	return &Runner{
		config: cfg,
		tracer: otel.Tracer("scenario runner"),
		log:    cfg.Log,
	}, nil
}

// RunSuite executes every selected scenario of the configured suite,
// writing the run directory with per-scenario products, a summary file
// and a JSON export.
func (r *Runner) RunSuite(ctx context.Context) (*types.RunResult, error) {
	runID := uuid.New().String()
	started := time.Now()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", r.config.Suite))
	defer span.End()

	scenarios := r.config.Registry.GetScenariosBySuite(r.config.Suite)
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("suite %q selects no scenarios", r.config.Suite)
	}

	runDir, err := logging.NewRunDir(r.config.OutDir, runID, started)
	if err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	r.log.Infof("Run %s writing to %s", runID, runDir.Dir())

	sinks := []reporting.ResultSink{
		reporting.NewTextSummarySink(runDir.SummaryFile()),
		reporting.NewJSONSink(runDir.ResultsFile()),
	}

	run := &types.RunResult{
		RunID:   runID,
		Suite:   r.config.Suite,
		Started: started,
	}

	for _, meta := range scenarios {
		res := r.runScenario(ctx, runDir, meta)
		run.Scenarios = append(run.Scenarios, res)
		run.Stats.Add(res.Status)

		for _, sink := range sinks {
			if err := sink.Consume(res, runID); err != nil {
				r.log.Errorf("Recording result of %s: %v", meta.ID, err)
			}
		}
	}

	run.Duration = time.Since(started)

	for _, sink := range sinks {
		if err := sink.Complete(run); err != nil {
			r.log.Errorf("Completing result sink: %v", err)
		}
	}

	return run, nil
}

// runScenario executes one scenario end to end. Failures of the harness
// itself (missing launcher, broken template, vector fetch) yield status
// error; a pipeline that runs but does not recover the signal yields
// status fail.
func (r *Runner) runScenario(ctx context.Context, runDir *logging.RunDir, meta types.ScenarioMetadata) *types.ScenarioResult {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("scenario %s", meta.ID))
	defer span.End()

	started := time.Now()
	res := &types.ScenarioResult{
		Metadata: meta,
		Status:   types.ScenarioStatusError,
	}
	defer func() {
		res.Duration = time.Since(started)
	}()

	r.log.Infof("Running scenario %s/%s", meta.Suite, meta.ID)

	workDir, err := runDir.ScenarioDir(meta.Suite, meta.ID)
	if err != nil {
		res.Error = err
		return res
	}
	res.WorkDir = workDir

	vectorPath, err := r.resolveVector(ctx, meta.Vector)
	if err != nil {
		res.Error = fmt.Errorf("resolving test vector: %w", err)
		return res
	}
	res.VectorPath = vectorPath

	candDir := filepath.Join(workDir, "candidates")
	if err := os.MkdirAll(candDir, 0o755); err != nil {
		res.Error = err
		return res
	}
	configPath := filepath.Join(workDir, "config.xml")
	if err := r.writeConfig(meta, vectorPath, candDir, configPath); err != nil {
		res.Error = err
		return res
	}

	launcher, err := cheetah.NewLauncher(ctx, meta.Launcher, configPath, meta.Source, meta.Pipeline, r.config.CheetahDir)
	if err != nil {
		res.Error = err
		return res
	}

	cheetahRes, err := launcher.Run(ctx, meta.Timeout, meta.Debug)
	if err != nil {
		res.Error = err
		return res
	}
	res.ExitCode = cheetahRes.ExitCode
	res.TimedOut = cheetahRes.TimedOut

	if err := cheetah.ExportLogs(workDir, cheetahRes.Logs); err != nil {
		r.log.Warnf("Exporting cheetah logs: %v", err)
	}

	// A timed-out pipeline was killed deliberately (the emulator runs
	// until stopped); any other non-zero exit is a pipeline fault.
	if !cheetahRes.TimedOut && cheetahRes.ExitCode != 0 {
		res.Error = fmt.Errorf("cheetah exited with code %d", cheetahRes.ExitCode)
		return res
	}

	if err := r.validate(res, meta, vectorPath, candDir); err != nil {
		res.Error = err
		return res
	}

	passed := res.Status == types.ScenarioStatusPass
	if passed && r.config.Reduce && r.config.Keep {
		r.reduceCandidates(candDir)
	}
	if err := runDir.CleanupScenario(workDir, passed, r.config.Keep); err != nil {
		r.log.Warnf("Cleaning up %s: %v", workDir, err)
	}

	return res
}

// resolveVector fetches the scenario's test vector into the cache and
// returns its local path.
func (r *Runner) resolveVector(ctx context.Context, spec types.VectorSpec) (string, error) {
	if spec.ByName() {
		return r.config.Fetcher.FromName(ctx, spec.Name, spec.Refresh)
	}
	return r.config.Fetcher.FromProperties(ctx, spec)
}

// writeConfig specialises the scenario's XML template: the input vector,
// the candidate sink directories and any plan overrides.
func (r *Runner) writeConfig(meta types.ScenarioMetadata, vectorPath, candDir, configPath string) error {
	cfg, err := cheetah.LoadTemplate(meta.Template)
	if err != nil {
		return err
	}
	if err := cfg.SetVector(vectorPath); err != nil {
		return err
	}
	if err := cfg.SetCandidateDirs(candDir); err != nil {
		return err
	}
	for tag, value := range meta.Overrides {
		if err := cfg.Set(tag, value); err != nil {
			return err
		}
	}
	return cfg.Write(configPath)
}

// validate judges the data products in candDir against the ground truth
// of the vector, setting the scenario status and detection counts.
func (r *Runner) validate(res *types.ScenarioResult, meta types.ScenarioMetadata, vectorPath, candDir string) error {
	spec := meta.Validation

	header, err := fil.ReadHeader(vectorPath)
	if err != nil {
		return fmt.Errorf("reading vector header: %w", err)
	}

	switch spec.Kind {
	case types.ValidateSPS:
		return r.validateSPS(res, spec, header, vectorPath, candDir)
	case types.ValidateFDAS:
		return r.validateFDAS(res, spec, header, vectorPath, candDir)
	case types.ValidateIngest:
		return r.validateIngest(res, header, vectorPath, candDir)
	default:
		return fmt.Errorf("unknown validation kind %q", spec.Kind)
	}
}

func (r *Runner) validateSPS(res *types.ScenarioResult, spec types.ValidationSpec, header *fil.Header, vectorPath, candDir string) error {
	sig, ok := fil.ParseVectorName(vectorPath)
	if !ok {
		return fmt.Errorf("vector %s carries no signal parameters", vectorPath)
	}

	cands, err := validation.LoadSpccl(candDir, "")
	if err != nil {
		return err
	}

	expected := validation.ExpectedPulses(header, sig, spec.DDSamples)

	var cmp validation.SpsResult
	switch spec.Ruleset {
	case "widthstep":
		if len(spec.Widths) == 0 {
			return fmt.Errorf("widthstep ruleset requires the searched boxcar widths")
		}
		cmp = validation.CompareWidthStep(expected, cands, header, sig, spec.Widths)
	case "dm", "":
		thresh := spec.SNThreshold
		if thresh == 0 {
			thresh = defaultSNThreshold
		}
		cmp = validation.CompareDM(expected, cands, header, sig, thresh)
	default:
		return fmt.Errorf("unknown SPS ruleset %q", spec.Ruleset)
	}

	res.Expected = len(expected)
	res.Detections = len(cmp.Detections)
	res.NonDetections = len(cmp.NonDetections)

	if spec.CheckHeaders || spec.CompareData {
		if err := r.checkCandidateFilterbanks(spec, header, vectorPath, candDir); err != nil {
			res.Status = types.ScenarioStatusFail
			res.Error = err
			return nil
		}
	}

	if cmp.AllDetected() {
		res.Status = types.ScenarioStatusPass
	} else {
		res.Status = types.ScenarioStatusFail
		res.Error = fmt.Errorf("%d of %d expected pulses not recovered", res.NonDetections, res.Expected)
	}
	return nil
}

func (r *Runner) validateFDAS(res *types.ScenarioResult, spec types.ValidationSpec, header *fil.Header, vectorPath, candDir string) error {
	sig, ok := fil.ParseVectorName(vectorPath)
	if !ok {
		return fmt.Errorf("vector %s carries no signal parameters", vectorPath)
	}

	cands, err := validation.LoadScl(candDir, "")
	if err != nil {
		return err
	}

	ruleset := spec.Ruleset
	if ruleset == "" {
		ruleset = validation.FdasRulesetBasic
	}

	expected := validation.FdasExpectedFromVector(sig)
	cmp, err := validation.CompareFdas(expected, cands, ruleset, header)
	if err != nil {
		return err
	}

	res.Expected = 1
	if cmp.Detected {
		res.Detections = 1
		res.Status = types.ScenarioStatusPass
		r.log.Infof("Recovered pulsar with S/N %.1f from %d surviving candidates", cmp.Best.SN, len(cmp.Survivors))
	} else {
		res.NonDetections = 1
		res.Status = types.ScenarioStatusFail
		res.Error = fmt.Errorf("no candidate consistent with the injected pulsar")
	}
	return nil
}

func (r *Runner) validateIngest(res *types.ScenarioResult, header *fil.Header, vectorPath, candDir string) error {
	files, err := validation.CandidateFiles(candDir, ".fil")
	if err != nil {
		return err
	}
	if len(files) != 1 {
		return fmt.Errorf("expected 1 exported filterbank in %s, found %d", candDir, len(files))
	}

	candHeader, err := fil.ReadHeader(files[0])
	if err != nil {
		return err
	}

	res.Expected = 1
	if err := validation.CheckHeaders(candHeader, header); err != nil {
		res.NonDetections = 1
		res.Status = types.ScenarioStatusFail
		res.Error = err
		return nil
	}

	same, err := validation.CompareData(files[0], vectorPath, 4096)
	if err != nil {
		return err
	}
	if !same {
		res.NonDetections = 1
		res.Status = types.ScenarioStatusFail
		res.Error = fmt.Errorf("exported filterbank differs from ingested vector")
		return nil
	}

	res.Detections = 1
	res.Status = types.ScenarioStatusPass
	return nil
}

// checkCandidateFilterbanks applies the header and bitwise checks to
// every exported candidate filterbank.
func (r *Runner) checkCandidateFilterbanks(spec types.ValidationSpec, header *fil.Header, vectorPath, candDir string) error {
	files, err := validation.CandidateFiles(candDir, ".fil")
	if err != nil {
		return err
	}
	for _, f := range files {
		candHeader, err := fil.ReadHeader(f)
		if err != nil {
			return err
		}
		if spec.CheckHeaders {
			if err := validation.CheckCandidateHeaders(candHeader, header); err != nil {
				return err
			}
		}
		if spec.CompareData {
			same, err := validation.CompareData(f, vectorPath, 4096)
			if err != nil {
				return err
			}
			if !same {
				return fmt.Errorf("candidate %s differs from input vector", f)
			}
		}
	}
	return nil
}

// reduceCandidates truncates kept candidate filterbanks to their
// headers.
func (r *Runner) reduceCandidates(candDir string) {
	files, err := validation.CandidateFiles(candDir, ".fil")
	if err != nil {
		return
	}
	for _, f := range files {
		if err := validation.ReduceToHeader(f); err != nil {
			r.log.Warnf("Reducing %s: %v", f, err)
		}
	}
}
