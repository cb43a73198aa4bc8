// Package protest drives product testing of the cheetah pulsar-search
// pipelines: it resolves test vectors, launches cheetah against
// generated configurations and validates the recovered candidates.
package protest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ska-telescope/ska-pss-protest/exitcodes"
	"github.com/ska-telescope/ska-pss-protest/metrics"
	"github.com/ska-telescope/ska-pss-protest/registry"
	"github.com/ska-telescope/ska-pss-protest/reporting"
	"github.com/ska-telescope/ska-pss-protest/runner"
	"github.com/ska-telescope/ska-pss-protest/types"
	"github.com/ska-telescope/ska-pss-protest/vectors"
)

// ProTest runs the scenarios of a suite, once or periodically.
type ProTest struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	fetcher  *vectors.Fetcher
	runner   runner.SuiteRunner
	result   *types.RunResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*ProTest, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debugf("Creating ProTest: plan=%s suite=%s runInterval=%s runOnce=%t",
		config.PlanPath, config.TargetSuite, config.RunInterval, config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		PlanFile:       config.PlanPath,
		DefaultTimeout: config.Timeout,
		Include:        config.Include,
		Exclude:        config.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	fetcher, err := vectors.NewFetcher(ctx, config.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector fetcher: %w", err)
	}

	scenarioRunner, err := runner.NewRunner(runner.Config{
		Registry:   reg,
		Fetcher:    fetcher,
		Suite:      config.TargetSuite,
		CheetahDir: config.CheetahDir,
		OutDir:     config.OutDir,
		Keep:       config.Keep,
		Reduce:     config.Reduce,
		Log:        config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario runner: %w", err)
	}

	return &ProTest{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		fetcher:          fetcher,
		runner:           scenarioRunner,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the suite, then either shuts down (run-once mode) or keeps
// re-running it at the configured interval.
func (p *ProTest) Start(ctx context.Context) error {
	// Panics are operational faults, not validation failures.
	defer func() {
		if r := recover(); r != nil {
			p.config.Log.Errorf("Runtime error occurred: %v", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	p.ctx = ctx
	p.done = make(chan struct{})
	p.running.Store(true)

	if p.config.RunOnce {
		p.config.Log.Infof("Starting protest in run-once mode")
	} else {
		p.config.Log.Infof("Starting protest in continuous mode, interval %s", p.config.RunInterval)
	}

	if err := p.runSuite(); err != nil {
		p.config.Log.Errorf("Runtime error running suite: %v", err)
		return err
	}

	if p.config.RunOnce {
		p.config.Log.Infof("Suite completed, exiting (run-once mode)")

		if p.result != nil && p.result.Status() != types.ScenarioStatusPass {
			return NewScenarioFailureError(fmt.Sprintf("suite %s: %d of %d scenarios did not pass",
				p.result.Suite, p.result.Stats.Failed+p.result.Stats.Errored, p.result.Stats.Total))
		}

		go func() {
			p.shutdownCallback(nil)
		}()
		return nil
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		for {
			select {
			case <-time.After(p.config.RunInterval):
				if !p.running.Load() {
					return
				}
				p.config.Log.Infof("Running periodic suite")
				if err := p.runSuite(); err != nil {
					p.config.Log.Errorf("Error running periodic suite: %v", err)
				}

			case <-p.done:
				return

			case <-ctx.Done():
				p.running.Store(false)
				return
			}
		}
	}()

	p.config.Log.Debugf("protest started successfully")
	return nil
}

// runSuite executes the target suite once and publishes the results.
func (p *ProTest) runSuite() error {
	result, err := p.runner.RunSuite(p.ctx)
	if err != nil {
		metrics.RecordErrorDetails("suite run", err)
		return NewRuntimeError(err)
	}
	p.result = result

	fmt.Println(reporting.FormatResultsTable(result))

	for _, res := range result.Scenarios {
		metrics.RecordScenario(result.Suite, result.RunID, res)
	}
	metrics.RecordRun(result, result.Duration)

	p.config.Log.Infof("Suite run completed: run_id=%s status=%s", result.RunID, result.Status())
	return nil
}

// Stop stops the protest service.
func (p *ProTest) Stop(ctx context.Context) error {
	p.config.Log.Infof("Stopping protest")

	if !p.running.Load() {
		return nil
	}

	p.running.Store(false)
	close(p.done)

	p.config.Log.Infof("protest stopped successfully")
	return nil
}

// Stopped returns true if the service is stopped.
func (p *ProTest) Stopped() bool {
	return !p.running.Load()
}

// Result returns the most recent suite run result.
func (p *ProTest) Result() *types.RunResult {
	return p.result
}

// WaitForShutdown blocks until all goroutines have terminated, or the
// context expires.
func (p *ProTest) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.config.Log.Warnf("Timed out waiting for goroutines to terminate: %v", ctx.Err())
		return ctx.Err()
	}
}
