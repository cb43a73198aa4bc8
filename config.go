package protest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/urfave/cli/v2"

	"github.com/ska-telescope/ska-pss-protest/flags"
)

// Config holds the application configuration
type Config struct {
	PlanPath    string
	TargetSuite string
	CheetahDir  string        // cheetah build tree; empty means search PATH
	CacheDir    string        // test vector cache; empty means resolve from environment
	OutDir      string        // parent of per-run output directories
	Include     []string      // tags a scenario must carry to run
	Exclude     []string      // tags that exclude a scenario
	Keep        bool          // keep data products of passing scenarios
	Reduce      bool          // truncate kept candidate filterbanks to headers
	Timeout     time.Duration // per-scenario cheetah timeout, 0 disables
	RunInterval time.Duration // interval between runs
	RunOnce     bool          // exit after one run
	MetricsAddr string
	HealthzAddr string
	Log         *clog.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *clog.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planPath, err := filepath.Abs(ctx.String(flags.Plan.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", ctx.String(flags.Plan.Name), err)
	}

	cheetahDir := ctx.String(flags.CheetahDir.Name)
	if cheetahDir != "" {
		cheetahDir, err = filepath.Abs(cheetahDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for cheetah dir: %w", err)
		}
	}

	outDir := ctx.String(flags.OutDir.Name)
	if outDir == "" {
		outDir = os.TempDir()
	}
	outDir, err = filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for output dir: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		PlanPath:    planPath,
		TargetSuite: ctx.String(flags.Suite.Name),
		CheetahDir:  cheetahDir,
		CacheDir:    ctx.String(flags.CacheDir.Name),
		OutDir:      outDir,
		Include:     ctx.StringSlice(flags.Include.Name),
		Exclude:     ctx.StringSlice(flags.Exclude.Name),
		Keep:        ctx.Bool(flags.Keep.Name),
		Reduce:      ctx.Bool(flags.Reduce.Name),
		Timeout:     ctx.Duration(flags.Timeout.Name),
		RunInterval: runInterval,
		RunOnce:     runOnce,
		MetricsAddr: ctx.String(flags.MetricsAddr.Name),
		HealthzAddr: ctx.String(flags.HealthzAddr.Name),
		Log:         log,
	}, nil
}
