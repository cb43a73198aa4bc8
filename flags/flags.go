package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "PROTEST"

// prefixEnvVar builds the environment variable name for a flag.
func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("PLAN"),
		Usage:    "Path to the scenario plan file (eg. 'plans/mid.yaml')",
	}
	Suite = &cli.StringFlag{
		Name:     "suite",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("SUITE"),
		Usage:    "Suite to run (eg. 'sps-mid')",
	}
	CheetahDir = &cli.StringFlag{
		Name:    "cheetah-dir",
		Value:   "",
		EnvVars: prefixEnvVar("CHEETAH_DIR"),
		Usage:   "Path to the cheetah build tree. Omit to search PATH for the launchers.",
	}
	CacheDir = &cli.StringFlag{
		Name:    "cache-dir",
		Value:   "",
		EnvVars: prefixEnvVar("CACHE_DIR"),
		Usage:   "Directory in which test vectors are cached between runs",
	}
	OutDir = &cli.StringFlag{
		Name:    "outdir",
		Value:   "",
		EnvVars: prefixEnvVar("OUTDIR"),
		Usage:   "Directory under which per-run output directories are created (default: os temp dir)",
	}
	Include = &cli.StringSliceFlag{
		Name:    "include",
		EnvVars: prefixEnvVar("INCLUDE"),
		Usage:   "Only run scenarios carrying this tag (repeatable)",
	}
	Exclude = &cli.StringSliceFlag{
		Name:    "exclude",
		EnvVars: prefixEnvVar("EXCLUDE"),
		Usage:   "Skip scenarios carrying this tag (repeatable)",
	}
	Keep = &cli.BoolFlag{
		Name:    "keep",
		Value:   false,
		EnvVars: prefixEnvVar("KEEP"),
		Usage:   "Keep the data products of passing scenarios instead of deleting them",
	}
	Reduce = &cli.BoolFlag{
		Name:    "reduce",
		Value:   false,
		EnvVars: prefixEnvVar("REDUCE"),
		Usage:   "After validation, truncate kept candidate filterbanks to their headers",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "Per-scenario cheetah timeout (e.g. '10m'). 0 disables the timeout.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "",
		EnvVars: prefixEnvVar("METRICS_ADDR"),
		Usage:   "Address to serve Prometheus metrics on (default '0.0.0.0:7300')",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "",
		EnvVars: prefixEnvVar("HEALTHZ_ADDR"),
		Usage:   "Address to serve the health endpoint on (default '0.0.0.0:8080')",
	}
)

var requiredFlags = []cli.Flag{
	Plan,
	Suite,
}

var optionalFlags = []cli.Flag{
	CheetahDir,
	CacheDir,
	OutDir,
	Include,
	Exclude,
	Keep,
	Reduce,
	Timeout,
	RunInterval,
	LogLevel,
	MetricsAddr,
	HealthzAddr,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
