// Package cheetah sets up and runs the cheetah pulsar-search pipelines
// as child processes, generates their XML configurations from templates
// and parses their logs.
package cheetah

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
)

// launcherSpec describes a known cheetah executable: where it lives in
// a build tree and which sources and pipelines it accepts. A nil
// sources or pipelines slice means the launcher takes no such argument.
type launcherSpec struct {
	buildPath string
	sources   []string
	pipelines []string
}

var launchers = map[string]launcherSpec{
	"cheetah_pipeline": {
		buildPath: "pipelines/search_pipeline/cheetah_pipeline",
		sources:   []string{"sigproc", "udp_low", "udp"},
		pipelines: []string{"SinglePulse", "Empty", "Tdas", "RfiDetectionPipeline", "Fdas"},
	},
	"cheetah_emulator": {
		buildPath: "emulator/cheetah_emulator",
	},
	"cheetah_candidate_pipeline": {
		buildPath: "pipelines/candidate_pipeline/cheetah_candidate_pipeline",
		sources:   []string{"spead"},
		pipelines: []string{"empty"},
	},
}

// Launcher is a validated, ready-to-run cheetah invocation.
type Launcher struct {
	execPath   string
	configPath string
	source     string
	pipeline   string
	log        *clog.Logger
}

// Result holds the outcome of a cheetah run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Logs     []LogRecord
}

// NewLauncher validates the requested launcher, source and pipeline and
// locates the executable. With cheetahDir set, the build tree is
// searched first and then cheetahDir itself (an install bin directory);
// otherwise PATH is searched.
func NewLauncher(ctx context.Context, name, configPath, source, pipeline, cheetahDir string) (*Launcher, error) {
	spec, ok := launchers[name]
	if !ok {
		return nil, fmt.Errorf("unknown cheetah launcher %q", name)
	}

	log := clog.FromContext(ctx)

	var execPath string
	var err error
	if cheetahDir != "" {
		execPath, err = searchBuild(cheetahDir, name, spec)
	} else {
		execPath, err = exec.LookPath(name)
		if err != nil {
			err = fmt.Errorf("no launcher %q in PATH: %w", name, err)
		}
	}
	if err != nil {
		return nil, err
	}
	log.Infof("Found cheetah launcher: %s", execPath)

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s not found: %w", configPath, err)
	}

	if spec.sources != nil && !contains(spec.sources, source) {
		return nil, fmt.Errorf("source %q not valid for %s", source, name)
	}
	if spec.pipelines != nil && !contains(spec.pipelines, pipeline) {
		return nil, fmt.Errorf("pipeline %q not valid for %s", pipeline, name)
	}

	return &Launcher{
		execPath:   execPath,
		configPath: configPath,
		source:     source,
		pipeline:   pipeline,
		log:        log,
	}, nil
}

// searchBuild looks for the launcher under a cheetah build tree, then
// under the directory itself for installed layouts.
func searchBuild(cheetahDir, name string, spec launcherSpec) (string, error) {
	for _, candidate := range []string{
		filepath.Join(cheetahDir, spec.buildPath),
		filepath.Join(cheetahDir, name),
	} {
		st, err := os.Stat(candidate)
		if err != nil || st.IsDir() {
			continue
		}
		if st.Mode()&0o111 == 0 {
			return "", fmt.Errorf("%s not executable", candidate)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("cannot find %s under %s", name, cheetahDir)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Args returns the argument list the launcher will be run with.
func (l *Launcher) Args(debug bool) []string {
	args := []string{"--config=" + l.configPath}
	if l.pipeline != "" {
		args = append(args, "-p", l.pipeline)
	}
	if l.source != "" {
		args = append(args, "-s", l.source)
	}
	if debug {
		args = append(args, "--log-level=debug")
	}
	return args
}

// Run executes the pipeline and waits for it to finish. A timeout of 0
// lets the pipeline run until it exits on its own; otherwise the child
// is killed when the timeout expires and the result is marked TimedOut.
// A non-zero cheetah exit code is not an error here: the caller decides
// what it means for the scenario.
func (l *Launcher) Run(ctx context.Context, timeout time.Duration, debug bool) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := l.Args(debug)
	l.log.Infof("Command is: %s %v", l.execPath, args)

	cmd := exec.CommandContext(ctx, l.execPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// cheetah forks worker processes that inherit the output pipes;
	// kill the whole process group on timeout so Run does not block
	// until the workers exit on their own.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = 5 * time.Second

	runErr := cmd.Run()

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Logs:     ParseLogs(stdout.String()),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		l.log.Infof("cheetah exceeded %s", timeout)
		res.TimedOut = true
		return res, nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("running cheetah: %w", runErr)
		}
	}

	if res.Stderr != "" {
		l.log.Warnf("STDERR: %s", res.Stderr)
	}
	l.log.Infof("Return code is: %d", res.ExitCode)

	return res, nil
}
