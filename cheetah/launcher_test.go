package cheetah

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuildTree creates a cheetah build tree whose search pipeline is a
// shell script with the given body.
func fakeBuildTree(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	binDir := filepath.Join(dir, "pipelines", "search_pipeline")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "cheetah_pipeline"), []byte(script), 0o755))
	return dir
}

func fakeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.xml")
	require.NoError(t, os.WriteFile(path, []byte("<cheetah></cheetah>"), 0o644))
	return path
}

func TestNewLauncherValidation(t *testing.T) {
	ctx := context.Background()
	dir := fakeBuildTree(t, "exit 0\n")
	config := fakeConfig(t)

	tests := []struct {
		name     string
		launcher string
		config   string
		source   string
		pipeline string
		errMsg   string
	}{
		{
			name:     "valid",
			launcher: "cheetah_pipeline",
			config:   config,
			source:   "sigproc",
			pipeline: "SinglePulse",
		},
		{
			name:     "unknown launcher",
			launcher: "cheetah_turbo",
			config:   config,
			errMsg:   "unknown cheetah launcher",
		},
		{
			name:     "bad source",
			launcher: "cheetah_pipeline",
			config:   config,
			source:   "carrier-pigeon",
			pipeline: "SinglePulse",
			errMsg:   "not valid",
		},
		{
			name:     "bad pipeline",
			launcher: "cheetah_pipeline",
			config:   config,
			source:   "sigproc",
			pipeline: "WarpDrive",
			errMsg:   "not valid",
		},
		{
			name:     "missing config",
			launcher: "cheetah_pipeline",
			config:   "/does/not/exist.xml",
			source:   "sigproc",
			pipeline: "SinglePulse",
			errMsg:   "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLauncher(ctx, tt.launcher, tt.config, tt.source, tt.pipeline, dir)
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewLauncherMissingExecutable(t *testing.T) {
	_, err := NewLauncher(context.Background(), "cheetah_pipeline", fakeConfig(t), "sigproc", "SinglePulse", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot find")
}

func TestLauncherArgs(t *testing.T) {
	dir := fakeBuildTree(t, "exit 0\n")
	config := fakeConfig(t)

	l, err := NewLauncher(context.Background(), "cheetah_pipeline", config, "sigproc", "SinglePulse", dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"--config=" + config, "-p", "SinglePulse", "-s", "sigproc"}, l.Args(false))
	assert.Equal(t, []string{"--config=" + config, "-p", "SinglePulse", "-s", "sigproc", "--log-level=debug"}, l.Args(true))
}

func TestLauncherRun(t *testing.T) {
	dir := fakeBuildTree(t, `echo "[log][tid=1][main.cpp:10][1700000000] Pipeline starting"
echo "[error][tid=2][ddtr.cpp:99][1700000001] dedispersion failed"
exit 3
`)
	l, err := NewLauncher(context.Background(), "cheetah_pipeline", fakeConfig(t), "sigproc", "SinglePulse", dir)
	require.NoError(t, err)

	res, err := l.Run(context.Background(), 0, false)
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.TimedOut)
	require.Len(t, res.Logs, 2)
	assert.Equal(t, "log", res.Logs[0].Type)
	assert.Equal(t, "error", res.Logs[1].Type)
	assert.Equal(t, " dedispersion failed", res.Logs[1].Msg)
}

func TestLauncherRunTimeout(t *testing.T) {
	dir := fakeBuildTree(t, "sleep 10\n")
	l, err := NewLauncher(context.Background(), "cheetah_pipeline", fakeConfig(t), "sigproc", "SinglePulse", dir)
	require.NoError(t, err)

	start := time.Now()
	res, err := l.Run(context.Background(), 200*time.Millisecond, false)
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLauncherRunTimeoutWithForkedChild(t *testing.T) {
	// The forked child inherits stdout; the kill must take down the
	// whole process group or Run blocks until the child exits.
	dir := fakeBuildTree(t, "sleep 10 &\nwait\n")
	l, err := NewLauncher(context.Background(), "cheetah_pipeline", fakeConfig(t), "sigproc", "SinglePulse", dir)
	require.NoError(t, err)

	start := time.Now()
	res, err := l.Run(context.Background(), 200*time.Millisecond, false)
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}
