// Package logging manages the per-run output directory tree: one
// directory per run, one subdirectory per scenario holding the cheetah
// configuration, logs and data products.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunDirectoryPrefix is the prefix of per-run output directories.
const RunDirectoryPrefix = "protest-"

// RunDir is the output directory of a single run.
type RunDir struct {
	baseDir string
	dir     string
	runID   string
}

// NewRunDir creates the output directory for a run under baseDir, named
// with the run timestamp.
func NewRunDir(baseDir, runID string, started time.Time) (*RunDir, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	dir := filepath.Join(baseDir, RunDirectoryPrefix+started.Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory %s: %w", dir, err)
	}

	return &RunDir{
		baseDir: baseDir,
		dir:     dir,
		runID:   runID,
	}, nil
}

// Dir returns the run directory path.
func (r *RunDir) Dir() string { return r.dir }

// RunID returns the run this directory belongs to.
func (r *RunDir) RunID() string { return r.runID }

// SummaryFile returns the path of the run summary.
func (r *RunDir) SummaryFile() string {
	return filepath.Join(r.dir, "summary.txt")
}

// ResultsFile returns the path of the machine-readable results export.
func (r *RunDir) ResultsFile() string {
	return filepath.Join(r.dir, "results.json")
}

// ScenarioDir creates and returns the directory holding one scenario's
// configuration, logs and data products.
func (r *RunDir) ScenarioDir(suite, scenarioID string) (string, error) {
	dir := filepath.Join(r.dir, safeFilename(suite), safeFilename(scenarioID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating scenario directory %s: %w", dir, err)
	}
	return dir, nil
}

// CleanupScenario applies the retention policy to a scenario directory:
// data products of passing scenarios are removed unless keep is set.
// Failing scenarios always keep their products for diagnosis.
func (r *RunDir) CleanupScenario(dir string, passed, keep bool) error {
	if !passed || keep {
		return nil
	}
	if !strings.HasPrefix(dir, r.dir) {
		return fmt.Errorf("refusing to remove %s outside run directory %s", dir, r.dir)
	}
	return os.RemoveAll(dir)
}

// safeFilename converts a scenario or suite identifier into a filesystem
// friendly name.
func safeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", " ", "_", ":", "_")
	return replacer.Replace(s)
}
