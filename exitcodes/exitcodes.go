// Package exitcodes names the process exit codes of the protest binary.
// CI distinguishes a pipeline that failed validation (rerun, inspect
// candidates) from a harness that never got that far (fix the
// environment).
package exitcodes

const (
	// Success: every selected scenario passed validation.
	Success = 0
	// TestFailure: one or more scenarios failed validation.
	TestFailure = 1
	// RuntimeErr: the harness itself failed before a verdict was
	// possible (bad plan, missing launcher, vector fetch, cheetah
	// crash).
	RuntimeErr = 2
)
