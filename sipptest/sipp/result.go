package sipp

import (
	"time"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
)

// Result is the outcome of one scenario or health-check
// run. It is built once and not modified afterwards.
type Result struct {
	Scenario   Scenario
	Success    bool
	ExitCode   int
	Output     string
	Error      string
	Duration   time.Duration
	Statistics map[string]string
}

// Cause is a shorthand for Classify(r).
func (r Result) Cause() TransientCause {
	return Classify(r)
}

// newResult converts a command Output. Timeouts and
// invocation errors get exit code -1; statistics are
// parsed from stdout of completed runs only.
func newResult(
	sc Scenario,
	out exec.Output,
	duration time.Duration,
) Result {
	switch {
	case out.TimedOut():
		return Result{
			Scenario:   sc,
			ExitCode:   -1,
			Error:      TimeoutMessage,
			Duration:   duration,
			Statistics: map[string]string{},
		}
	case out.Err != nil:
		return Result{
			Scenario:   sc,
			ExitCode:   -1,
			Error:      out.Err.Error(),
			Duration:   duration,
			Statistics: map[string]string{},
		}
	}

	return Result{
		Scenario:   sc,
		Success:    out.ExitCode == 0,
		ExitCode:   out.ExitCode,
		Output:     out.Stdout,
		Error:      out.Stderr,
		Duration:   duration,
		Statistics: ParseStatistics(out.Stdout),
	}
}

// AllPassed reports whether every result succeeded. An
// empty list has not passed.
func AllPassed(results []Result) bool {
	if len(results) == 0 {
		return false
	}

	for _, r := range results {
		if !r.Success {
			return false
		}
	}

	return true
}
