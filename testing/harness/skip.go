package harness

import (
	"testing"

	"github.com/byte4ever/sipp_tester/sipptest/envcheck"
	"github.com/byte4ever/sipp_tester/sipptest/sipp"
)

// RequireChecks skips tb unless every check passed.
func RequireChecks(
	tb testing.TB,
	status envcheck.Status,
	checks ...envcheck.Check,
) {
	tb.Helper()

	if missing := status.Missing(checks...); len(missing) > 0 {
		tb.Skipf("environment not ready: %v", missing)

		return
	}
}

// RequireKamailio skips tb unless the suite runs with
// Kamailio and the Kamailio checks passed.
func (s *Suite) RequireKamailio(tb testing.TB) {
	tb.Helper()

	if !s.Flags.RunWithKamailio {
		tb.Skip("needs -run-with-kamailio")

		return
	}

	RequireChecks(tb, s.Status, envcheck.KamailioCritical()...)
}

// RequireKamailio is RequireKamailio of the default
// suite.
func RequireKamailio(tb testing.TB) {
	tb.Helper()

	defaultSuite.RequireKamailio(tb)
}

// CheckScenario passes on success, skips on a known
// environmental failure and fails otherwise.
func CheckScenario(tb testing.TB, r sipp.Result) {
	tb.Helper()

	if r.Success {
		return
	}

	if cause := r.Cause(); cause.Transient() {
		tb.Skipf(
			"%s: environment issue (%s): %s",
			r.Scenario, cause, r.Error,
		)

		return
	}

	tb.Errorf(
		"%s failed with exit code %d\nerror: %s\noutput: %s",
		r.Scenario, r.ExitCode, r.Error, r.Output,
	)
}
