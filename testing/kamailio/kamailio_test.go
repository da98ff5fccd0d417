//go:build integration

// Package kamailio_test runs the SIPp scenarios against a
// live Kamailio. Run with
//
//	go test -tags integration ./testing/kamailio -args -run-with-kamailio
package kamailio_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/sipp_tester/sipptest/envcheck"
	"github.com/byte4ever/sipp_tester/sipptest/sipp"
	"github.com/byte4ever/sipp_tester/testing/harness"
)

func TestMain(m *testing.M) {
	harness.Main(m)
}

func TestScenarios(t *testing.T) {
	s := harness.Default()
	harness.RequireChecks(t, s.Status, envcheck.SippCritical()...)

	tr := s.Tester()

	for _, sc := range sipp.Scenarios() {
		t.Run(string(sc), func(t *testing.T) {
			res := tr.RunScenario(context.Background(), sc)
			t.Logf(
				"%s: exit %d in %s, statistics %v",
				sc, res.ExitCode, res.Duration, res.Statistics,
			)

			harness.CheckScenario(t, res)
		})
	}
}

func TestAllScenarios(t *testing.T) {
	s := harness.Default()
	harness.RequireChecks(t, s.Status, envcheck.SippCritical()...)

	results := s.Tester().RunAll(context.Background())

	if len(results) == 1 && !results[0].Success {
		t.Skipf("kamailio not reachable at %s", s.Target.Address())
	}

	for _, res := range results {
		harness.CheckScenario(t, res)
	}

	sum := sipp.Summarize(results)
	assert.Equal(t, sum.Total, sum.Passed)
}

func TestHealthCheckWithKamailio(t *testing.T) {
	s := harness.Default()
	s.RequireKamailio(t)

	res := s.Tester().HealthCheck(context.Background())

	assert.True(t, res.Success, "health check failed: %s", res.Output)
}

func TestOptionsWithKamailio(t *testing.T) {
	s := harness.Default()
	s.RequireKamailio(t)

	res := s.Tester().RunScenario(context.Background(), sipp.Options)

	harness.CheckScenario(t, res)
}

func TestReadiness(t *testing.T) {
	s := harness.Default()
	s.RequireKamailio(t)

	if s.Forwarding() {
		t.Skip("readiness opens its own port-forward")
	}

	r := s.Checker.Readiness(context.Background(), s.Target)

	assert.True(t, r.Ready(), "%+v", r)
}
