package sipp

import (
	"fmt"
	"strings"
)

// Scenario names a SIPp scenario file.
type Scenario string

// Scenarios shipped in the SIPp image.
const (
	Options  Scenario = "options"
	Register Scenario = "register"
	Invite   Scenario = "invite"
	Ping     Scenario = "ping"

	// HealthCheck is the pseudo-scenario of the
	// reachability check.
	HealthCheck Scenario = "health_check"
)

// Scenarios returns the runnable scenarios in run order.
func Scenarios() []Scenario {
	return []Scenario{Options, Register, Invite, Ping}
}

// ParseScenario validates a scenario name.
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))

	for _, known := range Scenarios() {
		if sc == known {
			return sc, nil
		}
	}

	return "", fmt.Errorf(
		"unknown scenario %q: must be one of options, register, invite, ping",
		s,
	)
}
