package sipp

import (
	"strconv"

	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/sipp_tester/resolver"
)

// commandTemplate is the SIPp invocation: one call, one
// second pause, at one call per second.
const commandTemplate = "sipp -sf {scenario_dir}/{scenario}.xml " +
	"{host}:{port} -p {local_port} -d 1000 -m 1 -r 1"

// Command renders the SIPp command line for sc against
// target. Unknown placeholders are left as-is.
func Command(
	scenarioDir string,
	sc Scenario,
	target resolver.Target,
	localPort int,
) string {
	return fasttemplate.ExecuteStringStd(
		commandTemplate, "{", "}",
		map[string]any{
			"scenario_dir": scenarioDir,
			"scenario":     string(sc),
			"host":         target.Host,
			"port":         strconv.Itoa(target.Port),
			"local_port":   strconv.Itoa(localPort),
		},
	)
}
