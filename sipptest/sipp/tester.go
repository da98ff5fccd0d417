package sipp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/config"
	"github.com/byte4ever/sipp_tester/sipptest/docker"
	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
	"github.com/byte4ever/sipp_tester/sipptest/retry"
)

// hostTimeout bounds a SIPp run directly on the host.
const hostTimeout = 10 * time.Second

// Settings tunes a Tester.
type Settings struct {
	Image           string
	ScenarioDir     string
	HostScenarioDir string
	LocalPort       int

	// KindNet is the docker network of the Kind nodes.
	// Targets inside it are reached with host networking.
	KindNet *net.IPNet

	Timeout        time.Duration
	ProbeTimeout   time.Duration
	HealthProtocol probe.Protocol
	Retry          retry.Policy
	Pause          time.Duration
}

// SettingsFrom projects the configuration onto Settings.
func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		Image:           cfg.DockerImage,
		ScenarioDir:     cfg.ScenarioDir,
		HostScenarioDir: cfg.HostScenarioDir,
		LocalPort:       cfg.LocalSIPPort,
		KindNet:         cfg.KindNet(),
		Timeout:         cfg.ScenarioTimeout,
		ProbeTimeout:    cfg.ProbeTimeout,
		HealthProtocol:  cfg.HealthProtocol,
		Retry:           cfg.Retry,
		Pause:           cfg.Pause,
	}
}

// Tester runs the health check and scenarios against
// one target.
type Tester struct {
	Docker *docker.Client

	// Host runs sipp directly on the host for Kind
	// targets when HostScenarioDir is set. Nil disables
	// the host path.
	Host exec.Runner

	Target   resolver.Target
	Settings Settings
}

// New returns a Tester using the real docker and host
// binaries.
func New(target resolver.Target, settings Settings) *Tester {
	return &Tester{
		Docker:   docker.New(),
		Host:     exec.System{},
		Target:   target,
		Settings: settings,
	}
}

// HostNetwork reports whether containers need
// --network=host to reach the target: loopback targets
// and targets inside the Kind network.
func (t *Tester) HostNetwork() bool {
	if t.Target.Host == "localhost" {
		return true
	}

	ip := net.ParseIP(t.Target.Host)
	if ip == nil {
		return false
	}

	return ip.IsLoopback() || t.inKind(ip)
}

func (t *Tester) inKind(ip net.IP) bool {
	return t.Settings.KindNet != nil && t.Settings.KindNet.Contains(ip)
}

func (t *Tester) runOptions() docker.RunOptions {
	return docker.RunOptions{
		Image:       t.Settings.Image,
		HostNetwork: t.HostNetwork(),
		Env: map[string]string{
			"KAMAILIO_HOST": t.Target.Host,
			"KAMAILIO_PORT": strconv.Itoa(t.Target.Port),
		},
	}
}

// Prober returns the netcat prober running inside the
// SIPp image.
func (t *Tester) Prober() *probe.Netcat {
	return &probe.Netcat{
		Runner:  t.Docker.Runner,
		Timeout: t.Settings.ProbeTimeout,
		Prefix:  docker.Command(docker.RunOptions{
			Image:       t.Settings.Image,
			HostNetwork: t.HostNetwork(),
		}),
	}
}

// HealthCheck probes the target from inside the SIPp
// image under the retry policy.
func (t *Tester) HealthCheck(ctx context.Context) Result {
	start := time.Now()
	addr := t.Target.Address()

	proto := t.Settings.HealthProtocol
	if proto == "" {
		proto = probe.TCP
	}

	slog.Info(
		"health check",
		"target", addr,
		"protocol", proto,
		"resolved", t.Target.Resolved(),
	)

	prober := t.Prober()

	ok, attempts := retry.Until(
		ctx, t.Settings.Retry,
		func(ctx context.Context, _ int) bool {
			return prober.Reachable(
				ctx, t.Target.Host, t.Target.Port, proto,
			)
		},
	)

	if ok {
		slog.Info("kamailio reachable", "target", addr)

		return Result{
			Scenario:   HealthCheck,
			Success:    true,
			Output:     "kamailio reachable at " + addr,
			Duration:   time.Since(start),
			Statistics: map[string]string{},
		}
	}

	msg := fmt.Sprintf(
		"cannot reach kamailio at %s after %d attempts", addr, attempts,
	)
	slog.Error("health check failed", "target", addr, "attempts", attempts)

	return Result{
		Scenario:   HealthCheck,
		ExitCode:   1,
		Output:     msg,
		Duration:   time.Since(start),
		Statistics: map[string]string{},
	}
}

// RunScenario runs one scenario. Kind targets first try
// sipp on the host when a host scenario directory is
// configured, falling back to the container.
func (t *Tester) RunScenario(ctx context.Context, sc Scenario) Result {
	start := time.Now()

	if out, ok := t.runOnHost(ctx, sc); ok {
		return newResult(sc, out, time.Since(start))
	}

	cmd := Command(
		t.Settings.ScenarioDir, sc, t.Target, t.Settings.LocalPort,
	)

	slog.Info(
		"running scenario",
		"scenario", sc,
		"target", t.Target.Address(),
		"command", cmd,
	)

	out := t.Docker.Run(
		ctx, t.Settings.Timeout, t.runOptions(), "bash", "-c", cmd,
	)

	r := newResult(sc, out, time.Since(start))
	if r.Success {
		slog.Info("scenario passed", "scenario", sc, "duration", r.Duration)
	} else {
		slog.Warn(
			"scenario failed",
			"scenario", sc,
			"exit", r.ExitCode,
			"cause", r.Cause(),
		)
	}

	return r
}

// runOnHost reports ok only when sipp ran on the host
// and succeeded.
func (t *Tester) runOnHost(
	ctx context.Context,
	sc Scenario,
) (exec.Output, bool) {
	if t.Host == nil || t.Settings.HostScenarioDir == "" {
		return exec.Output{}, false
	}

	ip := net.ParseIP(t.Target.Host)
	if ip == nil || !t.inKind(ip) {
		return exec.Output{}, false
	}

	argv := strings.Fields(Command(
		t.Settings.HostScenarioDir, sc, t.Target, t.Settings.LocalPort,
	))

	slog.Info("running sipp on host", "scenario", sc)

	out := t.Host.Run(ctx, hostTimeout, argv[0], argv[1:]...)
	if !out.OK() {
		slog.Warn(
			"host sipp failed, using docker",
			"scenario", sc,
			"exit", out.ExitCode,
			"error", out.Err,
		)

		return out, false
	}

	return out, true
}

// RunAll runs the health check, then every scenario in
// order with a pause in between. Scenarios are skipped
// when the health check fails. Nil or empty scenarios
// means all of them.
func (t *Tester) RunAll(ctx context.Context, scenarios ...Scenario) []Result {
	if len(scenarios) == 0 {
		scenarios = Scenarios()
	}

	health := t.HealthCheck(ctx)
	results := []Result{health}

	if !health.Success {
		slog.Warn("health check failed, skipping scenarios")

		return results
	}

	for i, sc := range scenarios {
		if i > 0 && !retry.Sleep(ctx, t.Settings.Pause) {
			break
		}

		results = append(results, t.RunScenario(ctx, sc))
	}

	return results
}
