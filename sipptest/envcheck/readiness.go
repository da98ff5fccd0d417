package envcheck

import (
	"context"
	"log/slog"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

// Readiness is the state of a deployed Kamailio.
type Readiness struct {
	PodsRunning    bool `json:"pods_running"`
	ServiceExists  bool `json:"service_exists"`
	PortAccessible bool `json:"port_accessible"`
}

// Ready reports whether every part is in place.
func (r Readiness) Ready() bool {
	return r.PodsRunning && r.ServiceExists && r.PortAccessible
}

// Readiness checks the pods, the service and the SIP
// port of target. Local targets are probed over UDP
// directly; other targets are reached through a
// temporary port-forward and probed over TCP on
// localhost.
func (c *Checker) Readiness(
	ctx context.Context,
	target resolver.Target,
) Readiness {
	pods, err := c.Cluster.RunningPods(ctx, c.Namespace, c.AppLabel)

	r := Readiness{
		PodsRunning:   err == nil && len(pods) > 0,
		ServiceExists: c.Cluster.ServiceExists(ctx, c.Namespace, c.Service),
	}

	if target.Environment == resolver.Local {
		r.PortAccessible = c.Prober.Reachable(
			ctx, target.Host, target.Port, probe.UDP,
		)

		return r
	}

	r.PortAccessible = c.forwardedPortOpen(ctx)

	return r
}

func (c *Checker) forwardedPortOpen(ctx context.Context) bool {
	if c.Forwarder == nil {
		return false
	}

	s, err := c.Forwarder.Start(ctx)
	if err != nil {
		slog.Warn("port-forward failed", "error", err)

		return false
	}

	defer func() {
		if err := s.Stop(); err != nil {
			slog.Warn("stopping port-forward", "error", err)
		}
	}()

	return c.Prober.Reachable(ctx, "localhost", s.LocalPort(), probe.TCP)
}
