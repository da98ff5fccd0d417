package resolver

import (
	"context"
	"log/slog"

	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

// Defaults of the Kind lab and the Kamailio deployment.
const (
	DefaultPort       = 5060
	DefaultNodePort   = 30600
	DefaultWorkerNode = "sipp-k8s-lab-worker"
	DefaultNamespace  = "kamailio"
	DefaultService    = "kamailio-service"
	DefaultClusterDNS = "kamailio-service.kamailio.svc.cluster.local"
	placeholderHost   = "localhost"
	loopbackHost      = "localhost"
)

// Cluster is the read-only cluster introspection the
// resolver needs.
type Cluster interface {
	NodeInternalIP(
		ctx context.Context,
		node string,
	) (string, error)
	LoadBalancerIP(
		ctx context.Context,
		namespace string,
		service string,
	) (string, error)
}

// Options configures a resolution. Zero values fall
// back to the package defaults.
type Options struct {
	// Environment selects the chain.
	Environment Environment

	// Host, when set, short-circuits resolution.
	Host string

	// Port is the explicit or default SIP port.
	Port int

	// WorkerNode is the node whose InternalIP carries
	// the NodePort.
	WorkerNode string

	// NodePort is the fixed NodePort of the service.
	NodePort int

	// Namespace and Service locate the LoadBalancer.
	Namespace string
	Service   string

	// ClusterDNS is the prod fallback host.
	ClusterDNS string
}

func (o Options) withDefaults() Options {
	if o.Environment == "" {
		o.Environment = Auto
	}

	if o.Port == 0 {
		o.Port = DefaultPort
	}

	if o.WorkerNode == "" {
		o.WorkerNode = DefaultWorkerNode
	}

	if o.NodePort == 0 {
		o.NodePort = DefaultNodePort
	}

	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}

	if o.Service == "" {
		o.Service = DefaultService
	}

	if o.ClusterDNS == "" {
		o.ClusterDNS = DefaultClusterDNS
	}

	return o
}

// Resolver walks the fallback chain.
type Resolver struct {
	Cluster Cluster
	Prober  probe.Prober
	Options Options
}

// New returns a Resolver with defaults applied to opts.
func New(
	cluster Cluster,
	prober probe.Prober,
	opts Options,
) *Resolver {
	return &Resolver{
		Cluster: cluster,
		Prober:  prober,
		Options: opts.withDefaults(),
	}
}

// Resolve produces the Target to test. It never fails;
// check Target.Resolved to know whether the result is a
// placeholder.
func (r *Resolver) Resolve(ctx context.Context) Target {
	o := r.Options.withDefaults()

	if o.Host != "" {
		host, port := Canonicalize(o.Host, o.Port)

		return r.done(Target{
			Host:        host,
			Port:        port,
			Environment: o.Environment,
			Source:      Explicit,
		})
	}

	switch o.Environment {
	case Local:
		return r.done(r.resolveLocal(ctx, o))
	case Prod:
		return r.done(r.resolveProd(ctx, o))
	default:
		return r.done(r.resolveAuto(ctx, o))
	}
}

// resolveLocal: worker node IP on the NodePort,
// verified by a UDP probe when possible.
func (r *Resolver) resolveLocal(
	ctx context.Context,
	o Options,
) Target {
	nodeIP := r.nodeIP(ctx, o)
	if nodeIP == "" {
		return unresolved(o)
	}

	if r.Prober.Reachable(ctx, nodeIP, o.NodePort, probe.UDP) {
		return Target{
			Host:        nodeIP,
			Port:        o.NodePort,
			Environment: o.Environment,
			Source:      NodePort,
		}
	}

	slog.Warn(
		"nodeport not reachable, using worker node ip",
		"node", o.WorkerNode,
		"ip", nodeIP,
		"port", o.NodePort,
	)

	return Target{
		Host:        nodeIP,
		Port:        o.NodePort,
		Environment: o.Environment,
		Source:      NodePortUnverified,
	}
}

// resolveProd: LoadBalancer IP on the SIP port, else
// the cluster DNS name.
func (r *Resolver) resolveProd(
	ctx context.Context,
	o Options,
) Target {
	if lbIP := r.lbIP(ctx, o); lbIP != "" {
		host, port := Canonicalize(lbIP, o.Port)

		return Target{
			Host:        host,
			Port:        port,
			Environment: o.Environment,
			Source:      LoadBalancer,
		}
	}

	slog.Warn(
		"no loadbalancer ip, using cluster dns name",
		"host", o.ClusterDNS,
	)

	return Target{
		Host:        o.ClusterDNS,
		Port:        o.Port,
		Environment: o.Environment,
		Source:      ClusterDNS,
	}
}

// resolveAuto: verified NodePort, LoadBalancer IP,
// localhost (port-forward), unverified NodePort.
func (r *Resolver) resolveAuto(
	ctx context.Context,
	o Options,
) Target {
	nodeIP := r.nodeIP(ctx, o)

	if nodeIP != "" &&
		r.Prober.Reachable(ctx, nodeIP, o.NodePort, probe.UDP) {
		return Target{
			Host:        nodeIP,
			Port:        o.NodePort,
			Environment: o.Environment,
			Source:      NodePort,
		}
	}

	if lbIP := r.lbIP(ctx, o); lbIP != "" {
		host, port := Canonicalize(lbIP, o.Port)

		return Target{
			Host:        host,
			Port:        port,
			Environment: o.Environment,
			Source:      LoadBalancer,
		}
	}

	if r.Prober.Reachable(ctx, loopbackHost, o.Port, probe.TCP) {
		return Target{
			Host:        loopbackHost,
			Port:        o.Port,
			Environment: o.Environment,
			Source:      PortForward,
		}
	}

	if nodeIP != "" {
		slog.Warn(
			"could not detect kamailio, using worker node ip",
			"ip", nodeIP,
			"port", o.NodePort,
		)

		return Target{
			Host:        nodeIP,
			Port:        o.NodePort,
			Environment: o.Environment,
			Source:      NodePortUnverified,
		}
	}

	return unresolved(o)
}

func (r *Resolver) nodeIP(ctx context.Context, o Options) string {
	if r.Cluster == nil {
		return ""
	}

	ip, err := r.Cluster.NodeInternalIP(ctx, o.WorkerNode)
	if err != nil {
		slog.Debug(
			"worker node ip unavailable",
			"node", o.WorkerNode,
			"error", err,
		)

		return ""
	}

	return ip
}

func (r *Resolver) lbIP(ctx context.Context, o Options) string {
	if r.Cluster == nil {
		return ""
	}

	ip, err := r.Cluster.LoadBalancerIP(ctx, o.Namespace, o.Service)
	if err != nil {
		slog.Debug(
			"loadbalancer ip unavailable",
			"namespace", o.Namespace,
			"service", o.Service,
			"error", err,
		)

		return ""
	}

	return ip
}

func (r *Resolver) done(t Target) Target {
	if t.Resolved() {
		slog.Info(
			"resolved kamailio target",
			"address", t.Address(),
			"environment", t.Environment,
			"source", t.Source,
		)
	}

	return t
}

func unresolved(o Options) Target {
	slog.Warn(
		"kamailio target unresolved, using placeholder",
		"environment", o.Environment,
		"host", placeholderHost,
		"port", o.NodePort,
	)

	return Target{
		Host:        placeholderHost,
		Port:        o.NodePort,
		Environment: o.Environment,
		Source:      Unresolved,
	}
}
