package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
	"github.com/byte4ever/sipp_tester/sipptest/retry"
)

// Backend selects how the cluster is queried.
type Backend string

const (
	// BackendKubectl shells out to kubectl.
	BackendKubectl Backend = "kubectl"
	// BackendAPI talks to the API server through
	// client-go.
	BackendAPI Backend = "api"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendKubectl, "":
		return BackendKubectl, nil
	case BackendAPI:
		return BackendAPI, nil
	default:
		return "", fmt.Errorf(
			"invalid kube backend %q: must be kubectl or api", s,
		)
	}
}

// Config is the whole toolkit configuration. It is
// passed by value.
type Config struct {
	// Target selection.
	Host        string
	Port        int
	Environment resolver.Environment

	// Cluster layout.
	KubeBackend Backend
	Kubeconfig  string
	Namespace   string
	Service     string
	Deployment  string
	AppLabel    string
	ConfigMap   string
	ConfigKey   string
	WorkerNode  string
	KindCluster string
	NodePort    int
	ClusterDNS  string

	// SIPp container and scenarios.
	DockerImage     string
	DockerContext   string
	ScenarioDir     string
	HostScenarioDir string
	LocalSIPPort    int
	KindNetwork     string

	// Timing.
	ProbeTimeout      time.Duration
	ScenarioTimeout   time.Duration
	HealthProtocol    probe.Protocol
	Retry             retry.Policy
	Pause             time.Duration
	PortForwardSettle time.Duration
}

// Default returns the configuration of the Kind lab.
func Default() Config {
	return Config{
		Port:        resolver.DefaultPort,
		Environment: resolver.Auto,

		KubeBackend: BackendKubectl,
		Namespace:   resolver.DefaultNamespace,
		Service:     resolver.DefaultService,
		Deployment:  "kamailio",
		AppLabel:    "app=kamailio",
		ConfigMap:   "kamailio-config",
		ConfigKey:   "kamailio.cfg",
		WorkerNode:  resolver.DefaultWorkerNode,
		KindCluster: "sipp-k8s-lab",
		NodePort:    resolver.DefaultNodePort,
		ClusterDNS:  resolver.DefaultClusterDNS,

		DockerImage:   "local/sipp-tester:latest",
		DockerContext: ".",
		ScenarioDir:   "/app/sipp-scenarios",
		LocalSIPPort:  5064,
		KindNetwork:   "172.18.0.0/16",

		ProbeTimeout:      probe.DefaultTimeout,
		ScenarioTimeout:   30 * time.Second,
		HealthProtocol:    probe.TCP,
		Retry:             retry.Default(),
		Pause:             time.Second,
		PortForwardSettle: 3 * time.Second,
	}
}

// Overrides carries explicit command-line values. Zero
// fields leave the configuration untouched.
type Overrides struct {
	Host        string
	Port        int
	Environment string
	KubeBackend string
	Kubeconfig  string
}

// Apply layers explicit overrides on top of c.
func (c *Config) Apply(o Overrides) error {
	const errCtx = "applying overrides"

	if o.Host != "" {
		c.Host = o.Host
	}

	if o.Port != 0 {
		c.Port = o.Port
	}

	if o.Environment != "" {
		env, err := resolver.ParseEnvironment(o.Environment)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		c.Environment = env
	}

	if o.KubeBackend != "" {
		b, err := ParseBackend(o.KubeBackend)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		c.KubeBackend = b
	}

	if o.Kubeconfig != "" {
		c.Kubeconfig = o.Kubeconfig
	}

	return c.Validate()
}

// Validate checks the invariants every consumer relies
// on.
func (c Config) Validate() error {
	const errCtx = "invalid config"

	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	if c.NodePort < 1 || c.NodePort > 65535 {
		errs = append(
			errs, fmt.Errorf("node port %d out of range", c.NodePort),
		)
	}

	if c.LocalSIPPort < 1 || c.LocalSIPPort > 65535 {
		errs = append(
			errs,
			fmt.Errorf("local sip port %d out of range", c.LocalSIPPort),
		)
	}

	if _, err := resolver.ParseEnvironment(
		string(c.Environment),
	); err != nil {
		errs = append(errs, err)
	}

	if _, err := ParseBackend(string(c.KubeBackend)); err != nil {
		errs = append(errs, err)
	}

	if _, err := probe.ParseProtocol(
		string(c.HealthProtocol),
	); err != nil {
		errs = append(errs, err)
	}

	if _, _, err := net.ParseCIDR(c.KindNetwork); err != nil {
		errs = append(
			errs, fmt.Errorf("kind network: %w", err),
		)
	}

	if c.Namespace == "" || c.Service == "" {
		errs = append(
			errs, errors.New("namespace and service are required"),
		)
	}

	if c.DockerImage == "" {
		errs = append(errs, errors.New("docker image is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", errCtx, multierr.Combine(errs...))
	}

	return nil
}

// ResolverOptions projects the configuration onto the
// resolver's inputs.
func (c Config) ResolverOptions() resolver.Options {
	return resolver.Options{
		Environment: c.Environment,
		Host:        c.Host,
		Port:        c.Port,
		WorkerNode:  c.WorkerNode,
		NodePort:    c.NodePort,
		Namespace:   c.Namespace,
		Service:     c.Service,
		ClusterDNS:  c.ClusterDNS,
	}
}

// KindNet returns the parsed Kind docker network. It
// returns nil when KindNetwork is not a valid CIDR.
func (c Config) KindNet() *net.IPNet {
	_, n, err := net.ParseCIDR(c.KindNetwork)
	if err != nil {
		return nil
	}

	return n
}
