package envcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"go.uber.org/multierr"

	"github.com/byte4ever/sipp_tester/sipptest/config"
	"github.com/byte4ever/sipp_tester/sipptest/docker"
	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/kube"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
	"github.com/byte4ever/sipp_tester/sipptest/sipp"
)

// ErrCheckFailed marks a failed check in the error
// returned by Gather.
var ErrCheckFailed = errors.New("check failed")

// Check names one environment check.
type Check string

// Known checks.
const (
	Docker             Check = "docker"
	Kubectl            Check = "kubectl"
	KubernetesCluster  Check = "kubernetes_cluster"
	SippInstalled      Check = "sipp_installed"
	SippImage          Check = "sipp_image"
	SippContainer      Check = "sipp_container"
	SippScenarios      Check = "sipp_scenarios"
	KamailioNamespace  Check = "kamailio_namespace"
	KamailioDeployment Check = "kamailio_deployment"
	KamailioPods       Check = "kamailio_pods"
	KamailioService    Check = "kamailio_service"
)

// All returns every check in gathering order.
func All() []Check {
	return []Check{
		Docker, Kubectl, KubernetesCluster, SippInstalled,
		SippImage, SippContainer, SippScenarios,
		KamailioNamespace, KamailioDeployment,
		KamailioPods, KamailioService,
	}
}

// Required are the checks without which nothing runs.
func Required() []Check {
	return []Check{Docker, Kubectl, KubernetesCluster}
}

// SippCritical are the checks needed to run scenarios.
func SippCritical() []Check {
	return []Check{
		Docker, SippImage, SippContainer, SippInstalled, SippScenarios,
	}
}

// KamailioCritical are the checks needed to talk to the
// deployed Kamailio.
func KamailioCritical() []Check {
	return []Check{
		Docker, KubernetesCluster, KamailioNamespace,
		KamailioDeployment, KamailioPods, KamailioService,
	}
}

// Status maps each gathered check to its outcome.
// Absent checks count as failed.
type Status map[Check]bool

// Missing returns the checks among checks that did not
// pass, in the given order.
func (s Status) Missing(checks ...Check) []Check {
	var missing []Check

	for _, c := range checks {
		if !s[c] {
			missing = append(missing, c)
		}
	}

	return missing
}

// Ready reports whether all of checks passed. With no
// arguments the Required checks are used.
func (s Status) Ready(checks ...Check) bool {
	if len(checks) == 0 {
		checks = Required()
	}

	return len(s.Missing(checks...)) == 0
}

// sippTimeout bounds `which sipp` on the host.
const sippTimeout = 5 * time.Second

// Checker runs the checks.
type Checker struct {
	Docker  *docker.Client
	Cluster kube.Cluster

	// Host runs tools on the host.
	Host exec.Runner

	Image       string
	ScenarioDir string
	Scenarios   []sipp.Scenario

	Namespace  string
	Deployment string
	Service    string
	AppLabel   string

	// Forwarder and Prober serve Readiness.
	Forwarder kube.Forwarder
	Prober    probe.Prober
}

// New returns a Checker for cfg over cluster.
func New(cfg config.Config, cluster kube.Client) *Checker {
	host := exec.System{}

	nc := probe.NewNetcat(host)
	nc.Timeout = cfg.ProbeTimeout

	return &Checker{
		Docker:      docker.New(),
		Cluster:     cluster,
		Host:        host,
		Image:       cfg.DockerImage,
		ScenarioDir: cfg.ScenarioDir,
		Scenarios:   sipp.Scenarios(),
		Namespace:   cfg.Namespace,
		Deployment:  cfg.Deployment,
		Service:     cfg.Service,
		AppLabel:    cfg.AppLabel,
		Forwarder: kube.ForwarderFor(
			cluster,
			kube.ForwardSpec{
				Namespace:  cfg.Namespace,
				Service:    cfg.Service,
				LocalPort:  cfg.Port,
				RemotePort: cfg.Port,
			},
			cfg.PortForwardSettle,
			nil, // Readiness probes the port itself
		),
		Prober: nc,
	}
}

func (c *Checker) battery() []struct {
	check Check
	fn    func(context.Context) bool
} {
	return []struct {
		check Check
		fn    func(context.Context) bool
	}{
		{Docker, c.Docker.Available},
		{Kubectl, c.Cluster.ClientAvailable},
		{KubernetesCluster, c.Cluster.Available},
		{SippInstalled, c.sippInstalled},
		{SippImage, c.sippImage},
		{SippContainer, c.sippContainer},
		{SippScenarios, c.sippScenarios},
		{KamailioNamespace, c.kamailioNamespace},
		{KamailioDeployment, c.kamailioDeployment},
		{KamailioPods, c.kamailioPods},
		{KamailioService, c.kamailioService},
	}
}

// Gather runs every check. The error lists the failed
// checks, each wrapping ErrCheckFailed; a non-nil error
// does not mean the environment is unusable, ask the
// Status.
func (c *Checker) Gather(ctx context.Context) (Status, error) {
	var err error

	status := make(Status, len(All()))

	for _, b := range c.battery() {
		ok := b.fn(ctx)
		status[b.check] = ok

		slog.Debug("environment check", "check", b.check, "ok", ok)

		if !ok {
			err = multierr.Append(
				err, fmt.Errorf("%s: %w", b.check, ErrCheckFailed),
			)
		}
	}

	return status, err
}

// sippInstalled looks for sipp inside the image, where
// scenarios run. A host binary alone does not count.
func (c *Checker) sippInstalled(ctx context.Context) bool {
	ok := c.sippImage(ctx) && c.Docker.HasBinary(ctx, c.Image, "sipp")

	if c.Host != nil && c.Host.Run(ctx, sippTimeout, "which", "sipp").OK() {
		slog.Debug("sipp also found on host", "in_image", ok)
	}

	return ok
}

func (c *Checker) sippImage(ctx context.Context) bool {
	return c.Docker.Available(ctx) && c.Docker.ImageExists(ctx, c.Image)
}

func (c *Checker) sippContainer(ctx context.Context) bool {
	return c.sippImage(ctx) && c.Docker.Smoke(ctx, c.Image)
}

func (c *Checker) sippScenarios(ctx context.Context) bool {
	if !c.sippImage(ctx) {
		return false
	}

	for _, sc := range c.Scenarios {
		file := path.Join(c.ScenarioDir, string(sc)+".xml")

		if !c.Docker.FileExists(ctx, c.Image, file) {
			slog.Warn("scenario missing from image", "file", file)

			return false
		}
	}

	return true
}

func (c *Checker) kamailioNamespace(ctx context.Context) bool {
	return c.Cluster.Available(ctx) &&
		c.Cluster.NamespaceExists(ctx, c.Namespace)
}

func (c *Checker) kamailioDeployment(ctx context.Context) bool {
	return c.kamailioNamespace(ctx) &&
		c.Cluster.DeploymentExists(ctx, c.Namespace, c.Deployment)
}

func (c *Checker) kamailioPods(ctx context.Context) bool {
	if !c.kamailioNamespace(ctx) {
		return false
	}

	pods, err := c.Cluster.RunningPods(ctx, c.Namespace, c.AppLabel)

	return err == nil && len(pods) > 0
}

func (c *Checker) kamailioService(ctx context.Context) bool {
	return c.kamailioNamespace(ctx) &&
		c.Cluster.ServiceExists(ctx, c.Namespace, c.Service)
}
