package envcheck_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/docker"
	"github.com/byte4ever/sipp_tester/sipptest/envcheck"
	"github.com/byte4ever/sipp_tester/sipptest/exec/exectest"
	"github.com/byte4ever/sipp_tester/sipptest/kube"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
	"github.com/byte4ever/sipp_tester/sipptest/sipp"
)

const (
	image    = "local/sipp-tester:latest"
	podsJSON = `{"items": [
	  {"metadata": {"name": "kamailio-1"}, "status": {"phase": "Running"}}
	]}`
)

func healthyDocker() *exectest.Runner {
	return dockerImage().OnExit("docker run --rm "+image+" which sipp", 0)
}

// dockerImage is a working docker with the image present
// and no answer registered for the sipp lookup.
func dockerImage() *exectest.Runner {
	return exectest.NewRunner().
		OnExit("docker --version", 0).
		OnStdout("docker images -q "+image, "3f2a9c1d\n").
		OnStdout(
			"docker run --rm "+image+" echo container-ok",
			"container-ok\n",
		).
		OnExit("docker run --rm "+image+" test -f", 0)
}

func healthyKubectl() *exectest.Runner {
	return kubectl(0, podsJSON)
}

func kubectl(clusterInfo int, pods string) *exectest.Runner {
	return exectest.NewRunner().
		OnExit("kubectl version --client", 0).
		OnExit("kubectl cluster-info", clusterInfo).
		OnExit("kubectl get namespace kamailio", 0).
		OnExit("kubectl get deployment kamailio -n kamailio", 0).
		OnStdout("kubectl get pods -n kamailio -l app=kamailio -o json", pods).
		OnExit("kubectl get service kamailio-service -n kamailio", 0)
}

func newChecker(dock, kc, host *exectest.Runner) *envcheck.Checker {
	return &envcheck.Checker{
		Docker:      &docker.Client{Runner: dock},
		Cluster:     &kube.Kubectl{Runner: kc},
		Host:        host,
		Image:       image,
		ScenarioDir: "/app/sipp-scenarios",
		Scenarios:   sipp.Scenarios(),
		Namespace:   "kamailio",
		Deployment:  "kamailio",
		Service:     "kamailio-service",
		AppLabel:    "app=kamailio",
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	s := envcheck.Status{
		envcheck.Docker:            true,
		envcheck.Kubectl:           true,
		envcheck.KubernetesCluster: true,
		envcheck.SippImage:         false,
	}

	assert.True(t, s.Ready())
	assert.True(t, s.Ready(envcheck.Required()...))
	assert.False(t, s.Ready(envcheck.SippCritical()...))
	assert.Equal(
		t,
		[]envcheck.Check{
			envcheck.SippImage, envcheck.SippContainer,
			envcheck.SippInstalled, envcheck.SippScenarios,
		},
		s.Missing(envcheck.SippCritical()...),
	)
	assert.Empty(t, s.Missing(envcheck.Docker))
	assert.False(t, envcheck.Status{}.Ready())
}

func TestPresets_are_known_checks(t *testing.T) {
	t.Parallel()

	all := envcheck.All()
	require.Len(t, all, 11)

	for _, preset := range [][]envcheck.Check{
		envcheck.Required(),
		envcheck.SippCritical(),
		envcheck.KamailioCritical(),
	} {
		for _, c := range preset {
			assert.Contains(t, all, c)
		}
	}
}

func TestGather_all_pass(t *testing.T) {
	t.Parallel()

	c := newChecker(
		healthyDocker(),
		healthyKubectl(),
		exectest.NewRunner().OnExit("which sipp", 0),
	)

	status, err := c.Gather(context.Background())
	require.NoError(t, err)

	assert.Len(t, status, len(envcheck.All()))

	for _, check := range envcheck.All() {
		assert.True(t, status[check], check)
	}

	assert.True(t, status.Ready(envcheck.KamailioCritical()...))
}

func TestGather_nothing_installed(t *testing.T) {
	t.Parallel()

	c := newChecker(
		exectest.NewRunner(),
		exectest.NewRunner(),
		exectest.NewRunner(),
	)

	status, err := c.Gather(context.Background())
	require.ErrorIs(t, err, envcheck.ErrCheckFailed)

	assert.Len(t, multierr.Errors(err), len(envcheck.All()))
	assert.False(t, status.Ready())
	assert.Equal(t, envcheck.Required(), status.Missing(envcheck.Required()...))
}

func TestGather_docker_missing(t *testing.T) {
	t.Parallel()

	c := newChecker(
		exectest.NewRunner(),
		healthyKubectl(),
		exectest.NewRunner().OnExit("which sipp", 0),
	)

	status, err := c.Gather(context.Background())

	errs := multierr.Errors(err)
	require.Len(t, errs, 5)
	assert.ErrorContains(t, errs[0], "docker: check failed")

	// sipp on the host does not make up for the image
	assert.False(t, status[envcheck.SippInstalled])
	assert.False(t, status[envcheck.SippImage])
	assert.False(t, status[envcheck.SippContainer])
	assert.True(t, status.Ready(envcheck.KamailioCritical()[1:]...))
}

func TestGather_sipp_checked_in_image(t *testing.T) {
	t.Parallel()

	dock := healthyDocker()
	c := newChecker(dock, healthyKubectl(), exectest.NewRunner())

	status, err := c.Gather(context.Background())
	require.NoError(t, err)

	assert.True(t, status[envcheck.SippInstalled])
	assert.Empty(t, status.Missing(envcheck.SippCritical()...))
	assert.Contains(t, dock.Lines(), "docker run --rm "+image+" which sipp")
}

func TestGather_sipp_missing_from_image(t *testing.T) {
	t.Parallel()

	c := newChecker(
		dockerImage().OnExit("docker run --rm "+image+" which sipp", 1),
		healthyKubectl(),
		exectest.NewRunner().OnExit("which sipp", 0),
	)

	status, err := c.Gather(context.Background())
	require.ErrorIs(t, err, envcheck.ErrCheckFailed)

	assert.Equal(
		t,
		[]envcheck.Check{envcheck.SippInstalled},
		status.Missing(envcheck.SippCritical()...),
	)
}

func TestGather_scenario_missing(t *testing.T) {
	t.Parallel()

	dock := healthyDocker().OnExit(
		"docker run --rm "+image+" test -f /app/sipp-scenarios/invite.xml", 1,
	)
	c := newChecker(
		dock, healthyKubectl(), exectest.NewRunner().OnExit("which sipp", 0),
	)

	status, err := c.Gather(context.Background())
	require.Error(t, err)

	assert.False(t, status[envcheck.SippScenarios])
	assert.True(t, status[envcheck.SippContainer])
}

func TestGather_cluster_down(t *testing.T) {
	t.Parallel()

	c := newChecker(
		healthyDocker(),
		kubectl(1, podsJSON),
		exectest.NewRunner().OnExit("which sipp", 0),
	)

	status, err := c.Gather(context.Background())
	require.Error(t, err)

	// each Kamailio check re-verifies the cluster
	assert.Equal(
		t,
		[]envcheck.Check{
			envcheck.KubernetesCluster, envcheck.KamailioNamespace,
			envcheck.KamailioDeployment, envcheck.KamailioPods,
			envcheck.KamailioService,
		},
		status.Missing(envcheck.KamailioCritical()...),
	)
	assert.True(t, status[envcheck.Kubectl])
}

type probes struct {
	calls []string
	ok    bool
}

func (p *probes) Reachable(
	_ context.Context,
	host string,
	_ int,
	proto probe.Protocol,
) bool {
	p.calls = append(p.calls, string(proto)+" "+host)

	return p.ok
}

func TestReadiness_local(t *testing.T) {
	t.Parallel()

	p := &probes{ok: true}
	c := newChecker(nil, healthyKubectl(), nil)
	c.Prober = p

	r := c.Readiness(context.Background(), resolver.Target{
		Host: "172.18.0.3", Port: 30600, Environment: resolver.Local,
	})

	assert.True(t, r.Ready())
	assert.Equal(t, []string{"udp 172.18.0.3"}, p.calls)
}

func TestReadiness_port_forward(t *testing.T) {
	t.Parallel()

	p := &probes{ok: true}
	starter := &exectest.Starter{}

	c := newChecker(nil, healthyKubectl(), nil)
	c.Prober = p
	c.Forwarder = &kube.KubectlForwarder{
		Starter: starter,
		Spec: kube.ForwardSpec{
			Namespace: "kamailio", Service: "kamailio-service",
			LocalPort: 5060, RemotePort: 5060,
		},
	}

	r := c.Readiness(context.Background(), resolver.Target{
		Host: "203.0.113.10", Port: 5060, Environment: resolver.Prod,
	})

	assert.True(t, r.Ready())
	assert.Equal(t, []string{"tcp localhost"}, p.calls)

	handles := starter.Handles()
	require.Len(t, handles, 1)
	assert.False(t, handles[0].Running())
}

func TestReadiness_forward_fails(t *testing.T) {
	t.Parallel()

	p := &probes{ok: true}
	c := newChecker(nil, healthyKubectl(), nil)
	c.Prober = p
	c.Forwarder = &kube.KubectlForwarder{
		Starter: &exectest.Starter{Err: errors.New("kubectl: not found")},
	}

	r := c.Readiness(context.Background(), resolver.Target{
		Host: "localhost", Port: 5060, Environment: resolver.Auto,
	})

	assert.True(t, r.PodsRunning)
	assert.True(t, r.ServiceExists)
	assert.False(t, r.PortAccessible)
	assert.False(t, r.Ready())
	assert.Empty(t, p.calls)
}

func TestReadiness_no_pods(t *testing.T) {
	t.Parallel()

	c := newChecker(nil, kubectl(0, `{"items": []}`), nil)
	c.Prober = &probes{ok: true}

	r := c.Readiness(context.Background(), resolver.Target{
		Host: "172.18.0.3", Port: 30600, Environment: resolver.Local,
	})

	assert.False(t, r.PodsRunning)
	assert.False(t, r.Ready())
}
