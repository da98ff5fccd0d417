package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/config"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

func env(kv map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := kv[key]

		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sipptest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 5060, cfg.Port)
	assert.Equal(t, resolver.Auto, cfg.Environment)
	assert.Equal(t, 30600, cfg.NodePort)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.Delay)
	assert.Equal(t, probe.TCP, cfg.HealthProtocol)
	assert.Equal(t, config.BackendKubectl, cfg.KubeBackend)
}

func TestLoad_env_overrides_defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("", env(map[string]string{
		config.EnvHost:        "10.0.0.5",
		config.EnvPort:        "5080",
		config.EnvEnvironment: "prod",
		config.EnvKubeconfig:  "/tmp/kubeconfig",
	}))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 5080, cfg.Port)
	assert.Equal(t, resolver.Prod, cfg.Environment)
	assert.Equal(t, "/tmp/kubeconfig", cfg.Kubeconfig)
}

func TestLoad_invalid_kamailio_env(t *testing.T) {
	t.Parallel()

	_, err := config.Load("", env(map[string]string{
		config.EnvPort: "sip",
	}))
	require.ErrorContains(t, err, "KAMAILIO_PORT")

	_, err = config.Load("", env(map[string]string{
		config.EnvEnvironment: "staging",
	}))
	require.ErrorContains(t, err, "staging")

	_, err = config.Load("", env(map[string]string{
		config.EnvPort: "70000",
	}))
	assert.ErrorContains(t, err, "out of range")
}

func TestLoad_tuning_env(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("", env(map[string]string{
		"SIPPTEST_RETRY_ATTEMPTS":    "3",
		"SIPPTEST_RETRY_DELAY":       "250ms",
		"SIPPTEST_SCENARIO_TIMEOUT":  "1m",
		"SIPPTEST_DOCKER_IMAGE":      "sipp:dev",
		"SIPPTEST_KUBE_BACKEND":      "api",
		"SIPPTEST_HOST_SCENARIO_DIR": "/srv/scenarios",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, time.Minute, cfg.ScenarioTimeout)
	assert.Equal(t, "sipp:dev", cfg.DockerImage)
	assert.Equal(t, config.BackendAPI, cfg.KubeBackend)
	assert.Equal(t, "/srv/scenarios", cfg.HostScenarioDir)
}

func TestLoad_invalid_tuning_env_ignored(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("", env(map[string]string{
		"SIPPTEST_RETRY_ATTEMPTS": "zero",
		"SIPPTEST_RETRY_DELAY":    "soon",
		"SIPPTEST_KUBE_BACKEND":   "grpc",
	}))
	require.NoError(t, err)

	assert.Equal(t, config.Default().Retry, cfg.Retry)
	assert.Equal(t, config.BackendKubectl, cfg.KubeBackend)
}

func TestLoad_yaml_file(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `
environment: local
port: 5070
kube:
  backend: api
  namespace: voip
  worker_node: lab-worker2
  node_port: 31000
sipp:
  image: sipp:test
  scenario_timeout: 45s
  pause: 0s
probe:
  health_protocol: udp
  retry_attempts: 2
  retry_delay: 100ms
port_forward_settle: 1s
`)

	cfg, err := config.Load(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, resolver.Local, cfg.Environment)
	assert.Equal(t, 5070, cfg.Port)
	assert.Equal(t, config.BackendAPI, cfg.KubeBackend)
	assert.Equal(t, "voip", cfg.Namespace)
	assert.Equal(t, "lab-worker2", cfg.WorkerNode)
	assert.Equal(t, 31000, cfg.NodePort)
	assert.Equal(t, "sipp:test", cfg.DockerImage)
	assert.Equal(t, 45*time.Second, cfg.ScenarioTimeout)
	assert.Equal(t, time.Duration(0), cfg.Pause)
	assert.Equal(t, probe.UDP, cfg.HealthProtocol)
	assert.Equal(t, 2, cfg.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, time.Second, cfg.PortForwardSettle)

	// untouched keys keep their defaults
	assert.Equal(t, "kamailio-service", cfg.Service)
}

func TestLoad_env_beats_file(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "environment: local\nhost: 10.0.0.1\n")

	cfg, err := config.Load(path, env(map[string]string{
		config.EnvEnvironment: "prod",
	}))
	require.NoError(t, err)

	assert.Equal(t, resolver.Prod, cfg.Environment)
	assert.Equal(t, "10.0.0.1", cfg.Host)
}

func TestLoad_file_errors(t *testing.T) {
	t.Parallel()

	_, err := config.Load(
		filepath.Join(t.TempDir(), "missing.yaml"), env(nil),
	)
	require.ErrorContains(t, err, "does not exist")

	_, err = config.Load(
		writeFile(t, "sipp:\n  pause: forever\n"), env(nil),
	)
	require.ErrorContains(t, err, "sipp.pause")

	_, err = config.Load(
		writeFile(t, "kube:\n  backend: grpc\n"), env(nil),
	)
	assert.ErrorContains(t, err, "grpc")
}

func TestApply_flags_beat_everything(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("", env(map[string]string{
		config.EnvHost: "10.0.0.5",
	}))
	require.NoError(t, err)

	require.NoError(t, cfg.Apply(config.Overrides{
		Host:        "10.0.0.9:30600",
		Environment: "local",
		KubeBackend: "api",
	}))

	assert.Equal(t, "10.0.0.9:30600", cfg.Host)
	assert.Equal(t, resolver.Local, cfg.Environment)
	assert.Equal(t, config.BackendAPI, cfg.KubeBackend)

	// zero overrides keep the loaded values
	assert.Equal(t, 5060, cfg.Port)

	assert.Error(t, cfg.Apply(config.Overrides{Environment: "qa"}))
}

func TestValidate_collects_every_problem(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Port = 0
	cfg.KindNetwork = "not-a-cidr"
	cfg.DockerImage = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "port 0 out of range")
	assert.ErrorContains(t, err, "kind network")
	assert.ErrorContains(t, err, "docker image is required")
}

func TestResolverOptions(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Host = "10.0.0.1"
	cfg.Environment = resolver.Prod

	opts := cfg.ResolverOptions()

	assert.Equal(t, "10.0.0.1", opts.Host)
	assert.Equal(t, resolver.Prod, opts.Environment)
	assert.Equal(t, cfg.ClusterDNS, opts.ClusterDNS)
	assert.Equal(t, 30600, opts.NodePort)
}

func TestKindNet(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	n := cfg.KindNet()
	require.NotNil(t, n)
	assert.Equal(t, "172.18.0.0/16", n.String())

	cfg.KindNetwork = "bogus"
	assert.Nil(t, cfg.KindNet())
}
