package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

// LookupFunc reads one environment variable. os.LookupEnv
// satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment variables read by Load.
const (
	EnvHost        = "KAMAILIO_HOST"
	EnvPort        = "KAMAILIO_PORT"
	EnvEnvironment = "KAMAILIO_ENVIRONMENT"
	EnvKubeconfig  = "KUBECONFIG"

	envPrefix = "SIPPTEST_"
)

// fileConfig mirrors Config in the YAML file. Durations
// are Go duration strings ("5s"); zero values are unset.
type fileConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`

	Kube struct {
		Backend     string `yaml:"backend"`
		Kubeconfig  string `yaml:"kubeconfig"`
		Namespace   string `yaml:"namespace"`
		Service     string `yaml:"service"`
		Deployment  string `yaml:"deployment"`
		AppLabel    string `yaml:"app_label"`
		ConfigMap   string `yaml:"config_map"`
		ConfigKey   string `yaml:"config_key"`
		WorkerNode  string `yaml:"worker_node"`
		KindCluster string `yaml:"kind_cluster"`
		NodePort    int    `yaml:"node_port"`
		ClusterDNS  string `yaml:"cluster_dns"`
	} `yaml:"kube"`

	SIPp struct {
		Image           string `yaml:"image"`
		BuildContext    string `yaml:"build_context"`
		ScenarioDir     string `yaml:"scenario_dir"`
		HostScenarioDir string `yaml:"host_scenario_dir"`
		LocalPort       int    `yaml:"local_port"`
		KindNetwork     string `yaml:"kind_network"`
		ScenarioTimeout string `yaml:"scenario_timeout"`
		Pause           string `yaml:"pause"`
	} `yaml:"sipp"`

	Probe struct {
		Timeout        string `yaml:"timeout"`
		HealthProtocol string `yaml:"health_protocol"`
		RetryAttempts  int    `yaml:"retry_attempts"`
		RetryDelay     string `yaml:"retry_delay"`
	} `yaml:"probe"`

	PortForwardSettle string `yaml:"port_forward_settle"`
}

// Load builds the configuration from the defaults, the
// YAML file at path (skipped when path is empty) and the
// environment. An invalid KAMAILIO_* value is an error;
// an invalid SIPPTEST_* tuning value is logged and
// ignored.
func Load(path string, lookup LookupFunc) (Config, error) {
	const errCtx = "loading config"

	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}

	if err := cfg.mergeEnv(lookup); err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	const errCtx = "reading config file"

	raw, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %s does not exist", errCtx, path)
		}

		return fmt.Errorf("%s: %w", errCtx, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return c.mergeFileConfig(f)
}

//nolint:gocyclo // flat field-by-field merge
func (c *Config) mergeFileConfig(f fileConfig) error {
	const errCtx = "config file"

	setString(&c.Host, f.Host)
	setInt(&c.Port, f.Port)

	if f.Environment != "" {
		env, err := resolver.ParseEnvironment(f.Environment)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		c.Environment = env
	}

	if f.Kube.Backend != "" {
		b, err := ParseBackend(f.Kube.Backend)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		c.KubeBackend = b
	}

	setString(&c.Kubeconfig, f.Kube.Kubeconfig)
	setString(&c.Namespace, f.Kube.Namespace)
	setString(&c.Service, f.Kube.Service)
	setString(&c.Deployment, f.Kube.Deployment)
	setString(&c.AppLabel, f.Kube.AppLabel)
	setString(&c.ConfigMap, f.Kube.ConfigMap)
	setString(&c.ConfigKey, f.Kube.ConfigKey)
	setString(&c.WorkerNode, f.Kube.WorkerNode)
	setString(&c.KindCluster, f.Kube.KindCluster)
	setInt(&c.NodePort, f.Kube.NodePort)
	setString(&c.ClusterDNS, f.Kube.ClusterDNS)

	setString(&c.DockerImage, f.SIPp.Image)
	setString(&c.DockerContext, f.SIPp.BuildContext)
	setString(&c.ScenarioDir, f.SIPp.ScenarioDir)
	setString(&c.HostScenarioDir, f.SIPp.HostScenarioDir)
	setInt(&c.LocalSIPPort, f.SIPp.LocalPort)
	setString(&c.KindNetwork, f.SIPp.KindNetwork)
	setInt(&c.Retry.Attempts, f.Probe.RetryAttempts)

	if f.Probe.HealthProtocol != "" {
		p, err := probe.ParseProtocol(f.Probe.HealthProtocol)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		c.HealthProtocol = p
	}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sipp.scenario_timeout", f.SIPp.ScenarioTimeout, &c.ScenarioTimeout},
		{"sipp.pause", f.SIPp.Pause, &c.Pause},
		{"probe.timeout", f.Probe.Timeout, &c.ProbeTimeout},
		{"probe.retry_delay", f.Probe.RetryDelay, &c.Retry.Delay},
		{"port_forward_settle", f.PortForwardSettle, &c.PortForwardSettle},
	} {
		if d.raw == "" {
			continue
		}

		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", errCtx, d.name, err)
		}

		*d.dst = v
	}

	return nil
}

func (c *Config) mergeEnv(lookup LookupFunc) error {
	const errCtx = "environment"

	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Host = v
	}

	if v, ok := lookup(EnvPort); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %s=%q: %w", errCtx, EnvPort, v, err)
		}

		c.Port = p
	}

	if v, ok := lookup(EnvEnvironment); ok && v != "" {
		env, err := resolver.ParseEnvironment(v)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", errCtx, EnvEnvironment, err)
		}

		c.Environment = env
	}

	if v, ok := lookup(EnvKubeconfig); ok && v != "" {
		c.Kubeconfig = v
	}

	c.mergeTuning(lookup)

	return nil
}

// mergeTuning reads the SIPPTEST_* variables.
func (c *Config) mergeTuning(lookup LookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	num := func(key string, dst *int) {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return
		}

		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			slog.Warn("ignoring invalid setting", "env", envPrefix+key, "value", v)

			return
		}

		*dst = n
	}

	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return
		}

		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			slog.Warn("ignoring invalid setting", "env", envPrefix+key, "value", v)

			return
		}

		*dst = d
	}

	if v, ok := lookup(envPrefix + "KUBE_BACKEND"); ok && v != "" {
		if b, err := ParseBackend(v); err == nil {
			c.KubeBackend = b
		} else {
			slog.Warn("ignoring invalid setting", "env", envPrefix+"KUBE_BACKEND", "value", v)
		}
	}

	str("NAMESPACE", &c.Namespace)
	str("WORKER_NODE", &c.WorkerNode)
	str("DOCKER_IMAGE", &c.DockerImage)
	str("SCENARIO_DIR", &c.ScenarioDir)
	str("HOST_SCENARIO_DIR", &c.HostScenarioDir)
	num("NODE_PORT", &c.NodePort)
	num("RETRY_ATTEMPTS", &c.Retry.Attempts)
	dur("RETRY_DELAY", &c.Retry.Delay)
	dur("PROBE_TIMEOUT", &c.ProbeTimeout)
	dur("SCENARIO_TIMEOUT", &c.ScenarioTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
