package harness

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/config"
	"github.com/byte4ever/sipp_tester/sipptest/docker"
	"github.com/byte4ever/sipp_tester/sipptest/envcheck"
	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/kube"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
	"github.com/byte4ever/sipp_tester/sipptest/sipp"
)

// setupTimeout bounds Setup, image build included. The
// port-forward it starts lives until Teardown.
const setupTimeout = 10 * time.Minute

//nolint:gochecknoglobals // test infra flags
var (
	kamailioHost = flag.String(
		"kamailio-host", "",
		"Kamailio host, optionally host:port",
	)
	kamailioPort = flag.Int(
		"kamailio-port", 0,
		"Kamailio port",
	)
	environment = flag.String(
		"environment", "",
		"target environment: local, prod or auto",
	)
	runWithKamailio = flag.Bool(
		"run-with-kamailio", false,
		"run the tests that need a deployed Kamailio",
	)
	buildDocker = flag.Bool(
		"build-docker", false,
		"build the SIPp image before running",
	)
	configPath = flag.String(
		"sipptest-config", "",
		"path to a sipptest YAML configuration",
	)
)

// Flags are the command-line switches of a test binary.
type Flags struct {
	Host            string
	Port            int
	Environment     string
	RunWithKamailio bool
	BuildDocker     bool
	ConfigPath      string
}

// CommandLine returns the parsed test flags.
func CommandLine() Flags {
	return Flags{
		Host:            *kamailioHost,
		Port:            *kamailioPort,
		Environment:     *environment,
		RunWithKamailio: *runWithKamailio,
		BuildDocker:     *buildDocker,
		ConfigPath:      *configPath,
	}
}

// Callback is invoked after Setup but before tests run.
type Callback func(*Suite) error

// Suite holds what TestMain prepared. Non-nil
// collaborators are used as given; nil ones are built
// from the configuration.
type Suite struct {
	Flags  Flags
	Lookup config.LookupFunc

	Cluster   kube.Client
	Docker    *docker.Client
	Host      exec.Runner
	Prober    probe.Prober
	Forwarder kube.Forwarder
	Checker   *envcheck.Checker

	ReadyCallback Callback

	// Set by Setup.
	Config config.Config
	Status envcheck.Status
	Target resolver.Target

	session     kube.Session
	stopForward context.CancelFunc
}

//nolint:gochecknoglobals // shared by the package helpers
var defaultSuite = &Suite{}

// Main runs the default suite. Call it from TestMain.
func Main(m *testing.M) {
	defaultSuite.TestMain(m)
}

// Default returns the suite prepared by Main.
func Default() *Suite {
	return defaultSuite
}

// TestMain parses the flags, prepares the environment,
// runs the ReadyCallback if set, then executes the test
// suite. The port-forward is stopped on completion.
func (s *Suite) TestMain(m *testing.M) {
	os.Exit(func() int {
		flag.Parse()

		s.Flags = CommandLine()

		ctx, cancel := context.WithTimeout(
			context.Background(), setupTimeout,
		)
		defer cancel()

		if err := s.Setup(ctx); err != nil {
			slog.Error("test setup failed", "error", err)

			return 1
		}

		defer func() {
			if err := s.Teardown(); err != nil {
				slog.Error("test teardown failed", "error", err)
			}
		}()

		if s.ReadyCallback != nil {
			if err := s.ReadyCallback(s); err != nil {
				slog.Error("ready callback failed", "error", err)

				return 1
			}
		}

		return m.Run()
	}())
}

// Setup loads the configuration and prepares the
// environment. Only configuration errors and a failed
// image build are fatal; anything else missing is left
// to the skip helpers.
func (s *Suite) Setup(ctx context.Context) error {
	const errCtx = "preparing suite"

	cfg, err := config.Load(s.Flags.ConfigPath, s.Lookup)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := cfg.Apply(config.Overrides{
		Host:        s.Flags.Host,
		Port:        s.Flags.Port,
		Environment: s.Flags.Environment,
	}); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	s.Config = cfg

	if err := s.defaults(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if s.Flags.BuildDocker {
		if err := s.Docker.Build(
			ctx, cfg.DockerImage, cfg.DockerContext,
		); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	s.Status, err = s.Checker.Gather(ctx)
	if err != nil {
		slog.Warn("environment incomplete", "error", err)
	}

	if s.Flags.RunWithKamailio {
		s.forward(ctx)
	}

	s.Target = resolver.New(
		s.Cluster, s.Prober, cfg.ResolverOptions(),
	).Resolve(ctx)

	return nil
}

func (s *Suite) defaults() error {
	if s.Cluster == nil {
		c, err := kube.Open(string(s.Config.KubeBackend), s.Config.Kubeconfig)
		if err != nil {
			return err
		}

		s.Cluster = c
	}

	if s.Docker == nil {
		s.Docker = docker.New()
	}

	if s.Host == nil {
		s.Host = exec.System{}
	}

	if s.Prober == nil {
		nc := probe.NewNetcat(s.Host)
		nc.Timeout = s.Config.ProbeTimeout
		s.Prober = nc
	}

	if s.Forwarder == nil {
		s.Forwarder = kube.ForwarderFor(
			s.Cluster,
			kube.ForwardSpec{
				Namespace:  s.Config.Namespace,
				Service:    s.Config.Service,
				LocalPort:  s.Config.Port,
				RemotePort: s.Config.Port,
			},
			s.Config.PortForwardSettle,
			s.Prober,
		)
	}

	if s.Checker == nil {
		c := envcheck.New(s.Config, s.Cluster)
		c.Docker = s.Docker
		c.Host = s.Host
		c.Prober = s.Prober
		c.Forwarder = s.Forwarder
		s.Checker = c
	}

	return nil
}

// forward starts the port-forward unless the cluster is
// Kind, whose NodePort is reachable directly. A failed
// forward is logged; the tests needing it skip.
func (s *Suite) forward(ctx context.Context) {
	if kube.IsKind(ctx, s.Cluster, s.Config.KindCluster) {
		slog.Info("kind cluster detected, no port-forward needed")

		return
	}

	// The forward process is bound to this context, so it
	// must not inherit the setup deadline.
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	session, err := s.Forwarder.Start(fctx)
	if err != nil {
		cancel()
		slog.Warn("port-forward failed", "error", err)

		return
	}

	s.session = session
	s.stopForward = cancel
}

// Teardown stops the port-forward if one is running.
func (s *Suite) Teardown() error {
	if s.session == nil {
		return nil
	}

	err := s.session.Stop()
	s.session = nil

	if s.stopForward != nil {
		s.stopForward()
		s.stopForward = nil
	}

	if err != nil {
		return fmt.Errorf("stopping port-forward: %w", err)
	}

	return nil
}

// Forwarding reports whether a port-forward is running.
func (s *Suite) Forwarding() bool {
	return s.session != nil
}

// Tester returns a runner for the resolved target.
func (s *Suite) Tester() *sipp.Tester {
	return &sipp.Tester{
		Docker:   s.Docker,
		Host:     s.Host,
		Target:   s.Target,
		Settings: sipp.SettingsFrom(s.Config),
	}
}
