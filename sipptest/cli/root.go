package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/config"
	"github.com/byte4ever/sipp_tester/sipptest/docker"
	"github.com/byte4ever/sipp_tester/sipptest/envcheck"
	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/kube"
	"github.com/byte4ever/sipp_tester/sipptest/logging"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
	"github.com/byte4ever/sipp_tester/sipptest/sipp"
)

// Version is set at build time.
//
//nolint:gochecknoglobals // set with -ldflags
var Version = "0.0.0"

// Output formats.
const (
	outputText = "text"
	outputJSON = "json"
)

// Deps replaces collaborators, for tests. Nil fields are
// built from the configuration.
type Deps struct {
	Lookup    config.LookupFunc
	Cluster   kube.Client
	Docker    *docker.Client
	Host      exec.Runner
	Prober    probe.Prober
	Forwarder kube.Forwarder

	// LogWriter receives text logs instead of stderr.
	LogWriter io.Writer
}

type globalFlags struct {
	host        string
	port        int
	environment string
	configPath  string
	kubeBackend string
	kubeconfig  string
	logLevel    string
	logFile     string
	output      string
}

type app struct {
	deps  Deps
	flags globalFlags

	cfg      config.Config
	closeLog func() error
}

// NewRootCmd returns the sipptest command tree.
func NewRootCmd(deps Deps) *cobra.Command {
	a := &app{deps: deps}

	cmd := &cobra.Command{
		Use:   "sipptest",
		Short: "Run SIPp scenarios against Kamailio on Kubernetes",
		Long: "sipptest resolves where Kamailio is reachable, checks " +
			"the test environment and runs the SIPp scenarios " +
			"against it.",
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.flags.host, "kamailio-host", "", "Kamailio host, optionally host:port")
	f.IntVar(&a.flags.port, "kamailio-port", 0, "Kamailio port")
	f.StringVar(&a.flags.environment, "environment", "", "target environment: local, prod or auto")
	f.StringVar(&a.flags.configPath, "config", "", "path to a YAML configuration file")
	f.StringVar(&a.flags.kubeBackend, "kube-backend", "", "cluster access: kubectl or api")
	f.StringVar(&a.flags.kubeconfig, "kubeconfig", "", "path to a kubeconfig file")
	f.StringVar(&a.flags.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&a.flags.logFile, "log-file", "", "write JSON logs to a rotating file")
	f.StringVarP(&a.flags.output, "output", "o", outputText, "text or json")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of sipptest",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sipptest version: %s\n", Version)
		},
	}

	cmd.AddCommand(
		versionCmd,
		a.resolveCmd(),
		a.envCmd(),
		a.healthCmd(),
		a.runCmd(),
		a.buildCmd(),
		a.waitCmd(),
		a.kamailioConfigCmd(),
		a.logsCmd(),
	)

	return cmd
}

// Execute runs the command tree with the process
// arguments.
func Execute(ctx context.Context) error {
	return NewRootCmd(Deps{}).ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	const errCtx = "sipptest"

	level, err := logging.ParseLevel(a.flags.logLevel)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	logWriter := a.deps.LogWriter
	if logWriter == nil {
		logWriter = cmd.ErrOrStderr()
	}

	a.closeLog, err = logging.Setup(logging.Options{
		Level:  level,
		File:   a.flags.logFile,
		Stderr: logWriter,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if a.flags.output != outputText && a.flags.output != outputJSON {
		return fmt.Errorf(
			"%s: invalid output %q: must be text or json",
			errCtx, a.flags.output,
		)
	}

	lookup := a.deps.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	a.cfg, err = config.Load(a.flags.configPath, lookup)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := a.cfg.Apply(config.Overrides{
		Host:        a.flags.host,
		Port:        a.flags.port,
		Environment: a.flags.environment,
		KubeBackend: a.flags.kubeBackend,
		Kubeconfig:  a.flags.kubeconfig,
	}); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Debug(
		"configuration",
		"environment", a.cfg.Environment,
		"backend", a.cfg.KubeBackend,
		"namespace", a.cfg.Namespace,
	)

	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.closeLog == nil {
		return nil
	}

	return a.closeLog()
}

func (a *app) cluster() (kube.Client, error) {
	if a.deps.Cluster != nil {
		return a.deps.Cluster, nil
	}

	c, err := kube.Open(string(a.cfg.KubeBackend), a.cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}

	a.deps.Cluster = c

	return c, nil
}

func (a *app) dockerClient() *docker.Client {
	if a.deps.Docker == nil {
		a.deps.Docker = docker.New()
	}

	return a.deps.Docker
}

func (a *app) hostRunner() exec.Runner {
	if a.deps.Host == nil {
		a.deps.Host = exec.System{}
	}

	return a.deps.Host
}

func (a *app) prober() probe.Prober {
	if a.deps.Prober == nil {
		nc := probe.NewNetcat(a.hostRunner())
		nc.Timeout = a.cfg.ProbeTimeout
		a.deps.Prober = nc
	}

	return a.deps.Prober
}

func (a *app) forwarder(c kube.Client) kube.Forwarder {
	if a.deps.Forwarder == nil {
		a.deps.Forwarder = kube.ForwarderFor(
			c,
			kube.ForwardSpec{
				Namespace:  a.cfg.Namespace,
				Service:    a.cfg.Service,
				LocalPort:  a.cfg.Port,
				RemotePort: a.cfg.Port,
			},
			a.cfg.PortForwardSettle,
			a.prober(),
		)
	}

	return a.deps.Forwarder
}

func (a *app) checker(c kube.Client) *envcheck.Checker {
	ch := envcheck.New(a.cfg, c)
	ch.Docker = a.dockerClient()
	ch.Host = a.hostRunner()
	ch.Prober = a.prober()
	ch.Forwarder = a.forwarder(c)

	return ch
}

// resolve walks the resolver chain. A cluster backend
// that cannot be opened leaves the resolver without
// cluster information.
func (a *app) resolve(ctx context.Context) resolver.Target {
	var cluster resolver.Cluster

	c, err := a.cluster()
	if err != nil {
		slog.Warn("no cluster access", "error", err)
	} else {
		cluster = c
	}

	return resolver.New(cluster, a.prober(), a.cfg.ResolverOptions()).
		Resolve(ctx)
}

// startForward opens a port-forward unless the cluster
// is Kind, in which case the session is nil.
func (a *app) startForward(ctx context.Context) (kube.Session, error) {
	c, err := a.cluster()
	if err != nil {
		return nil, err
	}

	if kube.IsKind(ctx, c, a.cfg.KindCluster) {
		slog.Info("kind cluster detected, no port-forward needed")

		return nil, nil //nolint:nilnil // no forward on Kind
	}

	return a.forwarder(c).Start(ctx)
}

func (a *app) tester(target resolver.Target) *sipp.Tester {
	return &sipp.Tester{
		Docker:   a.dockerClient(),
		Host:     a.hostRunner(),
		Target:   target,
		Settings: sipp.SettingsFrom(a.cfg),
	}
}

func (a *app) jsonOutput() bool {
	return a.flags.output == outputJSON
}

var (
	// ErrUnresolved is returned by resolve when only the
	// placeholder target could be produced.
	ErrUnresolved = errors.New("target unresolved")

	// ErrNotReady is returned by env when a required
	// check failed.
	ErrNotReady = errors.New("environment not ready")

	// ErrFailed is returned when a health check or a
	// scenario failed.
	ErrFailed = errors.New("tests failed")
)
