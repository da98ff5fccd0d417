package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/envcheck"
	"github.com/byte4ever/sipp_tester/sipptest/kube"
	"github.com/byte4ever/sipp_tester/sipptest/sipp"
)

const (
	defaultWaitTimeout = 2 * time.Minute
	defaultLogTail     = 100
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing json: %w", err)
	}

	return nil
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print where Kamailio is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := a.resolve(cmd.Context())

			var err error
			if a.jsonOutput() {
				err = writeJSON(cmd.OutOrStdout(), t)
			} else {
				_, err = fmt.Fprintf(
					cmd.OutOrStdout(),
					"%s (source %s, environment %s)\n",
					t.Address(), t.Source, t.Environment,
				)
			}

			if err != nil {
				return err
			}

			if !t.Resolved() {
				return ErrUnresolved
			}

			return nil
		},
	}
}

type envReport struct {
	Checks    envcheck.Status     `json:"checks"`
	Ready     bool                `json:"ready"`
	Target    *resolver.Target    `json:"target,omitempty"`
	Readiness *envcheck.Readiness `json:"readiness,omitempty"`
}

func (a *app) envCmd() *cobra.Command {
	var readiness bool

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Check the test environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := a.cluster()
			if err != nil {
				return err
			}

			ch := a.checker(c)

			// failed checks are reported through the status
			status, _ := ch.Gather(ctx)

			rep := envReport{Checks: status, Ready: status.Ready()}

			if readiness {
				t := a.resolve(ctx)
				r := ch.Readiness(ctx, t)
				rep.Target = &t
				rep.Readiness = &r
			}

			if a.jsonOutput() {
				err = writeJSON(cmd.OutOrStdout(), rep)
			} else {
				err = printEnv(cmd.OutOrStdout(), rep)
			}

			if err != nil {
				return err
			}

			if !rep.Ready {
				return fmt.Errorf(
					"%w: missing %v",
					ErrNotReady, status.Missing(envcheck.Required()...),
				)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(
		&readiness, "readiness", false,
		"also probe the Kamailio pods, service and port",
	)

	return cmd
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}

	return "--"
}

func printEnv(w io.Writer, rep envReport) error {
	for _, c := range envcheck.All() {
		if _, err := fmt.Fprintf(
			w, "[%s] %s\n", mark(rep.Checks[c]), c,
		); err != nil {
			return fmt.Errorf("printing status: %w", err)
		}
	}

	if rep.Readiness != nil {
		fmt.Fprintf(w, "\nkamailio at %s\n", rep.Target.Address())
		fmt.Fprintf(w, "[%s] pods running\n", mark(rep.Readiness.PodsRunning))
		fmt.Fprintf(w, "[%s] service exists\n", mark(rep.Readiness.ServiceExists))
		fmt.Fprintf(w, "[%s] port accessible\n", mark(rep.Readiness.PortAccessible))
	}

	_, err := fmt.Fprintf(w, "\nready: %t\n", rep.Ready)

	return err
}

// prepare resolves the target, forwarding first when
// asked. A live forward is the target unless a host was
// given explicitly. stop is never nil.
func (a *app) prepare(
	ctx context.Context,
	forward bool,
) (resolver.Target, func(), error) {
	stop := func() {}

	if !forward {
		return a.resolve(ctx), stop, nil
	}

	session, err := a.startForward(ctx)
	if err != nil {
		return resolver.Target{}, stop, err
	}

	if session == nil {
		return a.resolve(ctx), stop, nil
	}

	stop = func() {
		if err := session.Stop(); err != nil {
			slog.Warn("stopping port-forward", "error", err)
		}
	}

	if a.cfg.Host != "" {
		return a.resolve(ctx), stop, nil
	}

	target := resolver.Target{
		Host:        "localhost",
		Port:        session.LocalPort(),
		Environment: a.cfg.Environment,
		Source:      resolver.PortForward,
	}
	slog.Info("using port-forward", "target", target.Address())

	return target, stop, nil
}

func (a *app) report(
	w io.Writer,
	target resolver.Target,
	results []sipp.Result,
) error {
	var err error
	if a.jsonOutput() {
		err = sipp.WriteJSON(w, target.Address(), results)
	} else {
		err = sipp.PrintResults(w, results)
	}

	if err != nil {
		return err
	}

	if !sipp.AllPassed(results) {
		s := sipp.Summarize(results)

		return fmt.Errorf("%w: %d of %d", ErrFailed, s.Failed, s.Total)
	}

	return nil
}

func (a *app) healthCmd() *cobra.Command {
	var forward bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that Kamailio answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, stop, err := a.prepare(cmd.Context(), forward)
			defer stop()

			if err != nil {
				return err
			}

			res := a.tester(target).HealthCheck(cmd.Context())

			return a.report(cmd.OutOrStdout(), target, []sipp.Result{res})
		},
	}

	cmd.Flags().BoolVar(
		&forward, "port-forward", false,
		"forward the Kamailio service to localhost first",
	)

	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var forward bool

	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run the health check and SIPp scenarios",
		Long: "Runs the health check, then the given scenarios " +
			"(options, register, invite, ping; all by default).",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios := make([]sipp.Scenario, 0, len(args))

			for _, arg := range args {
				sc, err := sipp.ParseScenario(arg)
				if err != nil {
					return err
				}

				scenarios = append(scenarios, sc)
			}

			target, stop, err := a.prepare(cmd.Context(), forward)
			defer stop()

			if err != nil {
				return err
			}

			results := a.tester(target).RunAll(cmd.Context(), scenarios...)

			return a.report(cmd.OutOrStdout(), target, results)
		},
	}

	cmd.Flags().BoolVar(
		&forward, "port-forward", false,
		"forward the Kamailio service to localhost first",
	)

	return cmd
}

func (a *app) buildCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the SIPp image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.DockerContext
			}

			if err := a.dockerClient().Build(
				cmd.Context(), a.cfg.DockerImage, dir,
			); err != nil {
				return err
			}

			_, err := fmt.Fprintf(
				cmd.OutOrStdout(), "built %s\n", a.cfg.DockerImage,
			)

			return err
		},
	}

	cmd.Flags().StringVar(
		&dir, "context", "",
		"docker build context (default from configuration)",
	)

	return cmd
}

func (a *app) waitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until a Kamailio pod is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.cluster()
			if err != nil {
				return err
			}

			if err := c.WaitForPods(
				cmd.Context(), a.cfg.Namespace, a.cfg.AppLabel, timeout,
			); err != nil {
				return err
			}

			_, err = fmt.Fprintf(
				cmd.OutOrStdout(), "pods %s ready in %s\n",
				a.cfg.AppLabel, a.cfg.Namespace,
			)

			return err
		},
	}

	cmd.Flags().DurationVar(
		&timeout, "timeout", defaultWaitTimeout, "how long to wait",
	)

	return cmd
}

func (a *app) kamailioConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kamailio-config",
		Short: "Print the deployed Kamailio configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.cluster()
			if err != nil {
				return err
			}

			v, err := c.ConfigMapValue(
				cmd.Context(),
				a.cfg.Namespace, a.cfg.ConfigMap, a.cfg.ConfigKey,
			)
			if err != nil {
				return err
			}

			_, err = io.WriteString(cmd.OutOrStdout(), v)

			return err
		},
	}
}

func (a *app) logsCmd() *cobra.Command {
	opts := kube.LogOptions{Tail: defaultLogTail}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the Kamailio pod logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.cluster()
			if err != nil {
				return err
			}

			opts.Namespace = a.cfg.Namespace
			opts.Selector = a.cfg.AppLabel

			return c.Logs(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().Int64Var(
		&opts.Tail, "tail", defaultLogTail,
		"lines per container, 0 for all",
	)
	cmd.Flags().BoolVarP(
		&opts.Follow, "follow", "f", false, "stream new lines",
	)

	return cmd
}
