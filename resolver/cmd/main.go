// Package main provides the resolver CLI that prints the
// Kamailio address to test against, for use in shell
// scripts:
//
//	KAMAILIO=$(resolver -environment local)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/byte4ever/sipp_tester/resolver"
	"github.com/byte4ever/sipp_tester/sipptest/config"
	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/kube"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

var errUnresolved = errors.New("kamailio target unresolved")

func run() error {
	const errCtx = "resolver"

	var (
		host        string
		port        int
		environment string
		configPath  string
		strict      bool
	)

	flag.StringVar(
		&host, "kamailio-host", "",
		"explicit Kamailio host, optionally host:port",
	)

	flag.IntVar(
		&port, "kamailio-port", 0,
		"explicit Kamailio port",
	)

	flag.StringVar(
		&environment, "environment", "",
		"local, prod or auto",
	)

	flag.StringVar(
		&configPath, "config", "",
		"path to a sipptest YAML configuration",
	)

	flag.BoolVar(
		&strict, "strict", false,
		"fail instead of printing the placeholder target",
	)

	flag.Parse()

	cfg, err := config.Load(configPath, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := cfg.Apply(config.Overrides{
		Host:        host,
		Port:        port,
		Environment: environment,
	}); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	var cluster resolver.Cluster

	c, err := kube.Open(string(cfg.KubeBackend), cfg.Kubeconfig)
	if err != nil {
		slog.Warn("no cluster access", "error", err)
	} else {
		cluster = c
	}

	nc := probe.NewNetcat(exec.System{})
	nc.Timeout = cfg.ProbeTimeout

	target := resolver.New(cluster, nc, cfg.ResolverOptions()).
		Resolve(context.Background())

	if strict && !target.Resolved() {
		return fmt.Errorf("%s: %w", errCtx, errUnresolved)
	}

	fmt.Println(target.Address())

	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
