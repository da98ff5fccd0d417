// Package cli implements the sipptest command: target
// resolution, environment status, health check, scenario
// runs and a few cluster helpers, all sharing one
// configuration resolved before the subcommand runs.
package cli
