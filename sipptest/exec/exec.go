package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is reported in Output.Err when the command
// outlived its timeout and was killed.
var ErrTimeout = errors.New("command timed out")

// Output is the captured outcome of one command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration

	// Err is nil when the command ran to completion,
	// whatever its exit code. It carries ErrTimeout or
	// the invocation error (e.g. executable not found)
	// otherwise.
	Err error
}

// OK reports whether the command ran and exited 0.
func (o Output) OK() bool {
	return o.Err == nil && o.ExitCode == 0
}

// TimedOut reports whether the command was killed on
// timeout.
func (o Output) TimedOut() bool {
	return errors.Is(o.Err, ErrTimeout)
}

// Trimmed returns stdout without surrounding
// whitespace.
func (o Output) Trimmed() string {
	return strings.TrimSpace(o.Stdout)
}

// AsError converts a failed Output into an error
// carrying the exit code and stderr. It returns nil
// when the command succeeded.
func (o Output) AsError(name string, arg ...string) error {
	if o.OK() {
		return nil
	}

	cmdline := strings.TrimSpace(
		name + " " + strings.Join(arg, " "),
	)

	if o.Err != nil {
		return fmt.Errorf("%s: %w", cmdline, o.Err)
	}

	return fmt.Errorf(
		"%s: exit code %d: %s",
		cmdline, o.ExitCode, strings.TrimSpace(o.Stderr),
	)
}

// Runner runs a command to completion. A zero or
// negative timeout means no timeout beyond ctx.
type Runner interface {
	Run(
		ctx context.Context,
		timeout time.Duration,
		name string,
		arg ...string,
	) Output
}

// RunnerFunc adapts a plain function to the Runner
// interface.
type RunnerFunc func(
	ctx context.Context,
	timeout time.Duration,
	name string,
	arg ...string,
) Output

// Run delegates to the wrapped function.
func (f RunnerFunc) Run(
	ctx context.Context,
	timeout time.Duration,
	name string,
	arg ...string,
) Output {
	return f(ctx, timeout, name, arg...)
}

// System runs commands on the local host. Pass an
// empty Dir to use the current working directory.
type System struct {
	Dir string
}

// Run executes the named command, capturing stdout and
// stderr separately.
func (s System) Run(
	ctx context.Context,
	timeout time.Duration,
	name string,
	arg ...string,
) Output {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slog.Debug(
		"executing",
		"cmd", name,
		"args", strings.Join(arg, " "),
	)

	cmd := exec.CommandContext(ctx, name, arg...)
	if s.Dir != "" {
		cmd.Dir = s.Dir
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	out.ExitCode, out.Err = classify(ctx, err)

	slog.Debug(
		"output",
		"cmd", name,
		"exit", out.ExitCode,
		"duration", out.Duration,
		"error", out.Err,
	)

	return out
}

// classify maps the error returned by exec.Cmd.Run to
// an exit code and an invocation error.
func classify(ctx context.Context, err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return -1, ErrTimeout
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}

		return ee.ExitCode(), nil
	}

	return -1, err
}
