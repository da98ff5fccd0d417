// Package exectest provides a scripted exec.Runner for
// tests that must not touch real tools.
package exectest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
)

// Call records one command seen by the fake.
type Call struct {
	Timeout time.Duration
	Argv    []string
}

// Line returns the command line joined by spaces.
func (c Call) Line() string {
	return strings.Join(c.Argv, " ")
}

// Runner answers commands from a table of command-line
// prefixes. The longest matching prefix wins; unmatched
// commands get Default, or a tool-missing Output when
// Default is nil.
type Runner struct {
	mu      sync.Mutex
	rules   map[string][]exec.Output
	calls   []Call
	Default *exec.Output
}

// NewRunner returns an empty fake.
func NewRunner() *Runner {
	return &Runner{rules: make(map[string][]exec.Output)}
}

// On registers outputs for commands starting with
// prefix. When several outputs are given they are
// returned in order, the last one repeating.
func (r *Runner) On(prefix string, outs ...exec.Output) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules[prefix] = append(r.rules[prefix], outs...)

	return r
}

// OnStdout is a shorthand for a successful command
// printing stdout.
func (r *Runner) OnStdout(prefix, stdout string) *Runner {
	return r.On(prefix, exec.Output{Stdout: stdout})
}

// OnExit is a shorthand for a command exiting with
// code.
func (r *Runner) OnExit(prefix string, code int) *Runner {
	return r.On(prefix, exec.Output{ExitCode: code})
}

// Run implements exec.Runner.
func (r *Runner) Run(
	_ context.Context,
	timeout time.Duration,
	name string,
	arg ...string,
) exec.Output {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{
		Timeout: timeout,
		Argv:    append([]string{name}, arg...),
	}
	r.calls = append(r.calls, call)

	line := call.Line()

	best := ""
	found := false

	for prefix := range r.rules {
		if strings.HasPrefix(line, prefix) &&
			(!found || len(prefix) > len(best)) {
			best = prefix
			found = true
		}
	}

	if !found {
		if r.Default != nil {
			return *r.Default
		}

		return exec.Output{
			ExitCode: -1,
			Err:      ErrNotFound,
		}
	}

	outs := r.rules[best]
	out := outs[0]

	if len(outs) > 1 {
		r.rules[best] = outs[1:]
	}

	return out
}

// Calls returns the commands seen so far.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, len(r.calls))
	copy(out, r.calls)

	return out
}

// Lines returns the command lines seen so far.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	lines := make([]string, 0, len(calls))

	for _, c := range calls {
		lines = append(lines, c.Line())
	}

	return lines
}
