package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// Handle is a command left running in the background.
type Handle interface {
	// Running reports whether the process has not
	// exited yet.
	Running() bool

	// Stop terminates the process and waits for it.
	Stop() error
}

// Starter starts long-lived background commands such
// as kubectl port-forward.
type Starter interface {
	Start(
		ctx context.Context,
		name string,
		arg ...string,
	) (Handle, error)
}

// Start launches the named command without waiting for
// it. Output is discarded.
func (s System) Start(
	ctx context.Context,
	name string,
	arg ...string,
) (Handle, error) {
	const errCtx = "starting command"

	slog.Info(
		"starting",
		"cmd", name,
		"args", strings.Join(arg, " "),
	)

	cmd := exec.CommandContext(ctx, name, arg...)
	if s.Dir != "" {
		cmd.Dir = s.Dir
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, name, strings.Join(arg, " "), err,
		)
	}

	p := &process{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

type process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	once    sync.Once
	stopErr error
}

func (p *process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop sends SIGTERM and waits for exit. An exit caused
// by our own signal is not an error.
func (p *process) Stop() error {
	p.once.Do(func() {
		if p.Running() {
			if err := p.cmd.Process.Signal(
				syscall.SIGTERM,
			); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.stopErr = fmt.Errorf(
					"terminating %s: %w", p.cmd.Path, err,
				)
			}
		}

		<-p.done

		var ee *exec.ExitError
		if errors.As(p.waitErr, &ee) && !ee.Exited() {
			return
		}

		if p.waitErr != nil && p.stopErr == nil {
			p.stopErr = fmt.Errorf(
				"waiting for %s: %w", p.cmd.Path, p.waitErr,
			)
		}
	})

	return p.stopErr
}
