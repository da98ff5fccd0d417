package exectest

import (
	"context"
	"strings"
	"sync"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
)

// Starter records background commands and hands out
// Handles that stay running until stopped.
type Starter struct {
	mu      sync.Mutex
	started []string
	handles []*Handle

	// Err, when set, is returned by Start.
	Err error

	// Exited makes handles look like processes that died
	// right after starting.
	Exited bool
}

// Start implements exec.Starter.
func (s *Starter) Start(
	_ context.Context,
	name string,
	arg ...string,
) (exec.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = append(
		s.started,
		strings.Join(append([]string{name}, arg...), " "),
	)

	if s.Err != nil {
		return nil, s.Err
	}

	h := &Handle{running: !s.Exited}
	s.handles = append(s.handles, h)

	return h, nil
}

// Started returns the command lines started so far.
func (s *Starter) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.started...)
}

// Handles returns the handles given out so far.
func (s *Starter) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*Handle(nil), s.handles...)
}

// Handle is a fake background process.
type Handle struct {
	mu      sync.Mutex
	running bool
	stops   int
}

// Running implements exec.Handle.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.running
}

// Stop implements exec.Handle.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
	h.stops++

	return nil
}

// Exit marks the process as exited on its own.
func (h *Handle) Exit() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
}

// Stops returns how many times Stop was called.
func (h *Handle) Stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.stops
}
