package probe

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
)

// Protocol selects the transport probed.
type Protocol string

const (
	// UDP is used for SIP signalling.
	UDP Protocol = "udp"
	// TCP is the generic port check.
	TCP Protocol = "tcp"
)

// ParseProtocol validates a protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(s)) {
	case UDP:
		return UDP, nil
	case TCP:
		return TCP, nil
	default:
		return "", fmt.Errorf(
			"invalid protocol %q: must be udp or tcp", s,
		)
	}
}

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// containerGrace is added to the subprocess timeout
// when nc runs inside a freshly started container.
const containerGrace = 5 * time.Second

// Prober checks reachability of host:port.
type Prober interface {
	Reachable(
		ctx context.Context,
		host string,
		port int,
		proto Protocol,
	) bool
}

// Func adapts a plain function to the Prober interface.
type Func func(
	ctx context.Context,
	host string,
	port int,
	proto Protocol,
) bool

// Reachable delegates to the wrapped function.
func (f Func) Reachable(
	ctx context.Context,
	host string,
	port int,
	proto Protocol,
) bool {
	return f(ctx, host, port, proto)
}

// Netcat probes with `nc -z`. When Prefix is set the nc
// command is appended to it, which is how a probe is run
// inside a container (docker run --rm image ...).
type Netcat struct {
	Runner  exec.Runner
	Timeout time.Duration
	Prefix  []string
}

// NewNetcat returns a host-side netcat prober with the
// default timeout.
func NewNetcat(r exec.Runner) *Netcat {
	return &Netcat{Runner: r, Timeout: DefaultTimeout}
}

// Command returns the argv used to probe host:port.
func (n *Netcat) Command(
	host string,
	port int,
	proto Protocol,
) []string {
	flags := "-z"
	if proto == UDP {
		flags = "-zu"
	}

	argv := make([]string, 0, len(n.Prefix)+6)
	argv = append(argv, n.Prefix...)
	argv = append(
		argv,
		"nc", flags,
		"-w", strconv.Itoa(waitSeconds(n.timeout())),
		host, strconv.Itoa(port),
	)

	return argv
}

// Reachable runs nc and reports whether it exited 0.
func (n *Netcat) Reachable(
	ctx context.Context,
	host string,
	port int,
	proto Protocol,
) bool {
	argv := n.Command(host, port, proto)

	timeout := n.timeout()
	if len(n.Prefix) > 0 {
		timeout += containerGrace
	}

	out := n.Runner.Run(ctx, timeout, argv[0], argv[1:]...)

	slog.Debug(
		"probe",
		"host", host,
		"port", port,
		"proto", proto,
		"reachable", out.OK(),
		"exit", out.ExitCode,
		"error", out.Err,
	)

	return out.OK()
}

func (n *Netcat) timeout() time.Duration {
	if n.Timeout <= 0 {
		return DefaultTimeout
	}

	return n.Timeout
}

// waitSeconds converts a timeout to nc's -w seconds,
// never below 1.
func waitSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}

	return s
}
