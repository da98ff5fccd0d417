package resolver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Environment selects the resolution chain.
type Environment string

const (
	// Local is a Kind cluster reached through a NodePort.
	Local Environment = "local"
	// Prod is a cluster exposing Kamailio through a
	// LoadBalancer service.
	Prod Environment = "prod"
	// Auto tries the local path first, then the others.
	Auto Environment = "auto"
)

// ParseEnvironment validates an environment name. The
// empty string means Auto.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Local:
		return Local, nil
	case Prod:
		return Prod, nil
	case Auto, "":
		return Auto, nil
	default:
		return "", fmt.Errorf(
			"invalid environment %q: must be one of local, prod, auto",
			s,
		)
	}
}

// Source records which step of the chain produced a
// Target.
type Source string

const (
	// Explicit means the host was supplied by the caller.
	Explicit Source = "explicit"
	// NodePort means the worker node answered on the
	// NodePort.
	NodePort Source = "nodeport"
	// NodePortUnverified means the worker node IP was
	// found but the NodePort probe failed.
	NodePortUnverified Source = "nodeport-unverified"
	// LoadBalancer means the service's external IP.
	LoadBalancer Source = "loadbalancer"
	// ClusterDNS is the in-cluster service name fallback.
	ClusterDNS Source = "cluster-dns"
	// PortForward means localhost answered, typically
	// through kubectl port-forward.
	PortForward Source = "port-forward"
	// Unresolved is the placeholder returned when no
	// step produced an address.
	Unresolved Source = "unresolved"
)

// Target is the canonical host:port pair under test.
// Host never contains a colon.
type Target struct {
	Host        string      `json:"host"`
	Port        int         `json:"port"`
	Environment Environment `json:"environment"`
	Source      Source      `json:"source"`
}

// Address returns host:port.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return t.Address()
}

// Resolved reports whether some step of the chain
// produced the address, verified or not.
func (t Target) Resolved() bool {
	return t.Source != Unresolved && t.Host != ""
}

// Canonicalize splits a host that embeds a port
// ("10.0.0.1:30600") into separate parts. The embedded
// port overrides port; a non-numeric suffix is dropped
// and port kept. The returned host never contains a
// colon.
func Canonicalize(host string, port int) (string, int) {
	host = strings.TrimSpace(host)

	h, rest, found := strings.Cut(host, ":")
	if !found {
		return host, port
	}

	if p, ok := parsePort(strings.SplitN(rest, ":", 2)[0]); ok {
		return h, p
	}

	return h, port
}

func parsePort(s string) (int, bool) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return 0, false
	}

	return p, true
}
