package kube

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned when a looked-up value does
// not exist or is empty.
var ErrNotFound = errors.New("not found")

// Cluster is the cluster introspection used by the
// resolver, the environment checks and the CLI.
// Predicates return false on any failure.
type Cluster interface {
	// ClientAvailable reports whether the client side
	// works, without contacting the cluster.
	ClientAvailable(ctx context.Context) bool

	// Available reports whether the API server answers.
	Available(ctx context.Context) bool

	NamespaceExists(ctx context.Context, namespace string) bool
	CreateNamespace(ctx context.Context, namespace string) error

	DeploymentExists(
		ctx context.Context,
		namespace string,
		name string,
	) bool

	// RunningPods returns the names of the pods matching
	// selector whose phase is Running.
	RunningPods(
		ctx context.Context,
		namespace string,
		selector string,
	) ([]string, error)

	ServiceExists(
		ctx context.Context,
		namespace string,
		name string,
	) bool

	NodeInternalIP(ctx context.Context, node string) (string, error)
	NodeNames(ctx context.Context) ([]string, error)

	// ServiceNodePort returns the first NodePort of the
	// service.
	ServiceNodePort(
		ctx context.Context,
		namespace string,
		service string,
	) (int, error)

	// LoadBalancerIP returns the first ingress IP of a
	// LoadBalancer service.
	LoadBalancerIP(
		ctx context.Context,
		namespace string,
		service string,
	) (string, error)

	ConfigMapValue(
		ctx context.Context,
		namespace string,
		name string,
		key string,
	) (string, error)

	// WaitForPods blocks until at least one pod matching
	// selector is ready, or timeout elapses.
	WaitForPods(
		ctx context.Context,
		namespace string,
		selector string,
		timeout time.Duration,
	) error
}

// LogOptions selects what Logs prints.
type LogOptions struct {
	Namespace string
	Selector  string

	// Tail limits the output to the last lines of each
	// container. Zero or negative prints everything.
	Tail int64

	// Follow streams until ctx is done.
	Follow bool
}

// LogSource prints the logs of the pods matching a
// selector, each line prefixed with pod/container.
type LogSource interface {
	Logs(ctx context.Context, w io.Writer, opts LogOptions) error
}

// IsKind reports whether the cluster is the Kind cluster
// named kindCluster, by looking for its name in the node
// names. Kind clusters are reached through the NodePort
// and need no port-forward.
func IsKind(
	ctx context.Context,
	c Cluster,
	kindCluster string,
) bool {
	if kindCluster == "" {
		return false
	}

	nodes, err := c.NodeNames(ctx)
	if err != nil {
		return false
	}

	return slices.ContainsFunc(nodes, func(n string) bool {
		return strings.Contains(n, kindCluster)
	})
}
