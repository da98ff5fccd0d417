package kube

import (
	"fmt"
	"time"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

// Backend names.
const (
	BackendKubectl = "kubectl"
	BackendAPI     = "api"
)

// Client is a full backend: cluster queries plus pod
// logs.
type Client interface {
	Cluster
	LogSource
}

// Open returns the backend named backend. An empty name
// selects kubectl.
func Open(backend, kubeconfig string) (Client, error) {
	const errCtx = "opening kube backend"

	switch backend {
	case BackendKubectl, "":
		return NewKubectl(kubeconfig), nil
	case BackendAPI:
		a, err := NewAPI(kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return a, nil
	default:
		return nil, fmt.Errorf("%s: unknown backend %q", errCtx, backend)
	}
}

// ForwarderFor returns the Forwarder matching the
// backend of c: a client-go stream for API, a background
// kubectl process otherwise. A non-nil verify checks the
// kubectl forward answers before it is handed out.
func ForwarderFor(
	c Client,
	spec ForwardSpec,
	settle time.Duration,
	verify probe.Prober,
) Forwarder {
	switch b := c.(type) {
	case *API:
		return &APIForwarder{
			Client: b.Client,
			Config: b.Config,
			Spec:   spec,
		}
	case *Kubectl:
		return &KubectlForwarder{
			Starter:    exec.System{},
			Kubeconfig: b.Kubeconfig,
			Spec:       spec,
			Settle:     settle,
			Verify:     verify,
		}
	default:
		return &KubectlForwarder{
			Starter: exec.System{},
			Spec:    spec,
			Settle:  settle,
			Verify:  verify,
		}
	}
}
