package kube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
	"github.com/byte4ever/sipp_tester/sipptest/retry"
)

// ErrForwardExited is returned when the port-forward
// process dies before it settled.
var ErrForwardExited = errors.New("port-forward exited early")

// ErrForwardUnreachable is returned when the settled
// port-forward does not accept connections.
var ErrForwardUnreachable = errors.New("port-forward not accepting connections")

// Session is a running port-forward.
type Session interface {
	// LocalPort is the port listening on localhost.
	LocalPort() int

	// Stop terminates the forward and waits for it.
	Stop() error
}

// Forwarder opens a port-forward to the Kamailio
// service.
type Forwarder interface {
	Start(ctx context.Context) (Session, error)
}

// ForwardSpec names what is forwarded.
type ForwardSpec struct {
	Namespace  string
	Service    string
	LocalPort  int
	RemotePort int
}

func (s ForwardSpec) ports() string {
	return strconv.Itoa(s.LocalPort) + ":" + strconv.Itoa(s.RemotePort)
}

// KubectlForwarder runs kubectl port-forward in the
// background.
type KubectlForwarder struct {
	Starter    exec.Starter
	Kubeconfig string
	Spec       ForwardSpec

	// Settle is how long the process is given to bind
	// before Start returns.
	Settle time.Duration

	// Verify, when set, must see localhost:LocalPort
	// accept a TCP connection once settled.
	Verify probe.Prober
}

// Start implements Forwarder.
func (f *KubectlForwarder) Start(ctx context.Context) (Session, error) {
	const errCtx = "starting port-forward"

	var arg []string
	if f.Kubeconfig != "" {
		arg = append(arg, "--kubeconfig", f.Kubeconfig)
	}

	arg = append(
		arg,
		"port-forward",
		"svc/"+f.Spec.Service,
		f.Spec.ports(),
		"-n", f.Spec.Namespace,
	)

	h, err := f.Starter.Start(ctx, "kubectl", arg...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !retry.Sleep(ctx, f.Settle) {
		return nil, multierr.Append(
			fmt.Errorf("%s: %w", errCtx, ctx.Err()),
			h.Stop(),
		)
	}

	if !h.Running() {
		return nil, multierr.Append(
			fmt.Errorf(
				"%s: svc/%s: %w", errCtx, f.Spec.Service, ErrForwardExited,
			),
			h.Stop(),
		)
	}

	if f.Verify != nil && !f.Verify.Reachable(
		ctx, "localhost", f.Spec.LocalPort, probe.TCP,
	) {
		return nil, multierr.Append(
			fmt.Errorf(
				"%s: localhost:%d: %w",
				errCtx, f.Spec.LocalPort, ErrForwardUnreachable,
			),
			h.Stop(),
		)
	}

	slog.Info(
		"port-forward started",
		"service", f.Spec.Service,
		"namespace", f.Spec.Namespace,
		"ports", f.Spec.ports(),
	)

	return &processSession{handle: h, local: f.Spec.LocalPort}, nil
}

type processSession struct {
	handle exec.Handle
	local  int
}

func (s *processSession) LocalPort() int { return s.local }

func (s *processSession) Stop() error {
	const errCtx = "stopping port-forward"

	if err := s.handle.Stop(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("port-forward stopped", "local_port", s.local)

	return nil
}

// APIForwarder forwards to the first ready pod backing
// the service through the SPDY port-forward subresource.
type APIForwarder struct {
	Client kubernetes.Interface
	Config *rest.Config
	Spec   ForwardSpec

	// Out receives the forwarder's progress messages.
	// Nil discards them.
	Out io.Writer
}

// BackingPod returns the first running and ready pod
// selected by the service.
func BackingPod(
	ctx context.Context,
	client kubernetes.Interface,
	namespace string,
	service string,
) (*corev1.Pod, error) {
	const errCtx = "finding backing pod"

	svc, err := client.CoreV1().
		Services(namespace).
		Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, notFound(err))
	}

	if len(svc.Spec.Selector) == 0 {
		return nil, fmt.Errorf(
			"%s: %s/%s has no selector: %w",
			errCtx, namespace, service, ErrNotFound,
		)
	}

	pods, err := client.CoreV1().
		Pods(namespace).
		List(ctx, metav1.ListOptions{
			LabelSelector: labels.SelectorFromSet(
				svc.Spec.Selector,
			).String(),
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.Status.Phase == corev1.PodRunning && podReady(pod) {
			return pod, nil
		}
	}

	return nil, fmt.Errorf(
		"%s: no ready pod for %s/%s: %w",
		errCtx, namespace, service, ErrNotFound,
	)
}

// Start implements Forwarder.
func (f *APIForwarder) Start(ctx context.Context) (Session, error) {
	const errCtx = "port forward"

	pod, err := BackingPod(
		ctx, f.Client, f.Spec.Namespace, f.Spec.Service,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"forwarding",
		"service", f.Spec.Service,
		"pod", pod.Namespace+"/"+pod.Name,
		"ports", f.Spec.ports(),
	)

	url := f.Client.CoreV1().
		RESTClient().Post().
		Resource("pods").
		Namespace(pod.Namespace).
		Name(pod.Name).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(f.Config)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: creating round tripper: %w",
			errCtx, err,
		)
	}

	dialer := spdy.NewDialer(
		upgrader,
		&http.Client{Transport: transport},
		http.MethodPost,
		url,
	)

	out := f.Out
	if out == nil {
		out = io.Discard
	}

	stop := make(chan struct{})
	ready := make(chan struct{})

	pf, err := portforward.New(
		dialer, []string{f.Spec.ports()}, stop,
		ready, out, os.Stderr,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: creating port forward: %w",
			errCtx, err,
		)
	}

	s := &streamSession{
		stop:  stop,
		done:  make(chan struct{}),
		local: f.Spec.LocalPort,
	}

	go func() {
		s.err = pf.ForwardPorts()
		close(s.done)
	}()

	select {
	case <-ready:
	case <-s.done:
		return nil, fmt.Errorf("%s: %w", errCtx, s.err)
	case <-ctx.Done():
		return nil, multierr.Append(
			fmt.Errorf("%s: %w", errCtx, ctx.Err()),
			s.Stop(),
		)
	}

	if ports, err := pf.GetPorts(); err == nil && len(ports) > 0 {
		s.local = int(ports[0].Local)
	}

	return s, nil
}

type streamSession struct {
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
	err   error
	local int
}

func (s *streamSession) LocalPort() int { return s.local }

func (s *streamSession) Stop() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done

	return s.err
}
