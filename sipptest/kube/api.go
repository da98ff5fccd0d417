package kube

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const informerResync = 30 * time.Second

// API implements Cluster and LogSource with client-go.
type API struct {
	Client kubernetes.Interface

	// Config is needed for port forwarding only.
	Config *rest.Config
}

// RESTConfig loads a client configuration. An empty
// kubeconfig means ~/.kube/config, or the in-cluster
// configuration when running inside a pod.
func RESTConfig(kubeconfig string) (*rest.Config, error) {
	const errCtx = "building kubeconfig"

	if kubeconfig == "" {
		if _, ok := os.LookupEnv(
			"KUBERNETES_SERVICE_HOST",
		); !ok {
			kubeconfig = filepath.Join(
				homedir.HomeDir(),
				".kube", "config",
			)
		}
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

// NewAPI returns an API backend for the given
// kubeconfig.
func NewAPI(kubeconfig string) (*API, error) {
	const errCtx = "creating api backend"

	cfg, err := RESTConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &API{Client: client, Config: cfg}, nil
}

// ClientAvailable implements Cluster. The client is
// compiled in.
func (a *API) ClientAvailable(context.Context) bool {
	return a.Client != nil
}

// Available implements Cluster.
func (a *API) Available(context.Context) bool {
	_, err := a.Client.Discovery().ServerVersion()

	return err == nil
}

// NamespaceExists implements Cluster.
func (a *API) NamespaceExists(
	ctx context.Context,
	namespace string,
) bool {
	_, err := a.Client.CoreV1().
		Namespaces().
		Get(ctx, namespace, metav1.GetOptions{})

	return err == nil
}

// CreateNamespace implements Cluster.
func (a *API) CreateNamespace(
	ctx context.Context,
	namespace string,
) error {
	const errCtx = "creating namespace"

	_, err := a.Client.CoreV1().
		Namespaces().
		Create(
			ctx,
			&corev1.Namespace{
				ObjectMeta: metav1.ObjectMeta{Name: namespace},
			},
			metav1.CreateOptions{},
		)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, namespace, err)
	}

	return nil
}

// DeploymentExists implements Cluster.
func (a *API) DeploymentExists(
	ctx context.Context,
	namespace string,
	name string,
) bool {
	_, err := a.Client.AppsV1().
		Deployments(namespace).
		Get(ctx, name, metav1.GetOptions{})

	return err == nil
}

// RunningPods implements Cluster.
func (a *API) RunningPods(
	ctx context.Context,
	namespace string,
	selector string,
) ([]string, error) {
	const errCtx = "listing pods"

	list, err := a.Client.CoreV1().
		Pods(namespace).
		List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return runningPodNames(list.Items), nil
}

// ServiceExists implements Cluster.
func (a *API) ServiceExists(
	ctx context.Context,
	namespace string,
	name string,
) bool {
	_, err := a.Client.CoreV1().
		Services(namespace).
		Get(ctx, name, metav1.GetOptions{})

	return err == nil
}

// NodeInternalIP implements Cluster.
func (a *API) NodeInternalIP(
	ctx context.Context,
	node string,
) (string, error) {
	const errCtx = "node internal ip"

	n, err := a.Client.CoreV1().
		Nodes().
		Get(ctx, node, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", errCtx, node, notFound(err))
	}

	for _, addr := range n.Status.Addresses {
		if addr.Type == corev1.NodeInternalIP && addr.Address != "" {
			return addr.Address, nil
		}
	}

	return "", fmt.Errorf("%s: %s: %w", errCtx, node, ErrNotFound)
}

// NodeNames implements Cluster.
func (a *API) NodeNames(ctx context.Context) ([]string, error) {
	const errCtx = "listing nodes"

	list, err := a.Client.CoreV1().
		Nodes().
		List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	names := make([]string, 0, len(list.Items))
	for _, n := range list.Items {
		names = append(names, n.Name)
	}

	return names, nil
}

// ServiceNodePort implements Cluster.
func (a *API) ServiceNodePort(
	ctx context.Context,
	namespace string,
	service string,
) (int, error) {
	const errCtx = "service node port"

	svc, err := a.Client.CoreV1().
		Services(namespace).
		Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", errCtx, notFound(err))
	}

	port, err := firstNodePort(svc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	return port, nil
}

// LoadBalancerIP implements Cluster.
func (a *API) LoadBalancerIP(
	ctx context.Context,
	namespace string,
	service string,
) (string, error) {
	const errCtx = "loadbalancer ip"

	svc, err := a.Client.CoreV1().
		Services(namespace).
		Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, notFound(err))
	}

	ingress := svc.Status.LoadBalancer.Ingress
	if len(ingress) == 0 || ingress[0].IP == "" {
		return "", fmt.Errorf(
			"%s: %s/%s: %w", errCtx, namespace, service, ErrNotFound,
		)
	}

	return ingress[0].IP, nil
}

// ConfigMapValue implements Cluster.
func (a *API) ConfigMapValue(
	ctx context.Context,
	namespace string,
	name string,
	key string,
) (string, error) {
	const errCtx = "configmap value"

	cm, err := a.Client.CoreV1().
		ConfigMaps(namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, notFound(err))
	}

	v, ok := cm.Data[key]
	if !ok {
		return "", fmt.Errorf(
			"%s: %s/%s[%s]: %w", errCtx, namespace, name, key, ErrNotFound,
		)
	}

	return v, nil
}

// ReadyPods returns the names of the ready pods in a
// pod informer store list.
func ReadyPods(list []any) []string {
	var ready []string

	for _, it := range list {
		pod, ok := it.(*corev1.Pod)
		if !ok {
			continue
		}

		if podReady(pod) {
			ready = append(ready, pod.Name)
		}
	}

	return ready
}

// WaitForPods implements Cluster with a shared pod
// informer restricted to selector.
func (a *API) WaitForPods(
	ctx context.Context,
	namespace string,
	selector string,
	timeout time.Duration,
) error {
	const errCtx = "waiting for pods"

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Coalesced: the store is re-read on every wakeup.
	events := make(chan struct{}, 1)
	fn := func(any) {
		select {
		case events <- struct{}{}:
		default:
		}
	}

	handler := cache.ResourceEventHandlerFuncs{
		AddFunc:    fn,
		DeleteFunc: fn,
		UpdateFunc: func(_, newObj any) {
			fn(newObj)
		},
	}

	factory := informers.NewSharedInformerFactoryWithOptions(
		a.Client,
		informerResync,
		informers.WithNamespace(namespace),
		informers.WithTweakListOptions(func(o *metav1.ListOptions) {
			o.LabelSelector = selector
		}),
	)
	podsInformer := factory.Core().V1().Pods().Informer()

	if _, err := podsInformer.AddEventHandler(handler); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	stop := make(chan struct{})
	defer func() {
		close(stop)
		factory.Shutdown()
	}()

	factory.Start(stop)

	for {
		select {
		case <-events:
			ready := ReadyPods(podsInformer.GetStore().List())
			if len(ready) > 0 {
				slog.Info(
					"pods ready",
					"namespace", namespace,
					"selector", selector,
					"pods", ready,
				)

				return nil
			}

			slog.Info(
				"waiting for pods",
				"namespace", namespace,
				"selector", selector,
			)
		case <-ctx.Done():
			return fmt.Errorf(
				"%s: %s in %s: %w",
				errCtx, selector, namespace, ctx.Err(),
			)
		}
	}
}

// Logs implements LogSource by streaming the logs of
// every container of the matching pods. With Follow the
// streams run concurrently until ctx is done.
func (a *API) Logs(
	ctx context.Context,
	w io.Writer,
	opts LogOptions,
) error {
	const errCtx = "reading logs"

	pods := a.Client.CoreV1().Pods(opts.Namespace)

	list, err := pods.List(
		ctx, metav1.ListOptions{LabelSelector: opts.Selector},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	out := &lockedWriter{w: w}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i := range list.Items {
		pod := &list.Items[i]

		for _, c := range pod.Spec.Containers {
			tail := &containerTail{
				pod:       pod.Name,
				container: c.Name,
			}

			logOpts := &corev1.PodLogOptions{
				Container: c.Name,
				Follow:    opts.Follow,
			}
			if opts.Tail > 0 {
				logOpts.TailLines = &opts.Tail
			}

			req := pods.GetLogs(pod.Name, logOpts)

			stream := func() {
				if err := tail.copy(ctx, req, out); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}

			if !opts.Follow {
				stream()

				continue
			}

			wg.Add(1)

			go func() {
				defer wg.Done()

				stream()
			}()
		}
	}

	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// containerTail copies one container log stream,
// prefixing each line.
type containerTail struct {
	pod       string
	container string
}

func (t *containerTail) copy(
	ctx context.Context,
	req *rest.Request,
	w io.Writer,
) error {
	stream, err := req.Stream(ctx)
	if err != nil {
		return fmt.Errorf(
			"opening stream %s/%s: %w", t.pod, t.container, err,
		)
	}

	//nolint:errcheck // best-effort close
	defer stream.Close()

	reader := bufio.NewReader(stream)

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if line[len(line)-1] != '\n' {
				line += "\n"
			}

			fmt.Fprintf(w, "[%s/%s]: %s", t.pod, t.container, line)
		}

		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf(
				"reading stream %s/%s: %w", t.pod, t.container, err,
			)
		}
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}

// notFound maps an API NotFound to ErrNotFound.
func notFound(err error) error {
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
