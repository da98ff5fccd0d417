package kube

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	corev1 "k8s.io/api/core/v1"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
)

// Timeouts of kubectl invocations.
const (
	queryTimeout = 10 * time.Second
	waitGrace    = 10 * time.Second
)

// Kubectl implements Cluster and LogSource by running
// kubectl.
type Kubectl struct {
	Runner exec.Runner

	// Kubeconfig, when set, is passed as --kubeconfig.
	Kubeconfig string

	// Timeout bounds every query. Zero means 10s.
	Timeout time.Duration
}

// NewKubectl returns a Kubectl backend running the real
// binary.
func NewKubectl(kubeconfig string) *Kubectl {
	return &Kubectl{
		Runner:     exec.System{},
		Kubeconfig: kubeconfig,
	}
}

func (k *Kubectl) run(
	ctx context.Context,
	timeout time.Duration,
	arg ...string,
) exec.Output {
	if timeout <= 0 {
		timeout = k.Timeout
	}

	if timeout <= 0 {
		timeout = queryTimeout
	}

	return k.Runner.Run(ctx, timeout, "kubectl", k.args(arg...)...)
}

func (k *Kubectl) args(arg ...string) []string {
	if k.Kubeconfig == "" {
		return arg
	}

	return append([]string{"--kubeconfig", k.Kubeconfig}, arg...)
}

func (k *Kubectl) ok(ctx context.Context, arg ...string) bool {
	return k.run(ctx, 0, arg...).OK()
}

// getJSON runs kubectl get ... -o json and decodes the
// result into dst.
func (k *Kubectl) getJSON(
	ctx context.Context,
	dst any,
	arg ...string,
) error {
	arg = append(append([]string{"get"}, arg...), "-o", "json")

	out := k.run(ctx, 0, arg...)
	if err := out.AsError("kubectl", arg...); err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(out.Stdout), dst); err != nil {
		return fmt.Errorf("decoding kubectl output: %w", err)
	}

	return nil
}

// jsonpath runs kubectl get ... -o jsonpath=expr and
// returns the trimmed scalar. An empty result is
// ErrNotFound.
func (k *Kubectl) jsonpath(
	ctx context.Context,
	expr string,
	arg ...string,
) (string, error) {
	arg = append(append([]string{"get"}, arg...), "-o", "jsonpath="+expr)

	out := k.run(ctx, 0, arg...)
	if err := out.AsError("kubectl", arg...); err != nil {
		return "", err
	}

	v := out.Trimmed()
	if v == "" {
		return "", ErrNotFound
	}

	return v, nil
}

// ClientAvailable implements Cluster.
func (k *Kubectl) ClientAvailable(ctx context.Context) bool {
	return k.ok(ctx, "version", "--client")
}

// Available implements Cluster.
func (k *Kubectl) Available(ctx context.Context) bool {
	return k.ok(ctx, "cluster-info")
}

// NamespaceExists implements Cluster.
func (k *Kubectl) NamespaceExists(
	ctx context.Context,
	namespace string,
) bool {
	return k.ok(ctx, "get", "namespace", namespace)
}

// CreateNamespace implements Cluster.
func (k *Kubectl) CreateNamespace(
	ctx context.Context,
	namespace string,
) error {
	const errCtx = "creating namespace"

	arg := []string{"create", "namespace", namespace}

	if err := k.run(ctx, 0, arg...).AsError("kubectl", arg...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// DeploymentExists implements Cluster.
func (k *Kubectl) DeploymentExists(
	ctx context.Context,
	namespace string,
	name string,
) bool {
	return k.ok(ctx, "get", "deployment", name, "-n", namespace)
}

// RunningPods implements Cluster.
func (k *Kubectl) RunningPods(
	ctx context.Context,
	namespace string,
	selector string,
) ([]string, error) {
	const errCtx = "listing pods"

	var list corev1.PodList
	if err := k.getJSON(
		ctx, &list, "pods", "-n", namespace, "-l", selector,
	); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return runningPodNames(list.Items), nil
}

// ServiceExists implements Cluster.
func (k *Kubectl) ServiceExists(
	ctx context.Context,
	namespace string,
	name string,
) bool {
	return k.ok(ctx, "get", "service", name, "-n", namespace)
}

// NodeInternalIP implements Cluster.
func (k *Kubectl) NodeInternalIP(
	ctx context.Context,
	node string,
) (string, error) {
	const errCtx = "node internal ip"

	ip, err := k.jsonpath(
		ctx,
		"{.status.addresses[?(@.type=='InternalIP')].address}",
		"nodes", node,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", errCtx, node, err)
	}

	return ip, nil
}

// NodeNames implements Cluster.
func (k *Kubectl) NodeNames(ctx context.Context) ([]string, error) {
	const errCtx = "listing nodes"

	var list corev1.NodeList
	if err := k.getJSON(ctx, &list, "nodes"); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	names := make([]string, 0, len(list.Items))
	for _, n := range list.Items {
		names = append(names, n.Name)
	}

	return names, nil
}

// ServiceNodePort implements Cluster.
func (k *Kubectl) ServiceNodePort(
	ctx context.Context,
	namespace string,
	service string,
) (int, error) {
	const errCtx = "service node port"

	var svc corev1.Service
	if err := k.getJSON(
		ctx, &svc, "service", service, "-n", namespace,
	); err != nil {
		return 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	port, err := firstNodePort(&svc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	return port, nil
}

// LoadBalancerIP implements Cluster.
func (k *Kubectl) LoadBalancerIP(
	ctx context.Context,
	namespace string,
	service string,
) (string, error) {
	const errCtx = "loadbalancer ip"

	ip, err := k.jsonpath(
		ctx,
		"{.status.loadBalancer.ingress[0].ip}",
		"service", service, "-n", namespace,
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: %s/%s: %w", errCtx, namespace, service, err,
		)
	}

	return ip, nil
}

// ConfigMapValue implements Cluster.
func (k *Kubectl) ConfigMapValue(
	ctx context.Context,
	namespace string,
	name string,
	key string,
) (string, error) {
	const errCtx = "configmap value"

	var cm corev1.ConfigMap
	if err := k.getJSON(
		ctx, &cm, "configmap", name, "-n", namespace,
	); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	v, ok := cm.Data[key]
	if !ok {
		return "", fmt.Errorf(
			"%s: %s/%s[%s]: %w", errCtx, namespace, name, key, ErrNotFound,
		)
	}

	return v, nil
}

// WaitForPods implements Cluster with kubectl wait.
func (k *Kubectl) WaitForPods(
	ctx context.Context,
	namespace string,
	selector string,
	timeout time.Duration,
) error {
	const errCtx = "waiting for pods"

	arg := []string{
		"wait", "--for=condition=ready", "pod",
		"-l", selector,
		"-n", namespace,
		"--timeout=" + strconv.Itoa(int(timeout.Seconds())) + "s",
	}

	out := k.run(ctx, timeout+waitGrace, arg...)
	if err := out.AsError("kubectl", arg...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Logs implements LogSource. kubectl logs does not
// follow here; Follow is ignored.
func (k *Kubectl) Logs(
	ctx context.Context,
	w io.Writer,
	opts LogOptions,
) error {
	const errCtx = "reading logs"

	arg := []string{
		"logs",
		"-n", opts.Namespace,
		"-l", opts.Selector,
		"--all-containers",
		"--prefix",
	}

	if opts.Tail > 0 {
		arg = append(arg, "--tail="+strconv.FormatInt(opts.Tail, 10))
	}

	out := k.run(ctx, 0, arg...)
	if err := out.AsError("kubectl", arg...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := io.WriteString(w, out.Stdout); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func runningPodNames(pods []corev1.Pod) []string {
	var names []string

	for i := range pods {
		if pods[i].Status.Phase == corev1.PodRunning {
			names = append(names, pods[i].Name)
		}
	}

	return names
}

func firstNodePort(svc *corev1.Service) (int, error) {
	for _, p := range svc.Spec.Ports {
		if p.NodePort != 0 {
			return int(p.NodePort), nil
		}
	}

	return 0, fmt.Errorf(
		"%s/%s has no node port: %w",
		svc.Namespace, svc.Name, ErrNotFound,
	)
}

func podReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady &&
			cond.Status == corev1.ConditionTrue {
			return true
		}
	}

	return false
}
