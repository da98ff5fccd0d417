package kube_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"

	"github.com/byte4ever/sipp_tester/sipptest/kube"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

func TestOpen_kubectl(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", kube.BackendKubectl} {
		c, err := kube.Open(name, "/tmp/kind.yaml")
		require.NoError(t, err)

		k, ok := c.(*kube.Kubectl)
		require.True(t, ok, name)
		assert.Equal(t, "/tmp/kind.yaml", k.Kubeconfig)
	}
}

func TestOpen_unknown(t *testing.T) {
	t.Parallel()

	_, err := kube.Open("helm", "")
	assert.ErrorContains(t, err, `unknown backend "helm"`)
}

func TestForwarderFor(t *testing.T) {
	t.Parallel()

	spec := labForward()

	verify := probe.Func(func(
		context.Context, string, int, probe.Protocol,
	) bool {
		return true
	})

	f := kube.ForwarderFor(
		kube.NewKubectl("/tmp/kind.yaml"), spec, time.Second, verify,
	)
	kf, ok := f.(*kube.KubectlForwarder)
	require.True(t, ok)
	assert.Equal(t, "/tmp/kind.yaml", kf.Kubeconfig)
	assert.Equal(t, time.Second, kf.Settle)
	assert.Equal(t, spec, kf.Spec)
	assert.NotNil(t, kf.Verify)

	cfg := &rest.Config{Host: "https://127.0.0.1:6443"}
	f = kube.ForwarderFor(
		&kube.API{Client: fake.NewClientset(), Config: cfg}, spec, time.Second, nil,
	)
	af, ok := f.(*kube.APIForwarder)
	require.True(t, ok)
	assert.Same(t, cfg, af.Config)
	assert.Equal(t, spec, af.Spec)
}
