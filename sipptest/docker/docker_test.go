package docker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/sipp_tester/sipptest/docker"
	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/exec/exectest"
)

const image = "local/sipp-tester:latest"

func TestCommand(t *testing.T) {
	t.Parallel()

	got := docker.Command(docker.RunOptions{
		Image:       image,
		HostNetwork: true,
		Env: map[string]string{
			"KAMAILIO_PORT": "30600",
			"KAMAILIO_HOST": "172.18.0.3",
		},
	}, "bash", "-c", "sipp -v")

	assert.Equal(t, []string{
		"docker", "run", "--rm", "--network=host",
		"-e", "KAMAILIO_HOST=172.18.0.3",
		"-e", "KAMAILIO_PORT=30600",
		image, "bash", "-c", "sipp -v",
	}, got)

	assert.Equal(
		t,
		[]string{"run", "--rm", image},
		docker.RunOptions{Image: image}.Args(),
	)
}

func TestClient_Available(t *testing.T) {
	t.Parallel()

	ok := &docker.Client{Runner: exectest.NewRunner().OnStdout(
		"docker --version", "Docker version 27.3.1\n",
	)}
	assert.True(t, ok.Available(context.Background()))

	missing := &docker.Client{Runner: exectest.NewRunner()}
	assert.False(t, missing.Available(context.Background()))
}

func TestClient_ImageExists(t *testing.T) {
	t.Parallel()

	r := exectest.NewRunner().
		OnStdout("docker images -q "+image, "3f1c2a9b8d7e\n").
		OnStdout("docker images -q other", "")
	c := &docker.Client{Runner: r}

	assert.True(t, c.ImageExists(context.Background(), image))
	assert.False(t, c.ImageExists(context.Background(), "other"))
}

func TestClient_Build(t *testing.T) {
	t.Parallel()

	r := exectest.NewRunner().
		OnExit("docker build -t "+image+" .", 0).
		On("docker build -t broken", exec.Output{
			ExitCode: 1,
			Stderr:   "failed to solve: Dockerfile not found",
		})
	c := &docker.Client{Runner: r}

	require.NoError(t, c.Build(context.Background(), image, "."))
	assert.Equal(t, docker.DefaultBuildTimeout, r.Calls()[0].Timeout)

	err := c.Build(context.Background(), "broken", ".")
	assert.ErrorContains(t, err, "Dockerfile not found")
}

func TestClient_Run_uses_timeout(t *testing.T) {
	t.Parallel()

	r := exectest.NewRunner().OnStdout("docker run", "hi\n")
	c := &docker.Client{Runner: r}

	out := c.Run(
		context.Background(), 7*time.Second,
		docker.RunOptions{Image: image}, "echo", "hi",
	)

	assert.Equal(t, "hi", out.Trimmed())
	assert.Equal(t, 7*time.Second, r.Calls()[0].Timeout)

	c.Run(context.Background(), 0, docker.RunOptions{Image: image}, "true")
	assert.Equal(t, docker.DefaultTimeout, r.Calls()[1].Timeout)
}

func TestClient_container_checks(t *testing.T) {
	t.Parallel()

	r := exectest.NewRunner().
		OnStdout("docker run --rm "+image+" echo container-ok", "container-ok\n").
		OnExit("docker run --rm "+image+" which sipp", 0).
		OnExit("docker run --rm "+image+" which nc", 1).
		OnExit("docker run --rm "+image+" test -f /app/sipp-scenarios/options.xml", 0)
	c := &docker.Client{Runner: r}
	ctx := context.Background()

	assert.True(t, c.Smoke(ctx, image))
	assert.True(t, c.HasBinary(ctx, image, "sipp"))
	assert.False(t, c.HasBinary(ctx, image, "nc"))
	assert.True(t, c.FileExists(ctx, image, "/app/sipp-scenarios/options.xml"))
	assert.False(t, c.FileExists(ctx, image, "/app/sipp-scenarios/bye.xml"))
}
