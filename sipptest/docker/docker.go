package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
)

// Timeouts of docker invocations.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultBuildTimeout = 300 * time.Second
)

// RunOptions describes a throwaway container.
type RunOptions struct {
	Image string

	// HostNetwork adds --network=host.
	HostNetwork bool

	// Env is passed as -e KEY=VALUE, sorted by key.
	Env map[string]string
}

// Args returns the docker run arguments up to and
// including the image. Append the container command to
// them.
func (o RunOptions) Args() []string {
	arg := []string{"run", "--rm"}

	if o.HostNetwork {
		arg = append(arg, "--network=host")
	}

	keys := make([]string, 0, len(o.Env))
	for k := range o.Env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		arg = append(arg, "-e", k+"="+o.Env[k])
	}

	return append(arg, o.Image)
}

// Command returns the full argv, binary included, of
// docker run for opts and cmd.
func Command(opts RunOptions, cmd ...string) []string {
	return append(append([]string{"docker"}, opts.Args()...), cmd...)
}

// Client runs docker.
type Client struct {
	Runner exec.Runner

	// Timeout bounds short calls. Zero means 30s.
	Timeout time.Duration

	// BuildTimeout bounds image builds. Zero means 300s.
	BuildTimeout time.Duration
}

// New returns a Client running the real binary.
func New() *Client {
	return &Client{Runner: exec.System{}}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}

	return c.Timeout
}

// Available reports whether the docker CLI runs.
func (c *Client) Available(ctx context.Context) bool {
	return c.Runner.Run(ctx, c.timeout(), "docker", "--version").OK()
}

// ImageExists reports whether image is present locally.
func (c *Client) ImageExists(ctx context.Context, image string) bool {
	out := c.Runner.Run(ctx, c.timeout(), "docker", "images", "-q", image)

	return out.OK() && out.Trimmed() != ""
}

// Build builds dir into image.
func (c *Client) Build(
	ctx context.Context,
	image string,
	dir string,
) error {
	const errCtx = "building image"

	timeout := c.BuildTimeout
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}

	arg := []string{"build", "-t", image, dir}

	out := c.Runner.Run(ctx, timeout, "docker", arg...)
	if err := out.AsError("docker", arg...); err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, image, err)
	}

	return nil
}

// Run starts a throwaway container running cmd and
// waits for it.
func (c *Client) Run(
	ctx context.Context,
	timeout time.Duration,
	opts RunOptions,
	cmd ...string,
) exec.Output {
	if timeout <= 0 {
		timeout = c.timeout()
	}

	argv := Command(opts, cmd...)

	return c.Runner.Run(ctx, timeout, argv[0], argv[1:]...)
}

// Smoke reports whether a container of image starts and
// runs a trivial command.
func (c *Client) Smoke(ctx context.Context, image string) bool {
	out := c.Run(
		ctx, 0, RunOptions{Image: image}, "echo", "container-ok",
	)

	return out.OK() && strings.Contains(out.Stdout, "container-ok")
}

// FileExists reports whether path is a regular file in
// image.
func (c *Client) FileExists(
	ctx context.Context,
	image string,
	path string,
) bool {
	return c.Run(ctx, 0, RunOptions{Image: image}, "test", "-f", path).OK()
}

// HasBinary reports whether bin is on the PATH of image.
func (c *Client) HasBinary(
	ctx context.Context,
	image string,
	bin string,
) bool {
	return c.Run(ctx, 0, RunOptions{Image: image}, "which", bin).OK()
}
