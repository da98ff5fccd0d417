package probe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/sipp_tester/sipptest/exec"
	"github.com/byte4ever/sipp_tester/sipptest/exec/exectest"
	"github.com/byte4ever/sipp_tester/sipptest/probe"
)

func TestNetcat_Command_udp(t *testing.T) {
	t.Parallel()

	n := probe.NewNetcat(exectest.NewRunner())

	assert.Equal(
		t,
		[]string{"nc", "-zu", "-w", "5", "172.18.0.3", "30600"},
		n.Command("172.18.0.3", 30600, probe.UDP),
	)
}

func TestNetcat_Command_tcp_in_container(t *testing.T) {
	t.Parallel()

	n := &probe.Netcat{
		Runner:  exectest.NewRunner(),
		Timeout: 1500 * time.Millisecond,
		Prefix: []string{
			"docker", "run", "--rm", "local/sipp-tester:latest",
		},
	}

	assert.Equal(
		t,
		[]string{
			"docker", "run", "--rm", "local/sipp-tester:latest",
			"nc", "-z", "-w", "2", "localhost", "5060",
		},
		n.Command("localhost", 5060, probe.TCP),
	)
}

func TestNetcat_Reachable_exit_zero(t *testing.T) {
	t.Parallel()

	r := exectest.NewRunner().OnExit("nc -zu", 0)

	ok := probe.NewNetcat(r).Reachable(
		context.Background(), "10.0.0.1", 30600, probe.UDP,
	)

	assert.True(t, ok)
	require.Len(t, r.Calls(), 1)
	assert.Equal(t, probe.DefaultTimeout, r.Calls()[0].Timeout)
}

func TestNetcat_Reachable_false_for_every_failure_kind(t *testing.T) {
	t.Parallel()

	cases := map[string]exec.Output{
		"non-zero exit": {ExitCode: 1},
		"tool missing": {
			ExitCode: -1, Err: exectest.ErrNotFound,
		},
		"timeout": {ExitCode: -1, Err: exec.ErrTimeout},
	}

	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := exectest.NewRunner().On("nc", out)

			assert.False(t, probe.NewNetcat(r).Reachable(
				context.Background(), "h", 1, probe.TCP,
			))
		})
	}
}

func TestNetcat_Reachable_real_tool_missing(t *testing.T) {
	t.Parallel()

	n := &probe.Netcat{
		Runner:  exec.System{},
		Timeout: time.Second,
		Prefix:  []string{"definitely-not-a-real-binary-xyz"},
	}

	assert.False(t, n.Reachable(
		context.Background(), "localhost", 1, probe.UDP,
	))
}

func TestNetcat_container_gets_grace(t *testing.T) {
	t.Parallel()

	r := exectest.NewRunner().OnExit("docker", 0)
	n := &probe.Netcat{
		Runner:  r,
		Timeout: time.Second,
		Prefix:  []string{"docker", "run", "--rm", "img"},
	}

	n.Reachable(context.Background(), "h", 1, probe.TCP)

	require.Len(t, r.Calls(), 1)
	assert.Greater(t, r.Calls()[0].Timeout, time.Second)
}

func TestParseProtocol(t *testing.T) {
	t.Parallel()

	p, err := probe.ParseProtocol("UDP")
	require.NoError(t, err)
	assert.Equal(t, probe.UDP, p)

	_, err = probe.ParseProtocol("sctp")
	assert.Error(t, err)
}

func TestFunc_adapts(t *testing.T) {
	t.Parallel()

	var p probe.Prober = probe.Func(func(
		_ context.Context, host string, port int, _ probe.Protocol,
	) bool {
		return host == "ok" && port == 1
	})

	assert.True(t, p.Reachable(context.Background(), "ok", 1, probe.UDP))
	assert.False(t, p.Reachable(context.Background(), "no", 1, probe.UDP))
}
