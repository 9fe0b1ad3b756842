package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"toolhub/internal/domain"
	"toolhub/internal/telemetry"
)

const pythonEchoServerScript = `import sys, json
for line in sys.stdin:
    msg = json.loads(line)
    if "id" in msg:
        resp = {"jsonrpc": "2.0", "id": msg["id"], "result": {"ok": True}}
        sys.stdout.write(json.dumps(resp) + "\n")
        sys.stdout.flush()
`

func TestStdioConnectAndRoundTrip(t *testing.T) {
	stdio := NewStdio(zap.NewNop())
	spec := domain.ProviderSpec{
		Name:      "echo",
		Transport: domain.TransportStdio,
		Cmd:       []string{"python3", "-u", "-c", pythonEchoServerScript},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, stop, err := stdio.Connect(ctx, spec)
	require.NoError(t, err)
	defer func() {
		conn.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer stopCancel()
		require.NoError(t, stop(stopCtx))
	}()

	result, err := conn.Call(ctx, "ping", map[string]any{})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(result))
}

func TestStdioMissingExecutable(t *testing.T) {
	stdio := NewStdio(zap.NewNop())
	spec := domain.ProviderSpec{
		Name: "missing",
		Cmd:  []string{"/no/such/binary"},
	}

	_, _, err := stdio.Connect(context.Background(), spec)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrExecutableNotFound)
}

func TestStdioEmptyCommand(t *testing.T) {
	stdio := NewStdio(zap.NewNop())

	_, _, err := stdio.Connect(context.Background(), domain.ProviderSpec{Name: "bad"})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrInvalidCommand)
}

func TestStdioBadCwd(t *testing.T) {
	stdio := NewStdio(zap.NewNop())
	spec := domain.ProviderSpec{
		Name: "badcwd",
		Cmd:  []string{"/bin/sh", "-c", "cat"},
		Cwd:  "/no/such/dir",
	}

	_, _, err := stdio.Connect(context.Background(), spec)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrInvalidCommand)
}

func TestStdioStopKillsProcess(t *testing.T) {
	stdio := NewStdio(zap.NewNop())
	spec := domain.ProviderSpec{
		Name: "sleep",
		Cmd:  []string{"/bin/sh", "-c", "sleep 10"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, stop, err := stdio.Connect(ctx, spec)
	require.NoError(t, err)
	conn.Close()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	require.NoError(t, stop(stopCtx))
}

func TestStdioMirrorsStderr(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	stdio := NewStdio(zap.New(core))
	spec := domain.ProviderSpec{
		Name: "noisy",
		Cmd:  []string{"/bin/sh", "-c", `echo "stderr line" 1>&2; cat`},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, stop, err := stdio.Connect(ctx, spec)
	require.NoError(t, err)
	defer func() {
		conn.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer stopCancel()
		_ = stop(stopCtx)
	}()

	deadline := time.After(3 * time.Second)
	for {
		found := false
		for _, entry := range logs.All() {
			if entry.Message == "stderr line" {
				fields := entry.ContextMap()
				require.Equal(t, "noisy", fields[telemetry.FieldProvider])
				require.Equal(t, "stderr", fields[telemetry.FieldLogStream])
				found = true
			}
		}
		if found {
			return
		}
		select {
		case <-deadline:
			t.Fatal("stderr line never mirrored")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestFormatEnvSorted(t *testing.T) {
	env := map[string]string{"B": "2", "A": "1", "C": "3"}
	require.Equal(t, []string{"A=1", "B=2", "C=3"}, formatEnv(env))
	require.Nil(t, formatEnv(nil))
}

func TestResolveCommandChecksCwd(t *testing.T) {
	_, err := resolveCommand(domain.ProviderSpec{Cmd: []string{"sh"}, Cwd: t.TempDir()})
	require.NoError(t, err)

	_, err = resolveCommand(domain.ProviderSpec{Cmd: []string{" "}})
	require.ErrorIs(t, err, domain.ErrInvalidCommand)
}
