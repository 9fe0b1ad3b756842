package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolhub/internal/domain"
	"toolhub/internal/telemetry"
)

// Stdio launches a provider subprocess and speaks JSON-RPC over its pipes.
// The subprocess is an owned resource: its lifetime is bound to the StopFn,
// not to the connect context, so a connect timeout firing later cannot kill
// a provider that made it to ready.
type Stdio struct {
	logger *zap.Logger
}

func NewStdio(logger *zap.Logger) *Stdio {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stdio{logger: logger}
}

func (t *Stdio) Connect(ctx context.Context, spec domain.ProviderSpec) (Conn, StopFn, error) {
	executable, err := resolveCommand(spec)
	if err != nil {
		return nil, nil, err
	}

	procCtx, procCancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, executable, spec.Cmd[1:]...)
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	cmd.Env = append(os.Environ(), formatEnv(spec.Env)...)
	groupCleanup := setupProcessHandling(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		procCancel()
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		procCancel()
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		procCancel()
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		procCancel()
		return nil, nil, fmt.Errorf("start command: %w", classifyStartError(err))
	}

	stderrLogger := t.logger.With(
		telemetry.ProviderField(spec.Name),
		zap.String(telemetry.FieldLogStream, "stderr"),
	)
	go mirrorStderr(stderr, stderrLogger)

	stop := func(stopCtx context.Context) error {
		if err := stdin.Close(); err != nil {
			t.logger.Warn("close stdin failed", telemetry.ProviderField(spec.Name), zap.Error(err))
		}
		if err := stdout.Close(); err != nil {
			t.logger.Warn("close stdout failed", telemetry.ProviderField(spec.Name), zap.Error(err))
		}
		if err := stderr.Close(); err != nil {
			t.logger.Warn("close stderr failed", telemetry.ProviderField(spec.Name), zap.Error(err))
		}
		procCancel()
		if groupCleanup != nil {
			groupCleanup()
		}
		return waitForProcess(stopCtx, cmd)
	}

	ioTransport := &mcp.IOTransport{Reader: stdout, Writer: stdin}
	mcpConn, err := ioTransport.Connect(ctx)
	if err != nil {
		_ = stop(context.Background())
		return nil, nil, fmt.Errorf("connect stdio: %w", err)
	}

	conn := newClientConn(mcpConn, spec.Name, t.logger.Named("stdio_conn"))
	return conn, stop, nil
}

var _ Transport = (*Stdio)(nil)
