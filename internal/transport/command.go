package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"

	"toolhub/internal/domain"
)

// resolveCommand turns a spec's command list into a spawnable executable
// path: PATH lookup for bare names, existence check for the working
// directory. Failures map onto the sentinel errors so callers can tell a
// missing binary from a permission problem before anything is spawned.
func resolveCommand(spec domain.ProviderSpec) (string, error) {
	if len(spec.Cmd) == 0 {
		return "", fmt.Errorf("%w: cmd is required for stdio provider", domain.ErrInvalidCommand)
	}
	name := strings.TrimSpace(spec.Cmd[0])
	if name == "" {
		return "", fmt.Errorf("%w: executable name is empty", domain.ErrInvalidCommand)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", classifyStartError(err)
	}

	if spec.Cwd != "" {
		info, err := os.Stat(spec.Cwd)
		if err != nil {
			return "", fmt.Errorf("%w: cwd %q: %v", domain.ErrInvalidCommand, spec.Cwd, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%w: cwd %q is not a directory", domain.ErrInvalidCommand, spec.Cwd)
		}
	}
	return path, nil
}

func classifyStartError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrExecutableNotFound, err.Error())
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, err.Error())
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, exec.ErrNotFound) || errors.Is(pathErr.Err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrExecutableNotFound, err.Error())
		}
		if errors.Is(pathErr.Err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, err.Error())
		}
	}
	return err
}

// mirrorStderr forwards a subprocess's stderr into the provider logger one
// line at a time. Lines beyond the cap are truncated so a misbehaving
// provider cannot balloon host memory.
func mirrorStderr(reader io.Reader, logger *zap.Logger) {
	buf := bufio.NewReaderSize(reader, 8192)
	for {
		line, isPrefix, err := buf.ReadLine()
		if len(line) > 0 {
			trimmed := strings.TrimRight(string(line), "\r\n")
			if trimmed != "" {
				if len(trimmed) > domain.DefaultStderrLineLimit {
					logger.Warn("stderr line truncated",
						zap.Int("originalLength", len(trimmed)),
						zap.Int("maxLength", domain.DefaultStderrLineLimit),
					)
					trimmed = trimmed[:domain.DefaultStderrLineLimit] + "... [truncated]"
				}
				logger.Info(trimmed)
			}
			if isPrefix {
				for isPrefix && err == nil {
					_, isPrefix, err = buf.ReadLine()
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := sortedKeys(env)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

func sortedKeys(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
