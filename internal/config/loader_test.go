package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolhub/internal/domain"
)

func TestLoaderSuccess(t *testing.T) {
	file := writeTempConfig(t, `
workspace:
  trusted: true
discovery:
  timeout_seconds: 45
providers:
  - name: files
    kind: stdio
    cmd: ["mcp-files", "--root", "/srv/data"]
    include_tools: [read_file, write_file]
  - name: search
    kind: http
    endpoint: https://search.internal/mcp
    headers:
      Authorization: "Bearer abc123"
cache:
  path: /var/lib/toolhub/catalog.db
observability:
  listen: 127.0.0.1:9464
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)

	require.True(t, cfg.Workspace.Trusted)
	require.Equal(t, 45, cfg.Discovery.TimeoutSeconds)
	require.Equal(t, "/var/lib/toolhub/catalog.db", cfg.Cache.Path)
	require.Equal(t, "127.0.0.1:9464", cfg.Observability.Listen)
	require.Len(t, cfg.Providers, 2)

	expect := domain.ProviderSpec{
		Name:         "files",
		Transport:    domain.TransportStdio,
		Cmd:          []string{"mcp-files", "--root", "/srv/data"},
		IncludeTools: []string{"read_file", "write_file"},
	}
	if diff := cmp.Diff(expect, cfg.Providers["files"]); diff != "" {
		t.Fatalf("spec mismatch (-want +got):\n%s", diff)
	}

	search := cfg.Providers["search"]
	require.Equal(t, domain.TransportStreamableHTTP, search.Transport)
	require.Equal(t, "https://search.internal/mcp", search.Endpoint)
	require.Equal(t, "Bearer abc123", search.Headers["Authorization"])
}

func TestLoaderDefaults(t *testing.T) {
	file := writeTempConfig(t, `
providers: []
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.True(t, cfg.Workspace.Trusted, "trust defaults on for explicit opt-out semantics")
	require.Equal(t, 30, cfg.Discovery.TimeoutSeconds)
	require.Empty(t, cfg.Providers)
	require.Empty(t, cfg.Cache.Path)
	require.Empty(t, cfg.Observability.Listen)
}

func TestLoaderUntrustedWorkspace(t *testing.T) {
	file := writeTempConfig(t, `
workspace:
  trusted: false
providers:
  - name: files
    kind: stdio
    cmd: ["mcp-files"]
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.False(t, cfg.Workspace.Trusted)
}

func TestLoaderEnvExpansion(t *testing.T) {
	t.Setenv("FILES_ROOT", "/home/dev/src")
	file := writeTempConfig(t, `
providers:
  - name: files
    kind: stdio
    cmd: ["mcp-files", "--root", "${FILES_ROOT}"]
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, []string{"mcp-files", "--root", "/home/dev/src"}, cfg.Providers["files"].Cmd)
}

func TestLoaderEnvExpansionNumeric(t *testing.T) {
	t.Setenv("DISCOVERY_TIMEOUT", "15")
	file := writeTempConfig(t, `
discovery:
  timeout_seconds: ${DISCOVERY_TIMEOUT}
providers: []
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, 15, cfg.Discovery.TimeoutSeconds)
}

func TestLoaderMissingEnvVars(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: search
    kind: http
    endpoint: https://search.internal/mcp
    headers:
      Authorization: "Bearer ${TOOLHUB_TEST_NO_SUCH_TOKEN}"
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "undefined environment variables")
	require.Contains(t, err.Error(), "TOOLHUB_TEST_NO_SUCH_TOKEN")
}

// Viper folds map keys to lower case during unmarshal; environment variable
// names must come through with their original casing anyway.
func TestLoaderEnvBlockKeepsKeyCase(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: files
    kind: stdio
    cmd: ["mcp-files"]
    env:
      LOG_LEVEL: info
      RustBacktrace: full
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)

	env := cfg.Providers["files"].Env
	require.Equal(t, "info", env["LOG_LEVEL"])
	require.Equal(t, "full", env["RustBacktrace"])
}

func TestLoaderHeadersCanonicalized(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: search
    kind: http
    endpoint: https://search.internal/mcp
    headers:
      authorization: "Bearer abc"
      x-api-key: "k1"
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)

	headers := cfg.Providers["search"].Headers
	require.Equal(t, "Bearer abc", headers["Authorization"])
	require.Equal(t, "k1", headers["X-Api-Key"])
}

func TestLoaderDuplicateName(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: dup
    kind: stdio
    cmd: ["./a"]
  - name: dup
    kind: stdio
    cmd: ["./b"]
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), `duplicate name "dup"`)
}

func TestLoaderMissingRequiredFields(t *testing.T) {
	file := writeTempConfig(t, `
discovery:
  timeout_seconds: 0
providers:
  - name: ""
    kind: stdio
    cmd: []
    timeout_seconds: -1
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "discovery.timeout_seconds must be > 0")
	require.Contains(t, err.Error(), "providers[0]: name is required")
	require.Contains(t, err.Error(), "providers[0]: cmd is required")
	require.Contains(t, err.Error(), "providers[0]: timeout_seconds must be >= 0")
}

func TestLoaderHTTPValidation(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: no-endpoint
    kind: http
  - name: bad-endpoint
    kind: http
    endpoint: "not a url"
  - name: stdio-fields
    kind: http
    endpoint: https://ok.internal/mcp
    cmd: ["./a"]
    env: {A: b}
  - name: bad-headers
    kind: http
    endpoint: https://ok.internal/mcp
    headers:
      Mcp-Session-Id: "sess"
      X-Empty: ""
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "providers[0]: endpoint is required")
	require.Contains(t, err.Error(), "providers[1]: endpoint must be a valid http(s) URL")
	require.Contains(t, err.Error(), "providers[2]: cmd must be empty for http providers")
	require.Contains(t, err.Error(), "providers[2]: env must be empty for http providers")
	require.Contains(t, err.Error(), "providers[3]: headers.Mcp-Session-Id is reserved")
	require.Contains(t, err.Error(), "providers[3]: headers.X-Empty must not be empty")
}

func TestLoaderStdioRejectsHTTPFields(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: confused
    kind: stdio
    cmd: ["./a"]
    endpoint: https://where.am/i
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "providers[0]: endpoint must be empty for stdio providers")
}

func TestLoaderUnknownKind(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: ws
    kind: websocket
    cmd: ["./a"]
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "kind must be stdio or http")
}

func TestLoaderKindDefaultsToStdio(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: files
    cmd: ["mcp-files"]
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, domain.TransportStdio, cfg.Providers["files"].Transport)
}

func TestLoaderProtocolVersionPattern(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: files
    kind: stdio
    cmd: ["mcp-files"]
    protocol_version: "2024-1"
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "protocol_version must match YYYY-MM-DD")
}

func TestLoaderIncludeToolsBlank(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: files
    kind: stdio
    cmd: ["mcp-files"]
    include_tools: ["read_file", "  "]
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "include_tools[1] must not be empty")
}

func TestLoaderObservabilityListen(t *testing.T) {
	file := writeTempConfig(t, `
providers: []
observability:
  listen: "127.0.0.1"
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "observability.listen must be host:port")
}

func TestLoaderCachePathTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	file := writeTempConfig(t, `
providers: []
cache:
  path: ~/state/catalog.db
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "state", "catalog.db"), cfg.Cache.Path)
}

func TestLoaderDisabledProvider(t *testing.T) {
	file := writeTempConfig(t, `
providers:
  - name: files
    kind: stdio
    cmd: ["mcp-files"]
    disabled: true
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.True(t, cfg.Providers["files"].Disabled)
}

func TestLoaderPathRequired(t *testing.T) {
	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "config path is required")
}

func TestLoaderFileMissing(t *testing.T) {
	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestLoaderContextCanceled(t *testing.T) {
	file := writeTempConfig(t, `
providers: []
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(ctx, file)
	require.ErrorIs(t, err, context.Canceled)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "toolhub.yaml")
	normalized := strings.ReplaceAll(content, "\t", "  ")
	if err := os.WriteFile(path, []byte(normalized), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
