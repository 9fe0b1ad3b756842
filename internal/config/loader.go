// Package config loads, validates, and watches the hub's YAML
// configuration.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"toolhub/internal/domain"
)

var protocolVersionPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Loader reads one configuration file into a validated Config.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("workspace.trusted", true)
	v.SetDefault("discovery.timeout_seconds", int(domain.DefaultDiscoveryTimeout/time.Second))
	return v
}

type rawConfig struct {
	Workspace     rawWorkspace     `mapstructure:"workspace"`
	Discovery     rawDiscovery     `mapstructure:"discovery"`
	Providers     []rawProvider    `mapstructure:"providers"`
	Cache         rawCache         `mapstructure:"cache"`
	Observability rawObservability `mapstructure:"observability"`
}

type rawWorkspace struct {
	Trusted bool `mapstructure:"trusted"`
}

type rawDiscovery struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type rawProvider struct {
	Name            string            `mapstructure:"name"`
	Kind            string            `mapstructure:"kind"`
	Cmd             []string          `mapstructure:"cmd"`
	Env             map[string]string `mapstructure:"env"`
	Cwd             string            `mapstructure:"cwd"`
	Endpoint        string            `mapstructure:"endpoint"`
	Headers         map[string]string `mapstructure:"headers"`
	MaxRetries      int               `mapstructure:"max_retries"`
	ProtocolVersion string            `mapstructure:"protocol_version"`
	TimeoutSeconds  int               `mapstructure:"timeout_seconds"`
	IncludeTools    []string          `mapstructure:"include_tools"`
	Disabled        bool              `mapstructure:"disabled"`
}

type rawCache struct {
	Path string `mapstructure:"path"`
}

type rawObservability struct {
	Listen string `mapstructure:"listen"`
}

// Load reads, expands, and validates the file at path. Validation problems
// are reported together in one joined error rather than first-wins.
func (l *Loader) Load(ctx context.Context, path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing, err := expandEnv(data)
	if err != nil {
		return Config{}, err
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config references undefined environment variables: %s", strings.Join(missing, ", "))
	}

	v := newConfigViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	// Viper folds every map key to lower case. Header names survive that
	// because HTTP headers are case-insensitive and get canonicalized below,
	// but environment variable names are not, so env blocks are re-read from
	// the yaml tree with their original casing.
	envs, err := providerEnvBlocks(expanded)
	if err != nil {
		return Config{}, err
	}
	for i := range raw.Providers {
		if i < len(envs) {
			raw.Providers[i].Env = envs[i]
		}
	}

	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	cfg, errs := normalizeConfig(raw)
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	l.logger.Debug("config loaded",
		zap.String("path", path),
		zap.Int("providers", len(cfg.Providers)),
		zap.Bool("trusted", cfg.Workspace.Trusted),
	)
	return cfg, nil
}

func providerEnvBlocks(expanded string) ([]map[string]string, error) {
	var doc struct {
		Providers []struct {
			Env map[string]string `yaml:"env"`
		} `yaml:"providers"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	envs := make([]map[string]string, len(doc.Providers))
	for i, p := range doc.Providers {
		envs[i] = p.Env
	}
	return envs, nil
}

func normalizeConfig(raw rawConfig) (Config, []error) {
	var errs []error

	if raw.Discovery.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("discovery.timeout_seconds must be > 0"))
	}

	specs := make(map[string]domain.ProviderSpec, len(raw.Providers))
	seen := make(map[string]struct{}, len(raw.Providers))
	for i, entry := range raw.Providers {
		spec := normalizeProvider(entry)
		if _, dup := seen[spec.Name]; dup {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, spec.Name))
			continue
		}
		if spec.Name != "" {
			seen[spec.Name] = struct{}{}
		}

		if specErrs := validateProvider(spec, i); len(specErrs) > 0 {
			errs = append(errs, specErrs...)
			continue
		}
		specs[spec.Name] = spec
	}

	if listen := strings.TrimSpace(raw.Observability.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			errs = append(errs, errors.New("observability.listen must be host:port"))
		}
	}

	cfg := Config{
		Workspace: Workspace{Trusted: raw.Workspace.Trusted},
		Discovery: Discovery{TimeoutSeconds: raw.Discovery.TimeoutSeconds},
		Providers: specs,
		Cache:     Cache{Path: expandHomePath(strings.TrimSpace(raw.Cache.Path))},
		Observability: Observability{
			Listen: strings.TrimSpace(raw.Observability.Listen),
		},
	}
	return cfg, errs
}

func normalizeProvider(raw rawProvider) domain.ProviderSpec {
	return domain.ProviderSpec{
		Name:            strings.TrimSpace(raw.Name),
		Transport:       domain.NormalizeTransport(domain.TransportKind(raw.Kind)),
		Cmd:             raw.Cmd,
		Env:             raw.Env,
		Cwd:             strings.TrimSpace(raw.Cwd),
		Endpoint:        strings.TrimSpace(raw.Endpoint),
		Headers:         canonicalHeaders(raw.Headers),
		MaxRetries:      raw.MaxRetries,
		ProtocolVersion: strings.TrimSpace(raw.ProtocolVersion),
		TimeoutSeconds:  raw.TimeoutSeconds,
		IncludeTools:    raw.IncludeTools,
		Disabled:        raw.Disabled,
	}
}

func canonicalHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		name := strings.TrimSpace(key)
		if name == "" {
			out[""] = strings.TrimSpace(value)
			continue
		}
		out[http.CanonicalHeaderKey(name)] = strings.TrimSpace(value)
	}
	return out
}

func validateProvider(spec domain.ProviderSpec, index int) []error {
	var errs []error

	if spec.Name == "" {
		errs = append(errs, fmt.Errorf("providers[%d]: name is required", index))
	}

	switch spec.Transport {
	case domain.TransportStdio:
		if len(spec.Cmd) == 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: cmd is required for stdio providers", index))
		}
		if spec.Endpoint != "" {
			errs = append(errs, fmt.Errorf("providers[%d]: endpoint must be empty for stdio providers", index))
		}
		if len(spec.Headers) > 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: headers must be empty for stdio providers", index))
		}
	case domain.TransportStreamableHTTP:
		if len(spec.Cmd) > 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: cmd must be empty for http providers", index))
		}
		if spec.Cwd != "" {
			errs = append(errs, fmt.Errorf("providers[%d]: cwd must be empty for http providers", index))
		}
		if len(spec.Env) > 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: env must be empty for http providers", index))
		}
		errs = append(errs, validateEndpoint(spec, index)...)
		errs = append(errs, validateHeaders(spec.Headers, index)...)
		if spec.MaxRetries < -1 {
			errs = append(errs, fmt.Errorf("providers[%d]: max_retries must be >= -1 (-1 disables retries)", index))
		}
	default:
		errs = append(errs, fmt.Errorf("providers[%d]: kind must be stdio or http", index))
	}

	if spec.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("providers[%d]: timeout_seconds must be >= 0", index))
	}
	if spec.ProtocolVersion != "" && !protocolVersionPattern.MatchString(spec.ProtocolVersion) {
		errs = append(errs, fmt.Errorf("providers[%d]: protocol_version must match YYYY-MM-DD", index))
	}
	for i, tool := range spec.IncludeTools {
		if strings.TrimSpace(tool) == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: include_tools[%d] must not be empty", index, i))
		}
	}
	return errs
}

func validateEndpoint(spec domain.ProviderSpec, index int) []error {
	endpoint := spec.Endpoint
	if endpoint == "" {
		return []error{fmt.Errorf("providers[%d]: endpoint is required for http providers", index)}
	}
	if strings.Contains(endpoint, " ") {
		return []error{fmt.Errorf("providers[%d]: endpoint must be a valid http(s) URL", index)}
	}
	parsed, err := url.ParseRequestURI(endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return []error{fmt.Errorf("providers[%d]: endpoint must be a valid http(s) URL", index)}
	}
	return nil
}

func validateHeaders(headers map[string]string, index int) []error {
	var errs []error
	for _, name := range sortedHeaderNames(headers) {
		if name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: headers contains an empty header name", index))
			continue
		}
		if isReservedHeader(name) {
			errs = append(errs, fmt.Errorf("providers[%d]: headers.%s is reserved and managed by the transport", index, name))
		}
		if headers[name] == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: headers.%s must not be empty", index, name))
		}
	}
	return errs
}

func sortedHeaderNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isReservedHeader(header string) bool {
	switch strings.ToLower(header) {
	case "content-type", "accept", "mcp-protocol-version", "mcp-session-id", "last-event-id",
		"host", "content-length", "transfer-encoding", "connection":
		return true
	default:
		return false
	}
}

func expandHomePath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
