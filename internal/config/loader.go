package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// BaseFileName is the configuration layer every environment starts from.
const BaseFileName = "base.yaml"

// EnvironmentVariable selects the override layer when no environment is
// passed explicitly.
const EnvironmentVariable = "APP_ENV"

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Loader reads layered YAML configuration.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLookupEnv replaces os.LookupEnv for variable substitution.
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookupEnv = fn
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads dir/base.yaml and, if present, dir/<env>.yaml on top of it.
func Load(dir, env string) (*GatewayConfig, error) {
	return NewLoader().Load(dir, env)
}

// LoadFile loads a single configuration file.
func LoadFile(path string) (*GatewayConfig, error) {
	return NewLoader().LoadFile(path)
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*GatewayConfig, error) {
	return NewLoader().LoadFromReader(r)
}

// ResolveEnvironment returns env, or $APP_ENV, or DefaultEnvironment.
func ResolveEnvironment(env string) string {
	if env != "" {
		return env
	}
	if v := os.Getenv(EnvironmentVariable); v != "" {
		return v
	}
	return DefaultEnvironment
}

// Load merges dir/base.yaml with dir/<env>.yaml. Nested maps are merged
// key by key; any other value in the environment layer replaces the base
// value. A missing environment layer is not an error.
func (l *Loader) Load(dir, env string) (*GatewayConfig, error) {
	env = ResolveEnvironment(env)

	base, err := l.readLayer(filepath.Join(dir, BaseFileName))
	if err != nil {
		return nil, err
	}

	overridePath := filepath.Join(dir, env+".yaml")
	override, err := l.readLayer(overridePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		override = nil
	case err != nil:
		return nil, err
	}

	return l.decode(MergeMaps(base, override))
}

// LoadFile loads a single YAML document.
func (l *Loader) LoadFile(path string) (*GatewayConfig, error) {
	layer, err := l.readLayer(path)
	if err != nil {
		return nil, err
	}
	return l.decode(layer)
}

// LoadFromReader loads a single YAML document from r.
func (l *Loader) LoadFromReader(r io.Reader) (*GatewayConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	layer, err := l.parseLayer(data)
	if err != nil {
		return nil, err
	}
	return l.decode(layer)
}

func (l *Loader) readLayer(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	layer, err := l.parseLayer(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return layer, nil
}

func (l *Loader) parseLayer(data []byte) (map[string]interface{}, error) {
	content := l.substituteEnvVars(string(data))

	var layer map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &layer); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return layer, nil
}

// decode renders the merged layers back to YAML and decodes them over the
// defaults, rejecting unknown keys.
func (l *Loader) decode(layer map[string]interface{}) (*GatewayConfig, error) {
	cfg := DefaultConfig()
	if len(layer) == 0 {
		return cfg, nil
	}

	data, err := yaml.Marshal(layer)
	if err != nil {
		return nil, fmt.Errorf("failed to render merged config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. "$$" yields a literal "$".
func (l *Loader) substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := l.lookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// MergeMaps deep-merges override into a copy of base.
func MergeMaps(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range override {
		bm, baseIsMap := out[k].(map[string]interface{})
		om, overrideIsMap := ov.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			out[k] = MergeMaps(bm, om)
			continue
		}
		out[k] = ov
	}
	return out
}
