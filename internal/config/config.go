package config

import (
	"fmt"
	"time"

	"github.com/dshills/luaproc/internal/logging"
	"github.com/dshills/luaproc/internal/security"
)

// Config holds every luaproc setting.
type Config struct {
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
	Permissions PermissionsConfig `toml:"permissions" yaml:"permissions"`
	Lua         LuaConfig         `toml:"lua" yaml:"lua"`
	Metrics     MetricsConfig     `toml:"metrics" yaml:"metrics"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`
	// Format is text or json.
	Format string `toml:"format" yaml:"format"`
}

// PermissionsConfig lists what scripts may do.
type PermissionsConfig struct {
	// Allow holds capability names such as "process" or "filesystem.read".
	Allow []string `toml:"allow" yaml:"allow"`
	// AllowedPaths restricts file access to these trees when non-empty.
	AllowedPaths []string `toml:"allowed_paths" yaml:"allowed_paths"`
	// BlockedPaths are never accessible.
	BlockedPaths []string `toml:"blocked_paths" yaml:"blocked_paths"`
	// Workspace restricts file access to one tree when AllowedPaths is empty.
	Workspace string `toml:"workspace" yaml:"workspace"`
}

// LuaConfig configures the Lua state.
type LuaConfig struct {
	CallStackSize   int `toml:"call_stack_size" yaml:"call_stack_size"`
	RegistryMaxSize int `toml:"registry_max_size" yaml:"registry_max_size"`
	// Timeout bounds a whole script run. Zero means no limit.
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables the endpoint.
	Addr string `toml:"addr" yaml:"addr"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration. It grants nothing.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  logging.LevelInfo.String(),
			Format: string(logging.FormatText),
		},
		Lua: LuaConfig{
			CallStackSize:   256,
			RegistryMaxSize: 1024 * 1024,
		},
	}
}

// LogConfig converts the logging section. The section must be valid.
func (c *Config) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		cfg.Level = level
	}
	cfg.Format = logging.Format(c.Logging.Format)
	return cfg
}

// PermissionSet converts the permissions section.
func (c *Config) PermissionSet() (*security.PermissionSet, error) {
	set := &security.PermissionSet{
		AllowedPaths: append([]string(nil), c.Permissions.AllowedPaths...),
		BlockedPaths: append([]string(nil), c.Permissions.BlockedPaths...),
		Workspace:    c.Permissions.Workspace,
	}
	for _, name := range c.Permissions.Allow {
		cap, err := security.ParseCapability(name)
		if err != nil {
			return nil, err
		}
		set.Capabilities = append(set.Capabilities, cap)
	}
	return set, nil
}

// Grant adds capabilities by name, skipping ones already present.
func (c *Config) Grant(names ...string) {
	have := make(map[string]bool, len(c.Permissions.Allow))
	for _, name := range c.Permissions.Allow {
		have[name] = true
	}
	for _, name := range names {
		if !have[name] {
			c.Permissions.Allow = append(c.Permissions.Allow, name)
			have[name] = true
		}
	}
}
