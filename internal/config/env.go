package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix starts every environment variable the loader reads.
const EnvPrefix = "LUAPROC_"

// envSetter applies one environment variable to a configuration.
type envSetter func(cfg *Config, value string) error

// envMapping maps environment variables to the settings they override.
var envMapping = map[string]envSetter{
	EnvPrefix + "LOG_LEVEL": func(cfg *Config, v string) error {
		cfg.Logging.Level = v
		return nil
	},
	EnvPrefix + "LOG_FORMAT": func(cfg *Config, v string) error {
		cfg.Logging.Format = v
		return nil
	},
	EnvPrefix + "ALLOW": func(cfg *Config, v string) error {
		cfg.Permissions.Allow = splitList(v, ",")
		return nil
	},
	EnvPrefix + "ALLOWED_PATHS": func(cfg *Config, v string) error {
		cfg.Permissions.AllowedPaths = splitList(v, string(os.PathListSeparator))
		return nil
	},
	EnvPrefix + "BLOCKED_PATHS": func(cfg *Config, v string) error {
		cfg.Permissions.BlockedPaths = splitList(v, string(os.PathListSeparator))
		return nil
	},
	EnvPrefix + "WORKSPACE": func(cfg *Config, v string) error {
		cfg.Permissions.Workspace = v
		return nil
	},
	EnvPrefix + "LUA_CALL_STACK_SIZE": func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		cfg.Lua.CallStackSize = n
		return nil
	},
	EnvPrefix + "LUA_REGISTRY_MAX_SIZE": func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		cfg.Lua.RegistryMaxSize = n
		return nil
	},
	EnvPrefix + "LUA_TIMEOUT": func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		cfg.Lua.Timeout = Duration(d)
		return nil
	},
	EnvPrefix + "METRICS_ADDR": func(cfg *Config, v string) error {
		cfg.Metrics.Addr = v
		return nil
	},
}

// EnvVars returns the names of every environment variable the loader reads.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides cfg with the variables lookup finds.
// Empty values are treated as set.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, name := range EnvVars() {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := envMapping[name](cfg, strings.TrimSpace(v)); err != nil {
			return &ValidationError{Path: name, Message: err.Error(), Value: v}
		}
	}
	return nil
}

// splitList splits s on sep, dropping empty elements.
func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// String renders cfg for diagnostics.
func (c *Config) String() string {
	return fmt.Sprintf("logging=%s/%s allow=%v lua.timeout=%s metrics=%q",
		c.Logging.Level, c.Logging.Format, c.Permissions.Allow, c.Lua.Timeout.Std(), c.Metrics.Addr)
}
