package config

import (
	"errors"

	"github.com/dshills/luaproc/internal/logging"
	"github.com/dshills/luaproc/internal/security"
)

// Validate checks every setting and returns all failures joined.
func (c *Config) Validate() error {
	var errs []error
	fail := func(path, msg string, value any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		fail("logging.level", "must be debug, info, warn or error", c.Logging.Level)
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		fail("logging.format", "must be text or json", c.Logging.Format)
	}

	for _, name := range c.Permissions.Allow {
		if _, err := security.ParseCapability(name); err != nil {
			fail("permissions.allow", "unknown capability", name)
		}
	}

	if c.Lua.CallStackSize <= 0 {
		fail("lua.call_stack_size", "must be positive", c.Lua.CallStackSize)
	}
	if c.Lua.RegistryMaxSize < 0 {
		fail("lua.registry_max_size", "must not be negative", c.Lua.RegistryMaxSize)
	}
	if c.Lua.Timeout < 0 {
		fail("lua.timeout", "must not be negative", c.Lua.Timeout.Std())
	}

	return errors.Join(errs...)
}
