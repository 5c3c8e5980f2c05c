// Package cli implements the luaproc command line.
package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/luaproc/internal/config"
)

// NewRootCmd returns the luaproc command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{}

	root := &cobra.Command{
		Use:   "luaproc",
		Short: "Run Lua scripts that spawn and supervise processes",
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Path to a TOML or YAML configuration file")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Log format (text, json)")
	flags.StringSliceVar(&ctx.allow, "allow", nil, "Grant capabilities by name, e.g. process.spawn")
	flags.BoolVar(&ctx.allowRun, "allow-run", false, "Grant the process capability")
	flags.BoolVar(&ctx.allowRead, "allow-read", false, "Grant the filesystem.read capability")
	flags.BoolVar(&ctx.allowWrite, "allow-write", false, "Grant the filesystem.write capability")
	flags.StringSliceVar(&ctx.allowedPaths, "allowed-path", nil, "Restrict file access to these paths")
	flags.DurationVar(&ctx.timeout, "timeout", 0, "Abort the script after this long (0 keeps the configured value)")
	flags.StringVar(&ctx.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&ctx.watchConfig, "watch-config", false, "Re-apply the configuration file when it changes")

	ctx.flags = flags
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newEvalCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "luaproc:", err)
		os.Exit(1)
	}
}

type flagSet interface {
	Changed(name string) bool
}

type context struct {
	flags flagSet

	configPath   string
	logLevel     string
	logFormat    string
	allow        []string
	allowRun     bool
	allowRead    bool
	allowWrite   bool
	allowedPaths []string
	timeout      time.Duration
	metricsAddr  string
	watchConfig  bool
}

// loadConfig reads the configuration file and applies the flags on top.
func (c *context) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := c.override(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// override applies the command line flags to cfg and validates the result.
func (c *context) override(cfg *config.Config) error {
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Logging.Format = c.logFormat
	}

	cfg.Grant(c.allow...)
	if c.allowRun {
		cfg.Grant("process")
	}
	if c.allowRead {
		cfg.Grant("filesystem.read")
	}
	if c.allowWrite {
		cfg.Grant("filesystem.write")
	}
	cfg.Permissions.AllowedPaths = append(cfg.Permissions.AllowedPaths, c.allowedPaths...)

	if c.flags != nil && c.flags.Changed("timeout") {
		cfg.Lua.Timeout = config.Duration(c.timeout)
	}
	if c.metricsAddr != "" {
		cfg.Metrics.Addr = c.metricsAddr
	}
	return cfg.Validate()
}
