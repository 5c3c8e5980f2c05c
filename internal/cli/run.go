package cli

import (
	stdcontext "context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/luaproc/internal/host"
)

func newRunCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script> [args...]",
		Short: "Run a Lua script file",
		Long: `Run a Lua script file. Arguments after the script are passed to it as
varargs and in the arg table, with arg[0] set to the script path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.execute(cmd.Context(), func(runCtx stdcontext.Context, h *host.Host) error {
				return h.RunFile(runCtx, args[0], args[1:])
			})
		},
	}
	// Flags after the script name belong to the script.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newEvalCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <code>",
		Short: "Run a Lua chunk given on the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.execute(cmd.Context(), func(runCtx stdcontext.Context, h *host.Host) error {
				return h.RunString(runCtx, "eval", args[0])
			})
		},
	}
}

// execute builds a host from the effective configuration and runs script
// under its supervisor.
func (c *context) execute(ctx stdcontext.Context, script func(stdcontext.Context, *host.Host) error) (err error) {
	if c.watchConfig && c.configPath == "" {
		return errors.New("--watch-config requires --config")
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	h, err := host.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := h.Close(); err == nil {
			err = closeErr
		}
	}()

	svc := host.Services{MetricsAddr: cfg.Metrics.Addr}
	if c.watchConfig {
		svc.ConfigPath = c.configPath
		svc.Override = c.override
	}

	return h.Supervise(ctx, svc, func(runCtx stdcontext.Context) error {
		return script(runCtx, h)
	})
}
