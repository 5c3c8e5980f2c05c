package cli

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/luaproc/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect luaproc configuration",
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	cmd.AddCommand(newConfigShowCmd(ctx))
	cmd.AddCommand(newConfigEnvCmd())
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "lint [file]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no configuration file given")
			}
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
}

func newConfigShowCmd(ctx *context) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			var out []byte
			switch config.Format(format) {
			case config.FormatTOML:
				out, err = toml.Marshal(cfg)
			case config.FormatYAML:
				out, err = yaml.Marshal(cfg)
			default:
				return fmt.Errorf("%w: %q", config.ErrUnsupportedFormat, format)
			}
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", string(config.FormatTOML), "Output format (toml, yaml)")
	return cmd
}

func newConfigEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables luaproc reads",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.EnvVars() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
