package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dshills/luaproc/internal/host"
	"github.com/dshills/luaproc/internal/lua/api"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "luaproc %s\n", host.Version)
			fmt.Fprintf(out, "Lua API: %s\n", api.Version)
			fmt.Fprintf(out, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
