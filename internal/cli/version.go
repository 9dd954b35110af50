package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rescale/credvend/internal/fips"
	"github.com/rescale/credvend/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "credvend %s\n", version.Version)
			fmt.Fprintf(out, "  Built:  %s\n", version.BuildTime)
			fmt.Fprintf(out, "  Go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  Crypto: %s\n", fips.Status())
		},
	}
}
