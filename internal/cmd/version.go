package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "smtp-send %s\n", Version)
			if GitCommit != "" {
				fmt.Fprintf(out, "  Commit: %s\n", GitCommit)
			}
			if BuildDate != "" {
				fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
			}
		},
	}
}
