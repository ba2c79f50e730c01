package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aquamon %s (built %s, commit %s)\n", cliVersion, cliBuildDate, cliGitCommit)
		},
	}
}
