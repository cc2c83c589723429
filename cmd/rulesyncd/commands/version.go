package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version and GitCommit are overridable at build time via -ldflags.
	Version   = "dev"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rulesyncd %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
