package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show tapio-trace version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tapio-trace v%s\n", getVersion())
			fmt.Fprintf(out, "Git Commit: %s\n", getGitCommit())
			fmt.Fprintf(out, "Build Date: %s\n", getBuildDate())
		},
	}
}

// These will be set by build scripts
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func getVersion() string   { return version }
func getGitCommit() string { return gitCommit }
func getBuildDate() string { return buildDate }
