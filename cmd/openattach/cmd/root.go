package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	rootDir    string
	requestLog string
)

var rootCmd = &cobra.Command{
	Use:   "openattach",
	Short: "Supervise an interactive CLI and restart it with attached images",
	Long: `openattach wraps a long-running interactive CLI on a pseudo-terminal.
When the child prints the restart marker, openattach kills it and respawns
it with resume and attach-image arguments pointing at the most recently
requested image, then nudges the new session to continue.

Attach requests come from the request log, written by "openattach attach"
or the optional HTTP control server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", os.Getenv("OPENATTACH_ROOT"), "directory attach paths must resolve inside (default: working directory)")
	rootCmd.PersistentFlags().StringVar(&requestLog, "request-log", os.Getenv("OPENATTACH_REQUEST_LOG"), "attach request log path")
}
