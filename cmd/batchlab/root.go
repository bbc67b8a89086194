package batchlab

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           rootCommandUse,
	Short:         rootCommandShort,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newPrepareCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newResultsCommand())
}

// Execute runs the CLI and reports the terminal error, if any.
func Execute() error {
	return rootCmd.Execute()
}
