package cmd

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet coordination server",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
