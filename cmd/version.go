package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the release version reported by SYS-VER and the version
// subcommand. Overridden at build time with -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fleetd %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
