package commands

import (
	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the publisher version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("publisher " + Version)
	},
}
