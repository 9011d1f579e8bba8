package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/cftbridge"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of cftbridge",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cftbridge version %s\n", strings.TrimSpace(cftbridge.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
