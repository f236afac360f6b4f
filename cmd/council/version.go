package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/council"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of council",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "council version %s\n", strings.TrimSpace(council.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
