package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the workermesh version.",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("workermesh " + version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
