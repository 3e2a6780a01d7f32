// Workermesh CLI runs a coordinator with the standard worker pool and a
// short demo traffic loop.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "workermesh",
	Short: "Workermesh runs a coordinator over the standard pool of " +
		"game-logic, AI, and analytics workers.",
	Long: `Workermesh runs a coordinator over the standard pool of ` +
		`game-logic, AI, and analytics workers. It ships AOT modules to ` +
		`each worker and exposes statistics over HTTP.`,
}

func main() {
	// Missing .env is fine; env vars are optional overrides.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
