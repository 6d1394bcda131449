// Package main is the entry point for the skillwatch binary.
//
// Usage:
//
//	skillwatch serve -c config.yaml    # Run the bot
//	skillwatch validate -c config.yaml # Validate configuration
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skillwatch",
	Short: "EVE Online skill training monitor bot",
	Long: `skillwatch monitors EVE Online characters' skill training and posts
notifications to per-character Telegram forum topics.

Users register a character with the /monitor chat command, authenticate
through EVE SSO, and the bot polls their skill sheet round-robin,
reporting completed and injected skills as they happen.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
