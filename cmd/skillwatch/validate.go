package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"skillwatch/internal/config"
	"skillwatch/internal/monitor"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a skillwatch configuration file without starting the bot.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewManager(path, zerolog.Nop()).Parse()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	period, _ := config.ParseDurationOrDefault("monitor.rotation_period", cfg.Monitor.RotationPeriod, monitor.DefaultRotationPeriod)
	retry := cfg.Monitor.RetryLimit
	if retry == 0 {
		retry = monitor.DefaultRetryLimit
	}

	fmt.Println("Config is valid!")
	fmt.Printf("  Rotation period: %s\n", period)
	fmt.Printf("  Retry limit:     %d\n", retry)
	fmt.Printf("  Storage dir:     %s\n", cfg.Monitor.StorageDir)
	fmt.Printf("  History driver:  %s\n", orNone(cfg.History.Driver))
	fmt.Printf("  Digest schedule: %s\n", orNone(cfg.Digest.Schedule))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}
