package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/council/internal/config"
	"github.com/aretw0/council/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "council",
	Short: "Council orchestrates multi-agent deliberations",
	Long: `Council runs councils of agents through join, evidence gathering, deliberation
and synthesis, bounded by deadlines and resource limits.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML settings file (environment variables take precedence)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json (overrides LOG_FORMAT)")
}

// loadSettings resolves the effective settings for cmd.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	s, err := config.Load(path)
	if err != nil {
		return config.Settings{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		s.LogLevel = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		s.LogFormat = format
	}
	return s, nil
}

// newLogger builds the process logger on stderr, keeping stdout for command output.
func newLogger(s config.Settings) (*slog.Logger, error) {
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(s.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format), nil
}
