// Package cmd is the cobra command tree for the coin provisioning CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drusifer/globalheadsortails/internal/config"
)

const version = "1.0.0"

var (
	configPath string
	verbose    bool
	logFormat  string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "coinctl",
	Short:   "Provision and inspect NTAG 424 DNA game coins",
	Version: version,
	Long: `coinctl provisions NTAG 424 DNA tags as game coins: rotating their
AES-128 keys, writing a Secure Dynamic Messaging NDEF record, and tracking
each tag's keys and status in a durable key store.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "debug", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

// configureLogging wires the -v/--debug and --log-format flags into the
// default slog logger, so the ntag424 package's slog.Debug call sites
// become visible on request instead of being silently dropped by the
// default Info-level logger.
func configureLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and caches the config for the validation mode the
// current subcommand requires.
func loadConfig(mode config.ValidationMode) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := config.LoadWithMode(configPath, mode)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg = c
	return cfg, nil
}
