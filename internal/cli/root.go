// Package cli is the trader command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/internal/logx"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// RootOptions are the persistent flags every subcommand sees.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
}

func NewRootCmd() *cobra.Command {
	ro := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "trader",
		Short:         "Automated FX trader: market data, position ledger, risk management",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "path to YAML or JSON config (defaults when empty)")
	cmd.PersistentFlags().StringVar(&ro.EnvFile, "env-file", ".env", "dotenv file with OANDA_TOKEN / OANDA_ACCOUNT_ID")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "override logging.level: debug|info|warn|error")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if ro.EnvFile == "" {
			return nil
		}
		if err := godotenv.Load(ro.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", ro.EnvFile, err)
		}
		return nil
	}

	cmd.AddCommand(
		newRunCmd(ro),
		newConfigCmd(ro),
		newJournalCmd(ro),
		newDataCmd(ro),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "trader %s\n", Version)
			},
		},
	)

	return cmd
}

// load reads the configured file, or the defaults plus environment when
// no file is given.
func (ro *RootOptions) load() (*config.Config, error) {
	if ro.ConfigPath != "" {
		return config.LoadFromFile(ro.ConfigPath)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (ro *RootOptions) logger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if ro.LogLevel != "" {
		level = ro.LogLevel
	}
	return logx.New(os.Stderr, level, cfg.Logging.Format)
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
