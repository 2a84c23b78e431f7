package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/config"
)

func newConfigCmd(ro *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "trader.yaml", "output path (.yaml/.yml or .json)")

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check that a configuration file loads and is valid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ro.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no config file given")
			}
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (venue %s, %s, %d strategies)\n",
				path, cfg.Venue.Type, cfg.Venue.Instrument, len(cfg.Strategies))
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
