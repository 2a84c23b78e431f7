package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(ro *RootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop until interrupted",
		Long: `Run loads market history, then cycles: refresh candles, reconcile the
ledger with the venue, mark prices, run due strategies, manage stops and
check the circuit breakers.

Examples:
  trader run --config trader.yaml
  trader run --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			log, err := ro.logger(cfg)
			if err != nil {
				return err
			}

			app, err := Build(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Error("close journal", slog.Any("err", err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if once {
				if err := app.Store.InitializeAll(ctx); err != nil {
					log.Warn("initial load incomplete", slog.Any("err", err))
				}
				if err := app.Trader.Cycle(ctx); err != nil {
					return err
				}
				acct := app.Trader.Account()
				fmt.Fprintf(cmd.OutOrStdout(), "balance %.2f equity %.2f open positions %d halted %t\n",
					acct.Balance, acct.Equity, len(app.Trader.Positions()), app.Trader.Halted())
				return nil
			}

			err = app.Trader.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}
