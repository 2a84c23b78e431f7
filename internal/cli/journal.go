package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/journal"
)

func newJournalCmd(ro *RootOptions) *cobra.Command {
	var dbPath string

	open := func() (*journal.SQLite, error) {
		path := dbPath
		if path == "" {
			cfg, err := ro.load()
			if err != nil {
				return nil, err
			}
			if cfg.Journal.Type != "sqlite" {
				return nil, fmt.Errorf("journal queries need a sqlite journal (configured: %q); pass --db", cfg.Journal.Type)
			}
			path = cfg.Journal.Path
		}
		j, err := journal.NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	listDay := func(w io.Writer, day string) error {
		j, err := open()
		if err != nil {
			return err
		}
		defer j.Close()

		start, end, err := dayBounds(time.Local, day)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		recs, err := j.ListTradesClosedBetween(start, end)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
		writeTrades(w, recs)
		return nil
	}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite trade journal",
		Long: `Examples:
  trader journal trade 01HV3K8Y2M9QFZ6T1R4W7XBCDE
  trader journal today
  trader journal day 2024-01-15`,
	}
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite journal (defaults to journal.path)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "trade <trade-id>",
			Short: "Show one trade",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()

				rec, err := j.GetTrade(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
				return nil
			},
		},
		&cobra.Command{
			Use:   "today",
			Short: "List trades closed today",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return listDay(cmd.OutOrStdout(), time.Now().Format("2006-01-02"))
			},
		},
		&cobra.Command{
			Use:   "day <YYYY-MM-DD>",
			Short: "List trades closed on a day",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return listDay(cmd.OutOrStdout(), args[0])
			},
		},
	)
	return cmd
}

func writeTrades(w io.Writer, recs []journal.TradeRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	fmt.Fprintln(w, journal.FormatTradesOrg(recs))
	s := journal.Summarize(recs)
	fmt.Fprintf(w, "\n# %d trades, %d wins, %d losses, net %.2f, win rate %.0f%%\n",
		s.Trades, s.Wins, s.Losses, s.NetPL, 100*s.WinRate())
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
