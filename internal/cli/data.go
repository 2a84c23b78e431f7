package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/broker/oanda"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/market"
)

func newDataCmd(ro *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Market data tools",
	}
	cmd.AddCommand(newCandlesCmd(ro))
	return cmd
}

func newCandlesCmd(ro *RootOptions) *cobra.Command {
	var (
		instrument string
		tfName     string
		price      string
		count      int
		outPath    string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "candles",
		Short: "Download OANDA candles and write CSV",
		Long: `Example:
  trader data candles --timeframe H1 --count 500 --out eurusd-h1.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if ro.ConfigPath != "" {
				loaded, err := config.LoadFromFile(ro.ConfigPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			cfg.ApplyEnv()
			if cfg.Venue.Token == "" {
				return fmt.Errorf("missing token: set %s", config.EnvToken)
			}
			if instrument == "" {
				instrument = cfg.Venue.Instrument
			}

			tf, err := market.ParseTimeframe(tfName)
			if err != nil {
				return err
			}
			gran, err := oanda.GranularityFor(tf)
			if err != nil {
				return err
			}

			if baseURL == "" {
				if baseURL, err = oanda.BaseURL(cfg.Venue.Environment); err != nil {
					return err
				}
			}
			client, err := oanda.NewClient(cfg.Venue.Token, cfg.Venue.AccountID, instrument, true, oanda.WithBaseURL(baseURL))
			if err != nil {
				return err
			}

			bars, err := client.GetCandles(cmd.Context(), oanda.CandlesRequest{
				Price:       oanda.PriceComponent(strings.ToUpper(price)),
				Granularity: gran,
				Count:       count,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := writeBarsCSV(out, bars); err != nil {
				return err
			}
			if outPath != "" && outPath != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d candles to %s\n", len(bars), outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&instrument, "instrument", "", "instrument (defaults to venue.instrument)")
	cmd.Flags().StringVar(&tfName, "timeframe", "H1", "timeframe: M1 M5 M15 M30 H1 H4 D1")
	cmd.Flags().StringVar(&price, "price", "M", "price component: M (mid), B (bid), A (ask)")
	cmd.Flags().IntVar(&count, "count", 500, "number of complete candles, at most 5000")
	cmd.Flags().StringVar(&outPath, "out", "", "output CSV path (stdout when empty)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override the OANDA REST endpoint")
	return cmd
}

func writeBarsCSV(w io.Writer, bars []market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		row := []string{
			time.Unix(b.Time, 0).UTC().Format(time.RFC3339),
			ff(b.Open), ff(b.High), ff(b.Low), ff(b.Close), ff(b.Volume),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
