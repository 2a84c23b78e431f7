package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a trade as an Org-mode entry. Facts go in the
// PROPERTIES drawer; Thesis, Execution and Review are left for the trader.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s (%s)\n", t.Instrument, shortID(t.TradeID))
	b.WriteString(":PROPERTIES:\n")
	prop := func(k, format string, v any) {
		fmt.Fprintf(&b, ":%s: "+format+"\n", k, v)
	}
	prop("TRADE_ID", "%s", t.TradeID)
	prop("ID", "%s", t.TradeID)
	prop("INSTRUMENT", "%s", t.Instrument)
	prop("DIRECTION", "%s", t.Direction)
	prop("UNITS", "%.0f", t.Units)
	prop("ENTRY_PRICE", "%.5f", t.EntryPrice)
	prop("EXIT_PRICE", "%.5f", t.ExitPrice)
	prop("OPEN_TIME", "%s", t.OpenTime.UTC().Format(time.RFC3339))
	prop("CLOSE_TIME", "%s", t.CloseTime.UTC().Format(time.RFC3339))
	prop("REALIZED_PL", "%.2f", t.RealizedPL)
	prop("REASON", "%s", t.Reason)
	if t.Tag != "" {
		prop("TAG", "%s", t.Tag)
	}
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

// FormatTradesOrg renders trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	parts := make([]string, len(trades))
	for i, t := range trades {
		parts[i] = FormatTradeOrg(t)
	}
	return strings.Join(parts, "\n\n")
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
