package risk

import (
	"fmt"

	"github.com/rustyeddy/autotrader/events"
)

// Decision is the outcome of a pre-trade check.
type Decision struct {
	Allowed    bool
	Violations []events.Violation

	PlannedRiskUSD float64
	PlannedRiskPct float64
	PlannedRR      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, events.Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// CheckTrade gates a new order against the policy's per-trade, exposure and
// realized loss limits. Every breached limit is listed.
func CheckTrade(
	p Policy,
	intent TradeIntent,
	acct AccountSnapshot,
	pnl PnLSnapshot,
	quoteToAccountRate float64, // for EUR/USD in USD acct: 1.0
) Decision {
	d := Decision{Allowed: true}

	if intent.Stop == 0 || intent.Entry == 0 {
		d.add("NO_STOP_OR_ENTRY", "entry/stop must be set")
		return d
	}
	if intent.Units == 0 {
		d.add("NO_UNITS", "units must be non-zero")
		return d
	}

	d.PlannedRiskUSD = PlannedRiskUSD(intent.Units, intent.Entry, intent.Stop, quoteToAccountRate)
	d.PlannedRiskPct = RiskPct(d.PlannedRiskUSD, acct.Equity)
	d.PlannedRR = RR(intent.Entry, intent.Stop, intent.TakeProfit)

	if d.PlannedRiskPct > p.MaxRiskPct {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%",
				100*d.PlannedRiskPct, 100*p.MaxRiskPct))
	}
	if intent.TakeProfit != 0 && d.PlannedRR < p.MinRR {
		d.add("RR_TOO_LOW",
			fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
	}

	if p.MaxOpenTrades > 0 && acct.OpenTrades >= p.MaxOpenTrades {
		d.add("TOO_MANY_OPEN_TRADES",
			fmt.Sprintf("open trades %d >= max %d", acct.OpenTrades, p.MaxOpenTrades))
	}

	if acct.Equity > 0 && p.MaxMarginPct > 0 && acct.MarginUsed/acct.Equity > p.MaxMarginPct {
		d.add("MARGIN_TOO_HIGH",
			fmt.Sprintf("margin used %.2f%% exceeds max %.2f%%",
				100*(acct.MarginUsed/acct.Equity), 100*p.MaxMarginPct))
	}

	if p.MaxDailyLossPct > 0 {
		dayLimit := -p.MaxDailyLossPct * acct.Equity
		if pnl.DayRealized <= dayLimit {
			d.add("DAILY_LOSS_LIMIT", fmt.Sprintf("day realized %.2f <= limit %.2f", pnl.DayRealized, dayLimit))
		}
	}
	if p.MaxWeeklyLossPct > 0 {
		weekLimit := -p.MaxWeeklyLossPct * acct.Equity
		if pnl.WeekRealized <= weekLimit {
			d.add("WEEKLY_LOSS_LIMIT", fmt.Sprintf("week realized %.2f <= limit %.2f", pnl.WeekRealized, weekLimit))
		}
	}

	return d
}
