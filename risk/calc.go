package risk

import (
	"math"
	"time"

	"github.com/rustyeddy/autotrader/position"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PlannedRiskUSD computes the account-currency loss if the stop is hit.
func PlannedRiskUSD(units, entry, stop, quoteToAccountRate float64) float64 {
	move := abs(entry - stop)
	plQuote := units * move
	return plQuote * quoteToAccountRate
}

func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

func RiskPct(plannedRiskUSD, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRiskUSD / equity
}

// RealizedPnL sums the account-currency result of positions closed at or
// after since.
func RealizedPnL(history []position.Position, since time.Time, quoteToAccountRate float64) float64 {
	var sum float64
	for _, p := range history {
		if p.CloseTime.Before(since) {
			continue
		}
		sum += (p.ClosePrice - p.EntryPrice) * float64(p.Direction) * p.Size * quoteToAccountRate
	}
	return sum
}

// PnLFrom builds the day and week realized totals as of now. Weeks start on
// Monday, UTC.
func PnLFrom(history []position.Position, now time.Time, quoteToAccountRate float64) PnLSnapshot {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	week := day.AddDate(0, 0, -offset)
	return PnLSnapshot{
		DayRealized:  RealizedPnL(history, day, quoteToAccountRate),
		WeekRealized: RealizedPnL(history, week, quoteToAccountRate),
	}
}
