package risk

import "time"

type Policy struct {
	AccountBaseCurrency string // "USD"

	// Pre-trade limits
	DefaultRiskPct float64 // 0.05
	MaxRiskPct     float64 // 0.06
	MaxOpenTrades  int     // 5
	MaxMarginPct   float64 // 0.50
	MinRR          float64 // 0.5

	// Realized loss limits for new trades
	MaxDailyLossPct  float64 // 0.05
	MaxWeeklyLossPct float64 // 0.10

	// Open position management, in pips
	TrailStartPips    float64 // 22
	TrailDistancePips float64 // 18
	BreakevenPips     float64 // 10

	// Circuit breakers
	BalanceFloor         float64 // 100
	MaxConsecutiveLosses int     // 3
	MaxDrawdown          float64 // 0.05

	// Positions whose tag is listed here are left alone.
	ExemptTags []string

	// Sizing bounds in units.
	MinUnits float64
	MaxUnits float64
}

// DefaultPolicy returns the limits the trader runs with when not configured.
func DefaultPolicy() Policy {
	return Policy{
		AccountBaseCurrency:  "USD",
		DefaultRiskPct:       0.05,
		MaxRiskPct:           0.06,
		MaxOpenTrades:        5,
		MaxMarginPct:         0.50,
		MinRR:                0.5,
		MaxDailyLossPct:      0.05,
		MaxWeeklyLossPct:     0.10,
		TrailStartPips:       22,
		TrailDistancePips:    18,
		BreakevenPips:        10,
		BalanceFloor:         100,
		MaxConsecutiveLosses: 3,
		MaxDrawdown:          0.05,
		MinUnits:             1,
		MaxUnits:             100000,
	}
}

func (p Policy) exempt(tag string) bool {
	if tag == "" {
		return false
	}
	for _, t := range p.ExemptTags {
		if t == tag {
			return true
		}
	}
	return false
}

type TradeIntent struct {
	Now        time.Time
	Instrument string // "EUR_USD" or "EUR/USD"
	Units      float64

	Entry      float64
	Stop       float64
	TakeProfit float64
}

type AccountSnapshot struct {
	Balance float64
	Equity  float64

	MarginUsed  float64
	MarginAvail float64

	OpenTrades int
}

type PnLSnapshot struct {
	DayRealized  float64 // realized P/L for day in account currency
	WeekRealized float64 // realized P/L for week
}
