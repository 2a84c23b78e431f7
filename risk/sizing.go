package risk

// EUR_USD → quote = USD → QuoteToAccount = 1.0
// USD_JPY → quote = JPY → QuoteToAccount = 1 / USDJPY_mid

import (
	"errors"
	"math"
)

var ErrInvalidStop = errors.New("stop distance and pip value must be positive")

type Inputs struct {
	Equity         float64
	RiskPct        float64 // 0.05
	EntryPrice     float64
	StopPrice      float64
	PipLocation    int
	QuoteToAccount float64 // USD quote → 1.0, JPY quote → JPYUSD

	MinUnits float64
	MaxUnits float64
}

type Result struct {
	Units      float64
	StopPips   float64
	RiskAmount float64
}

func pipSize(loc int) float64 {
	return math.Pow(10, float64(loc))
}

// PipSize returns the pip size for a given pip location.
func PipSize(loc int) float64 {
	return pipSize(loc)
}

// Calculate sizes a trade so that hitting the stop loses RiskPct of equity.
func Calculate(in Inputs) (Result, error) {
	pip := pipSize(in.PipLocation)
	stopPips := math.Abs(in.EntryPrice-in.StopPrice) / pip

	units, err := Size(in.Equity, stopPips, in.RiskPct, pip*in.QuoteToAccount, in.MinUnits, in.MaxUnits)
	if err != nil {
		return Result{StopPips: stopPips}, err
	}
	return Result{
		Units:      units,
		StopPips:   stopPips,
		RiskAmount: in.Equity * in.RiskPct,
	}, nil
}

// Size returns whole units risking riskPct of balance over stopPips, where
// pipValue is the account-currency value of one pip on one unit. The result
// is clamped to [minUnits, maxUnits]; a zero bound is ignored.
func Size(balance, stopPips, riskPct, pipValue, minUnits, maxUnits float64) (float64, error) {
	if stopPips <= 0 || pipValue <= 0 {
		return 0, ErrInvalidStop
	}
	units := math.Floor(balance * riskPct / (stopPips * pipValue))
	if minUnits > 0 && units < minUnits {
		units = minUnits
	}
	if maxUnits > 0 && units > maxUnits {
		units = maxUnits
	}
	return units, nil
}
