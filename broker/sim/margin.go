package sim

import "github.com/rustyeddy/autotrader/market"

// TradeMargin is the margin held for units at price, in account currency.
func TradeMargin(units float64, price float64, instrument string, quoteToAccount float64) float64 {
	meta, err := market.LookupInstrument(instrument)
	if err != nil {
		return 0
	}
	notionalQuote := abs(units) * price
	notionalAccount := notionalQuote * quoteToAccount
	return notionalAccount * meta.MarginRate
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
