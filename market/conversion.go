package market

import "fmt"

// QuoteToAccountRate converts one unit of the instrument's quote currency
// into the account currency, using mid as the instrument's current price.
func QuoteToAccountRate(instrument, accountCurrency string, mid float64) (float64, error) {
	meta, err := LookupInstrument(instrument)
	if err != nil {
		return 0, err
	}

	// EUR_USD in a USD account
	if meta.QuoteCurrency == accountCurrency {
		return 1.0, nil
	}

	// USD_JPY in a USD account: mid is JPY per USD, we want USD per JPY
	if meta.BaseCurrency == accountCurrency {
		if mid <= 0 {
			return 0, fmt.Errorf("no price to convert %s into %s", meta.QuoteCurrency, accountCurrency)
		}
		return 1.0 / mid, nil
	}

	return 0, fmt.Errorf(
		"cross conversion not implemented for %s → %s",
		meta.QuoteCurrency,
		accountCurrency,
	)
}
