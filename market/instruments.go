package market

import (
	"fmt"
	"math"
	"strings"
)

type InstrumentMeta struct {
	Name             string
	BaseCurrency     string
	QuoteCurrency    string
	PipLocation      int
	DisplayPrecision int
	MinimumTradeSize float64
	MarginRate       float64
}

// PipSize is the conventional quoted increment, 10^PipLocation.
func (m InstrumentMeta) PipSize() float64 {
	return math.Pow(10, float64(m.PipLocation))
}

// Point is the smallest price step, one tenth of a pip.
func (m InstrumentMeta) Point() float64 {
	return math.Pow(10, float64(m.PipLocation-1))
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": {
		Name:             "EUR_USD",
		BaseCurrency:     "EUR",
		QuoteCurrency:    "USD",
		PipLocation:      -4,
		DisplayPrecision: 5,
		MinimumTradeSize: 1,
		MarginRate:       0.02,
	},
	"GBP_USD": {
		Name:             "GBP_USD",
		BaseCurrency:     "GBP",
		QuoteCurrency:    "USD",
		PipLocation:      -4,
		DisplayPrecision: 5,
		MinimumTradeSize: 1,
		MarginRate:       0.02,
	},
	"USD_JPY": {
		Name:             "USD_JPY",
		BaseCurrency:     "USD",
		QuoteCurrency:    "JPY",
		PipLocation:      -2,
		DisplayPrecision: 3,
		MinimumTradeSize: 1,
		MarginRate:       0.02,
	},
	"XAU_USD": {
		Name:             "XAU_USD",
		BaseCurrency:     "XAU",
		QuoteCurrency:    "USD",
		PipLocation:      -2,
		DisplayPrecision: 3,
		MinimumTradeSize: 1,
		MarginRate:       0.05,
	},
}

// NormalizeInstrument turns "eur/usd" or "EURUSD" into "EUR_USD".
func NormalizeInstrument(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "/", "_")
	if !strings.Contains(s, "_") && len(s) == 6 {
		s = s[:3] + "_" + s[3:]
	}
	return s
}

func LookupInstrument(name string) (InstrumentMeta, error) {
	meta, ok := Instruments[NormalizeInstrument(name)]
	if !ok {
		return InstrumentMeta{}, fmt.Errorf("unknown instrument %q", name)
	}
	return meta, nil
}
