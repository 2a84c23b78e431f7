package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe names a candle period using venue-style codes.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

var timeframeSeconds = map[Timeframe]int64{
	M1:  60,
	M5:  5 * 60,
	M15: 15 * 60,
	M30: 30 * 60,
	H1:  3600,
	H4:  4 * 3600,
	D1:  86400,
}

// Default series capacities: roughly one week of intraday history and one
// quarter of daily history.
var defaultCapacity = map[Timeframe]int{
	M1:  10080,
	M5:  2016,
	M15: 672,
	M30: 336,
	H1:  168,
	H4:  84,
	D1:  90,
}

// AllTimeframes lists the supported timeframes from shortest to longest.
func AllTimeframes() []Timeframe {
	return []Timeframe{M1, M5, M15, M30, H1, H4, D1}
}

func (tf Timeframe) Valid() bool {
	_, ok := timeframeSeconds[tf]
	return ok
}

// Seconds returns the period length, or 0 for an unknown timeframe.
func (tf Timeframe) Seconds() int64 {
	return timeframeSeconds[tf]
}

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// DefaultCapacity returns the rolling window size used when none is configured.
func (tf Timeframe) DefaultCapacity() int {
	return defaultCapacity[tf]
}

func (tf Timeframe) String() string { return string(tf) }

// ParseTimeframe accepts "M5", "h1", "D" and "D1".
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if tf == "D" {
		tf = D1
	}
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// TimeframeFromSeconds maps a period length back to its code.
func TimeframeFromSeconds(sec int64) (Timeframe, error) {
	for tf, s := range timeframeSeconds {
		if s == sec {
			return tf, nil
		}
	}
	return "", fmt.Errorf("invalid timeframe seconds: %d", sec)
}
