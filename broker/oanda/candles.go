package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

// Granularity represents the time frame for candles
type Granularity string

const (
	M1  Granularity = "M1"
	M5  Granularity = "M5"
	M15 Granularity = "M15"
	M30 Granularity = "M30"
	H1  Granularity = "H1"
	H4  Granularity = "H4"
	D   Granularity = "D"
)

// GranularityFor maps a store timeframe to OANDA's code.
func GranularityFor(tf market.Timeframe) (Granularity, error) {
	switch tf {
	case market.M1:
		return M1, nil
	case market.M5:
		return M5, nil
	case market.M15:
		return M15, nil
	case market.M30:
		return M30, nil
	case market.H1:
		return H1, nil
	case market.H4:
		return H4, nil
	case market.D1:
		return D, nil
	}
	return "", fmt.Errorf("no OANDA granularity for %s", tf)
}

// PriceComponent represents the price component for candles
type PriceComponent string

const (
	MidPrice PriceComponent = "M"
	BidPrice PriceComponent = "B"
	AskPrice PriceComponent = "A"
)

const maxCandleCount = 5000

// CandlesRequest represents parameters for fetching historical candles
type CandlesRequest struct {
	Instrument  string
	Price       PriceComponent // default MidPrice
	Granularity Granularity    // default M1
	Count       int            // max 5000
	// IncludeIncomplete keeps the still-forming newest candle.
	IncludeIncomplete bool
}

type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool        `json:"complete"`
	Volume   int         `json:"volume"`
	Time     string      `json:"time"`
	Mid      *candleData `json:"mid,omitempty"`
	Bid      *candleData `json:"bid,omitempty"`
	Ask      *candleData `json:"ask,omitempty"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// GetCandles fetches candles, oldest first.
func (c *Client) GetCandles(ctx context.Context, req CandlesRequest) ([]market.Bar, error) {
	if req.Instrument == "" {
		req.Instrument = c.instrument
	}
	if req.Price == "" {
		req.Price = MidPrice
	}
	if req.Granularity == "" {
		req.Granularity = M1
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > maxCandleCount {
		req.Count = maxCandleCount
	}

	params := url.Values{}
	params.Set("price", string(req.Price))
	params.Set("granularity", string(req.Granularity))
	params.Set("count", strconv.Itoa(req.Count))

	var resp candlesResponse
	path := fmt.Sprintf("/v3/instruments/%s/candles", req.Instrument)
	if err := c.do(ctx, "get candles", http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(resp.Candles))
	for _, ac := range resp.Candles {
		if !ac.Complete && !req.IncludeIncomplete {
			continue
		}

		t, err := time.Parse(time.RFC3339Nano, ac.Time)
		if err != nil {
			return nil, fmt.Errorf("parse time %s: %w", ac.Time, err)
		}

		var pd *candleData
		switch req.Price {
		case BidPrice:
			pd = ac.Bid
		case AskPrice:
			pd = ac.Ask
		default:
			pd = ac.Mid
		}
		if pd == nil {
			return nil, fmt.Errorf("candle %s: %w", ac.Time, errNoPrice)
		}

		b := market.Bar{Time: t.Unix(), Volume: float64(ac.Volume)}
		for _, f := range []struct {
			dst *float64
			src string
			nm  string
		}{
			{&b.Open, pd.O, "open"},
			{&b.High, pd.H, "high"},
			{&b.Low, pd.L, "low"},
			{&b.Close, pd.C, "close"},
		} {
			v, err := parsePrice(f.src)
			if err != nil {
				return nil, fmt.Errorf("parse %s price: %w", f.nm, err)
			}
			*f.dst = v
		}
		bars = append(bars, b)
	}

	return bars, nil
}

// RecentBars returns the newest count bars for tf, including the one still forming.
func (c *Client) RecentBars(ctx context.Context, tf market.Timeframe, count int) ([]market.Bar, error) {
	g, err := GranularityFor(tf)
	if err != nil {
		return nil, err
	}
	return c.GetCandles(ctx, CandlesRequest{
		Granularity:       g,
		Count:             count,
		IncludeIncomplete: true,
	})
}
