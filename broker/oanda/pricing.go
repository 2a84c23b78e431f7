package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rustyeddy/autotrader/market"
)

type priceBucket struct {
	Price string `json:"price"`
}

type apiPrice struct {
	Instrument string        `json:"instrument"`
	Time       string        `json:"time"`
	Tradeable  bool          `json:"tradeable"`
	Bids       []priceBucket `json:"bids"`
	Asks       []priceBucket `json:"asks"`
}

type pricingResponse struct {
	Prices []apiPrice `json:"prices"`
}

// LatestTick returns the top of book for the client's instrument.
func (c *Client) LatestTick(ctx context.Context) (market.Tick, error) {
	q := url.Values{}
	q.Set("instruments", c.instrument)

	var resp pricingResponse
	path := fmt.Sprintf("/v3/accounts/%s/pricing", c.accountID)
	if err := c.do(ctx, "get pricing", http.MethodGet, path, q, nil, &resp); err != nil {
		return market.Tick{}, err
	}

	for _, p := range resp.Prices {
		if p.Instrument != c.instrument || len(p.Bids) == 0 || len(p.Asks) == 0 {
			continue
		}
		bid, err := parsePrice(p.Bids[0].Price)
		if err != nil {
			return market.Tick{}, fmt.Errorf("parse bid: %w", err)
		}
		ask, err := parsePrice(p.Asks[0].Price)
		if err != nil {
			return market.Tick{}, fmt.Errorf("parse ask: %w", err)
		}
		t, err := parseTime(p.Time)
		if err != nil {
			return market.Tick{}, err
		}
		return market.Tick{Instrument: p.Instrument, Time: t, Bid: bid, Ask: ask}, nil
	}
	return market.Tick{}, fmt.Errorf("pricing %s: %w", c.instrument, market.ErrDataUnavailable)
}
