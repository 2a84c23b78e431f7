package oanda

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/position"
)

type priceDetails struct {
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

type clientExtensions struct {
	Tag     string `json:"tag,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type apiTrade struct {
	ID               string            `json:"id"`
	Instrument       string            `json:"instrument"`
	Price            string            `json:"price"`
	OpenTime         string            `json:"openTime"`
	CurrentUnits     string            `json:"currentUnits"`
	StopLossOrder    *priceDetails     `json:"stopLossOrder,omitempty"`
	TakeProfitOrder  *priceDetails     `json:"takeProfitOrder,omitempty"`
	ClientExtensions *clientExtensions `json:"clientExtensions,omitempty"`
}

type openTradesResponse struct {
	Trades []apiTrade `json:"trades"`
}

// OpenPositions lists the account's open trades in the client's instrument.
func (c *Client) OpenPositions(ctx context.Context) ([]broker.ExternalPosition, error) {
	var resp openTradesResponse
	path := fmt.Sprintf("/v3/accounts/%s/openTrades", c.accountID)
	if err := c.do(ctx, "list open trades", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]broker.ExternalPosition, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		if t.Instrument != c.instrument {
			continue
		}
		units, err := parsePrice(t.CurrentUnits)
		if err != nil {
			return nil, fmt.Errorf("trade %s units: %w", t.ID, err)
		}
		entry, err := parsePrice(t.Price)
		if err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		opened, err := parseTime(t.OpenTime)
		if err != nil {
			return nil, err
		}

		ep := broker.ExternalPosition{
			ID:         t.ID,
			Symbol:     t.Instrument,
			Direction:  position.DirectionOf(units),
			EntryPrice: entry,
			Size:       abs(units),
			OpenTime:   opened,
		}
		if t.StopLossOrder != nil {
			ep.StopLoss = mustPrice(t.StopLossOrder.Price)
		}
		if t.TakeProfitOrder != nil {
			ep.TakeProfit = mustPrice(t.TakeProfitOrder.Price)
		}
		if t.ClientExtensions != nil {
			ep.Tag = t.ClientExtensions.Tag
		}
		out = append(out, ep)
	}
	return out, nil
}

type marketOrder struct {
	Type             string            `json:"type"`
	Instrument       string            `json:"instrument"`
	Units            string            `json:"units"`
	TimeInForce      string            `json:"timeInForce"`
	PositionFill     string            `json:"positionFill"`
	StopLossOnFill   *priceDetails     `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill *priceDetails     `json:"takeProfitOnFill,omitempty"`
	TradeClientExt   *clientExtensions `json:"tradeClientExtensions,omitempty"`
}

type orderResponse struct {
	OrderFillTransaction *struct {
		ID          string `json:"id"`
		Time        string `json:"time"`
		Price       string `json:"price"`
		TradeOpened *struct {
			TradeID string `json:"tradeID"`
			Units   string `json:"units"`
			Price   string `json:"price"`
		} `json:"tradeOpened"`
	} `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
}

// SubmitOrder places a fill-or-kill market order with stop and target attached.
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	const op = "submit order"
	if req.Direction == position.Flat || req.Size <= 0 {
		return broker.OrderResult{}, &broker.OrderError{Op: op, Code: "UNITS_INVALID", Err: broker.ErrRejected}
	}

	o := marketOrder{
		Type:         "MARKET",
		Instrument:   c.instrument,
		Units:        formatUnits(req.Size * float64(req.Direction)),
		TimeInForce:  "FOK",
		PositionFill: "DEFAULT",
	}
	if req.StopLoss != 0 {
		o.StopLossOnFill = &priceDetails{Price: c.formatPrice(req.StopLoss), TimeInForce: "GTC"}
	}
	if req.TakeProfit != 0 {
		o.TakeProfitOnFill = &priceDetails{Price: c.formatPrice(req.TakeProfit), TimeInForce: "GTC"}
	}
	if req.Tag != "" {
		o.TradeClientExt = &clientExtensions{Tag: req.Tag, Comment: req.Tag}
	}

	var resp orderResponse
	path := fmt.Sprintf("/v3/accounts/%s/orders", c.accountID)
	body := map[string]any{"order": o}
	if err := c.do(ctx, op, http.MethodPost, path, nil, body, &resp); err != nil {
		return broker.OrderResult{}, err
	}

	if resp.OrderCancelTransaction != nil {
		reason := resp.OrderCancelTransaction.Reason
		class := broker.ErrRejected
		if transientReasons[reason] {
			class = broker.ErrTransient
		}
		return broker.OrderResult{}, &broker.OrderError{Op: op, Code: reason, Err: class}
	}

	fill := resp.OrderFillTransaction
	if fill == nil || fill.TradeOpened == nil {
		return broker.OrderResult{}, &broker.OrderError{Op: op, Code: "NO_FILL", Err: broker.ErrRejected}
	}

	price, err := parsePrice(fill.TradeOpened.Price)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("%s: parse fill price: %w", op, err)
	}
	units, err := parsePrice(fill.TradeOpened.Units)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("%s: parse fill units: %w", op, err)
	}
	at, err := parseTime(fill.Time)
	if err != nil {
		return broker.OrderResult{}, err
	}

	c.log.Info("order filled",
		slog.String("trade_id", fill.TradeOpened.TradeID),
		slog.String("instrument", c.instrument),
		slog.Float64("units", units),
		slog.Float64("price", price),
	)

	return broker.OrderResult{
		ID:         fill.TradeOpened.TradeID,
		Symbol:     c.instrument,
		Direction:  position.DirectionOf(units),
		Size:       abs(units),
		Price:      price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Time:       at,
	}, nil
}

// ModifyPosition replaces the stop loss and take profit on an open trade.
// A zero take profit leaves the existing one untouched.
func (c *Client) ModifyPosition(ctx context.Context, id string, stopLoss, takeProfit float64) error {
	body := map[string]any{
		"stopLoss": priceDetails{Price: c.formatPrice(stopLoss), TimeInForce: "GTC"},
	}
	if takeProfit != 0 {
		body["takeProfit"] = priceDetails{Price: c.formatPrice(takeProfit), TimeInForce: "GTC"}
	}
	path := fmt.Sprintf("/v3/accounts/%s/trades/%s/orders", c.accountID, url.PathEscape(id))
	if err := c.do(ctx, "modify position", http.MethodPut, path, nil, body, nil); err != nil {
		return withID(err, id)
	}
	return nil
}

// ClosePosition closes the whole trade at market.
func (c *Client) ClosePosition(ctx context.Context, id string) error {
	path := fmt.Sprintf("/v3/accounts/%s/trades/%s/close", c.accountID, url.PathEscape(id))
	if err := c.do(ctx, "close position", http.MethodPut, path, nil, map[string]string{"units": "ALL"}, nil); err != nil {
		return withID(err, id)
	}
	return nil
}

func withID(err error, id string) error {
	if oe, ok := err.(*broker.OrderError); ok {
		oe.ID = id
	}
	return err
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
