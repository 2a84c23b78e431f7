// Package sim is an in-process execution venue: market fills at the touch,
// stop loss and take profit triggers, FX-correct P/L and margin liquidation.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/pkg/id"
	"github.com/rustyeddy/autotrader/position"
)

var (
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeAlreadyClosed = errors.New("trade already closed")
)

// Close reasons set by the engine itself.
const (
	ReasonStopLoss    = "StopLoss"
	ReasonTakeProfit  = "TakeProfit"
	ReasonLiquidation = "LIQUIDATION"
	ReasonClientClose = "ClientClose"
)

// TradeClosedListener hears about closes the engine decided on its own
// (stop loss, take profit, liquidation), not client requested closes.
type TradeClosedListener interface {
	OnTradeClosed(tradeID string, reason string)
}

type Engine struct {
	mu         sync.Mutex
	acct       broker.Account
	instrument string
	ticks      *market.TickStore
	bars       map[market.Timeframe][]market.Bar
	trades     map[string]*Trade
	faults     map[Op]*fault
	listener   TradeClosedListener
	now        func() time.Time
}

// NewEngine creates a venue whose default instrument is instrument.
func NewEngine(acct broker.Account, instrument string) *Engine {
	if acct.Equity == 0 {
		acct.Equity = acct.Balance
	}
	acct.FreeMargin = acct.Equity
	return &Engine{
		acct:       acct,
		instrument: market.NormalizeInstrument(instrument),
		ticks:      market.NewTickStore(),
		bars:       make(map[market.Timeframe][]market.Bar),
		trades:     make(map[string]*Trade),
		faults:     make(map[Op]*fault),
		now:        time.Now,
	}
}

func (e *Engine) SetTradeClosedListener(l TradeClosedListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// SetClock replaces the wall clock used when a tick carries no time.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *Engine) Instrument() string { return e.instrument }

func (e *Engine) Account(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.faultLocked(OpAccount); err != nil {
		return broker.Account{}, err
	}
	return e.acct, nil
}

// PushBar appends b to tf, replacing the newest bar when it has the same time.
func (e *Engine) PushBar(tf market.Timeframe, b market.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bs := e.bars[tf]
	if n := len(bs); n > 0 && bs[n-1].Time == b.Time {
		bs[n-1] = b
		return
	}
	e.bars[tf] = append(bs, b)
}

func (e *Engine) RecentBars(ctx context.Context, tf market.Timeframe, count int) ([]market.Bar, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.faultLocked(OpBars); err != nil {
		return nil, err
	}
	bs := e.bars[tf]
	if count > 0 && count < len(bs) {
		bs = bs[len(bs)-count:]
	}
	out := make([]market.Bar, len(bs))
	copy(out, bs)
	return out, nil
}

func (e *Engine) LatestTick(ctx context.Context) (market.Tick, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.faultLocked(OpTick); err != nil {
		return market.Tick{}, err
	}
	return e.ticks.Get(e.instrument)
}

func (e *Engine) OpenPositions(ctx context.Context) ([]broker.ExternalPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.faultLocked(OpPositions); err != nil {
		return nil, err
	}

	out := make([]broker.ExternalPosition, 0, len(e.trades))
	for _, t := range e.trades {
		if !t.Open {
			continue
		}
		ep := broker.ExternalPosition{
			ID:         t.ID,
			Symbol:     t.Instrument,
			Direction:  t.Direction(),
			EntryPrice: t.EntryPrice,
			StopLoss:   t.StopLoss,
			TakeProfit: t.TakeProfit,
			Size:       t.Size(),
			OpenTime:   t.OpenTime,
			Tag:        t.Tag,
		}
		if p, err := e.ticks.Get(t.Instrument); err == nil {
			ep.CurrentPrice = p.Exit(int(t.Direction()))
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.faultLocked(OpSubmit); err != nil {
		return broker.OrderResult{}, err
	}

	instr := market.NormalizeInstrument(req.Symbol)
	if instr == "" {
		instr = e.instrument
	}
	if req.Direction == position.Flat || req.Size <= 0 {
		return broker.OrderResult{}, &broker.OrderError{Op: "submit order", Code: "UNITS_INVALID", Err: broker.ErrRejected}
	}
	p, err := e.ticks.Get(instr)
	if err != nil {
		return broker.OrderResult{}, &broker.OrderError{Op: "submit order", Code: "PRICE_UNAVAILABLE", Err: broker.ErrRejected}
	}

	fillPrice := p.Entry(int(req.Direction))
	openTime := p.Time
	if openTime.IsZero() {
		openTime = e.now()
	}

	trade := &Trade{
		ID:         id.At(openTime),
		Instrument: instr,
		Units:      req.Size * float64(req.Direction),
		EntryPrice: fillPrice,
		OpenTime:   openTime,
		Tag:        req.Tag,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Open:       true,
	}
	e.trades[trade.ID] = trade

	if err := e.revalueLocked(); err != nil {
		return broker.OrderResult{}, err
	}
	if err := e.recomputeMarginLocked(); err != nil {
		return broker.OrderResult{}, err
	}

	return broker.OrderResult{
		ID:         trade.ID,
		Symbol:     instr,
		Direction:  req.Direction,
		Size:       req.Size,
		Price:      fillPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Time:       openTime,
	}, nil
}

func (e *Engine) ModifyPosition(ctx context.Context, tradeID string, stopLoss, takeProfit float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.faultLocked(OpModify); err != nil {
		return err
	}
	t, err := e.openTradeLocked("modify position", tradeID)
	if err != nil {
		return err
	}
	t.StopLoss = stopLoss
	t.TakeProfit = takeProfit
	return nil
}

// ClosePosition closes an open trade at the current market price.
// Longs close on BID, shorts close on ASK.
func (e *Engine) ClosePosition(ctx context.Context, tradeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.faultLocked(OpClose); err != nil {
		return err
	}
	t, err := e.openTradeLocked("close position", tradeID)
	if err != nil {
		return err
	}

	p, err := e.ticks.Get(t.Instrument)
	if err != nil {
		return fmt.Errorf("close position: no price for %q: %w", t.Instrument, err)
	}

	closeTime := p.Time
	if closeTime.IsZero() {
		closeTime = e.now()
	}
	if err := e.closeTradeLocked(t, p.Exit(int(t.Direction())), closeTime, ReasonClientClose); err != nil {
		return err
	}

	if err := e.revalueLocked(); err != nil {
		return err
	}
	if err := e.recomputeMarginLocked(); err != nil {
		return err
	}
	return e.enforceMarginLocked()
}

func (e *Engine) openTradeLocked(op, tradeID string) (*Trade, error) {
	t, ok := e.trades[tradeID]
	if !ok {
		return nil, &broker.OrderError{Op: op, ID: tradeID, Code: "TRADE_DOESNT_EXIST",
			Err: fmt.Errorf("%w: %w", ErrTradeNotFound, broker.ErrRejected)}
	}
	if !t.Open {
		return nil, &broker.OrderError{Op: op, ID: tradeID, Code: "TRADE_CLOSED",
			Err: fmt.Errorf("%w: %w", ErrTradeAlreadyClosed, broker.ErrRejected)}
	}
	return t, nil
}

// Trade returns a copy of a trade, open or closed.
func (e *Engine) Trade(tradeID string) (Trade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[tradeID]
	if !ok {
		return Trade{}, false
	}
	return *t, true
}

// UpdatePrice records a new tick, fires stops and targets, then revalues
// the account and liquidates while equity is below margin used.
func (e *Engine) UpdatePrice(p market.Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Instrument == "" {
		p.Instrument = e.instrument
	}
	if p.Time.IsZero() {
		p.Time = e.now()
	}
	e.ticks.Set(p)

	for _, t := range e.trades {
		if !t.Open || t.Instrument != p.Instrument {
			continue
		}

		mark := p.Exit(int(t.Direction()))

		reason := ""
		switch {
		case t.triggerStopLoss(mark):
			reason = ReasonStopLoss
		case t.triggerTakeProfit(mark):
			reason = ReasonTakeProfit
		}
		if reason != "" {
			if err := e.closeTradeLocked(t, mark, p.Time, reason); err != nil {
				return err
			}
		}
	}

	if err := e.revalueLocked(); err != nil {
		return err
	}
	if err := e.recomputeMarginLocked(); err != nil {
		return err
	}
	return e.enforceMarginLocked()
}

func (e *Engine) rateLocked(instrument string) (float64, error) {
	var mid float64
	if p, err := e.ticks.Get(instrument); err == nil {
		mid = p.Mid()
	}
	return market.QuoteToAccountRate(instrument, e.acct.Currency, mid)
}

func (e *Engine) closeTradeLocked(t *Trade, price float64, at time.Time, reason string) error {
	rate, err := e.rateLocked(t.Instrument)
	if err != nil {
		return err
	}

	t.Open = false
	t.ClosePrice = price
	t.CloseTime = at
	t.Reason = reason
	t.RealizedPL = t.UnrealizedPL(price, rate)
	e.acct.Balance += t.RealizedPL

	if e.listener != nil && reason != ReasonClientClose {
		e.listener.OnTradeClosed(t.ID, reason)
	}
	return nil
}

func (e *Engine) revalueLocked() error {
	equity := e.acct.Balance

	for _, t := range e.trades {
		if !t.Open {
			continue
		}

		p, err := e.ticks.Get(t.Instrument)
		if err != nil {
			return err
		}
		rate, err := e.rateLocked(t.Instrument)
		if err != nil {
			return err
		}
		equity += t.UnrealizedPL(p.Exit(int(t.Direction())), rate)
	}

	e.acct.Equity = equity
	return nil
}

func (e *Engine) recomputeMarginLocked() error {
	var used float64

	for _, t := range e.trades {
		if !t.Open {
			continue
		}

		p, err := e.ticks.Get(t.Instrument)
		if err != nil {
			return err
		}
		rate, err := e.rateLocked(t.Instrument)
		if err != nil {
			return err
		}

		// margin uses mid
		used += TradeMargin(t.Units, p.Mid(), t.Instrument, rate)
	}

	e.acct.MarginUsed = used
	e.acct.FreeMargin = e.acct.Equity - used

	if used > 0 {
		e.acct.MarginLevel = e.acct.Equity / used
	} else {
		e.acct.MarginLevel = 0
	}

	return nil
}

func (e *Engine) enforceMarginLocked() error {
	for {
		if e.acct.MarginUsed <= 0 {
			return nil
		}
		if e.acct.Equity >= e.acct.MarginUsed {
			return nil
		}

		// Find worst open trade
		var worst *Trade
		var worstPL float64
		var worstMark float64
		var worstTime time.Time

		for _, t := range e.trades {
			if !t.Open {
				continue
			}
			p, _ := e.ticks.Get(t.Instrument)
			mark := p.Exit(int(t.Direction()))
			rate, _ := e.rateLocked(t.Instrument)

			pl := t.UnrealizedPL(mark, rate)
			if worst == nil || pl < worstPL {
				worst, worstPL, worstMark, worstTime = t, pl, mark, p.Time
			}
		}

		if worst == nil {
			return nil
		}

		if err := e.closeTradeLocked(worst, worstMark, worstTime, ReasonLiquidation); err != nil {
			return err
		}
		if err := e.revalueLocked(); err != nil {
			return err
		}
		if err := e.recomputeMarginLocked(); err != nil {
			return err
		}
	}
}
