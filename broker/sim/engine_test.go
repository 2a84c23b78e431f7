package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, balance float64) *Engine {
	t.Helper()
	acct := broker.Account{
		ID:       "acct-1",
		Currency: "USD",
		Balance:  balance,
		Equity:   balance,
	}
	return NewEngine(acct, "EUR_USD")
}

func setPrice(t *testing.T, e *Engine, instr string, bid, ask float64, tm time.Time) {
	t.Helper()
	require.NoError(t, e.UpdatePrice(market.Tick{
		Instrument: instr,
		Bid:        bid,
		Ask:        ask,
		Time:       tm,
	}))
}

func openMarket(t *testing.T, e *Engine, instr string, units float64, sl, tp float64) broker.OrderResult {
	t.Helper()
	res, err := e.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol:     instr,
		Direction:  position.DirectionOf(units),
		Size:       abs(units),
		StopLoss:   sl,
		TakeProfit: tp,
	})
	require.NoError(t, err)
	return res
}

func TestEngineRevalueEURUSDLong(t *testing.T) {
	e := newEngine(t, 100000)

	setPrice(t, e, "EUR_USD", 1.1000, 1.1002, t0)
	res := openMarket(t, e, "EUR_USD", 100000, 0, 0)
	assert.Equal(t, 1.1002, res.Price, "longs fill at the ask")

	setPrice(t, e, "EUR_USD", 1.1010, 1.1012, t0.Add(time.Minute))

	acct, err := e.Account(context.Background())
	require.NoError(t, err)

	expectedPL := 100000 * (1.1010 - 1.1002)
	assert.InDelta(t, 100000, acct.Balance, 1e-6)
	assert.InDelta(t, 100000+expectedPL, acct.Equity, 1e-6)
}

func TestEngineRevalueUSDJPYLongWithConversion(t *testing.T) {
	e := newEngine(t, 100000)

	setPrice(t, e, "USD_JPY", 150.00, 150.02, t0)
	openMarket(t, e, "USD_JPY", 100000, 0, 0)
	setPrice(t, e, "USD_JPY", 150.22, 150.24, t0.Add(time.Minute))

	acct, err := e.Account(context.Background())
	require.NoError(t, err)

	plJPY := 100000 * (150.22 - 150.02)
	mid := (150.22 + 150.24) / 2
	assert.InDelta(t, 100000+plJPY/mid, acct.Equity, 1e-3)
}

type mockListener struct {
	closed map[string]string
}

func (m *mockListener) OnTradeClosed(tradeID, reason string) {
	if m.closed == nil {
		m.closed = map[string]string{}
	}
	m.closed[tradeID] = reason
}

func TestStopLossUsesCorrectSide(t *testing.T) {
	t1 := t0.Add(time.Minute)

	t.Run("long stop loss uses bid", func(t *testing.T) {
		e := newEngine(t, 100000)
		l := &mockListener{}
		e.SetTradeClosedListener(l)

		setPrice(t, e, "EUR_USD", 1.1000, 1.1002, t0)
		res := openMarket(t, e, "EUR_USD", 100000, 1.0990, 0)
		setPrice(t, e, "EUR_USD", 1.0990, 1.0992, t1)

		tr, ok := e.Trade(res.ID)
		require.True(t, ok)
		assert.False(t, tr.Open)
		assert.Equal(t, ReasonStopLoss, l.closed[res.ID])

		acct, _ := e.Account(context.Background())
		assert.InDelta(t, 100000+100000*(1.0990-1.1002), acct.Balance, 1e-6)
		assert.InDelta(t, acct.Balance, acct.Equity, 1e-6)
	})

	t.Run("short stop loss uses ask", func(t *testing.T) {
		e := newEngine(t, 100000)
		setPrice(t, e, "EUR_USD", 1.1000, 1.1002, t0)
		res := openMarket(t, e, "EUR_USD", -100000, 1.1012, 0)
		setPrice(t, e, "EUR_USD", 1.1010, 1.1012, t1)

		tr, _ := e.Trade(res.ID)
		assert.False(t, tr.Open)
		acct, _ := e.Account(context.Background())
		assert.InDelta(t, 100000-100000*(1.1012-1.1000), acct.Balance, 1e-6)
	})

	t.Run("take profit", func(t *testing.T) {
		e := newEngine(t, 100000)
		l := &mockListener{}
		e.SetTradeClosedListener(l)
		setPrice(t, e, "EUR_USD", 1.0850, 1.0852, t0)
		res := openMarket(t, e, "EUR_USD", 10000, 0, 1.0900)
		setPrice(t, e, "EUR_USD", 1.0901, 1.0903, t1)
		assert.Equal(t, ReasonTakeProfit, l.closed[res.ID])
	})
}

func TestForcedLiquidationWorstTradeFirst(t *testing.T) {
	e := newEngine(t, 1000)
	l := &mockListener{}
	e.SetTradeClosedListener(l)

	t1 := t0.Add(time.Minute)
	setPrice(t, e, "EUR_USD", 1.1000, 1.1002, t0)
	setPrice(t, e, "USD_JPY", 150.00, 150.02, t0)

	eur := openMarket(t, e, "EUR_USD", 100000, 0, 0)
	openMarket(t, e, "USD_JPY", 100000, 0, 0)

	setPrice(t, e, "EUR_USD", 1.0500, 1.0502, t1)
	setPrice(t, e, "USD_JPY", 149.98, 150.00, t1)

	acct, err := e.Account(context.Background())
	require.NoError(t, err)

	tr, _ := e.Trade(eur.ID)
	assert.False(t, tr.Open, "worst trade closes first")
	assert.Equal(t, ReasonLiquidation, l.closed[eur.ID])
	assert.Less(t, acct.Balance, 1000.0)
	if acct.MarginUsed > 0 {
		assert.GreaterOrEqual(t, acct.Equity, acct.MarginUsed)
	}
}

func TestEngineClientCloseAndModify(t *testing.T) {
	e := newEngine(t, 100000)
	l := &mockListener{}
	e.SetTradeClosedListener(l)
	ctx := context.Background()

	setPrice(t, e, "EUR_USD", 1.1000, 1.1002, t0)
	res := openMarket(t, e, "EUR_USD", -1000, 0, 0)

	require.NoError(t, e.ModifyPosition(ctx, res.ID, 1.1050, 1.0900))
	open, err := e.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, position.Short, open[0].Direction)
	assert.Equal(t, 1000.0, open[0].Size)
	assert.Equal(t, 1.1050, open[0].StopLoss)
	assert.Equal(t, 1.1002, open[0].CurrentPrice, "shorts mark at the ask")

	require.NoError(t, e.ClosePosition(ctx, res.ID))
	assert.Empty(t, l.closed, "client closes are not reported to the listener")

	tr, _ := e.Trade(res.ID)
	assert.Equal(t, ReasonClientClose, tr.Reason)

	err = e.ClosePosition(ctx, res.ID)
	assert.ErrorIs(t, err, ErrTradeAlreadyClosed)
	assert.ErrorIs(t, err, broker.ErrRejected)

	err = e.ModifyPosition(ctx, "nope", 1, 2)
	assert.ErrorIs(t, err, ErrTradeNotFound)
	assert.ErrorIs(t, err, broker.ErrRejected)
}

func TestEngineSubmitRejections(t *testing.T) {
	e := newEngine(t, 100000)
	ctx := context.Background()

	_, err := e.SubmitOrder(ctx, broker.OrderRequest{Symbol: "EUR_USD", Direction: position.Long, Size: 1})
	assert.ErrorIs(t, err, broker.ErrRejected, "no price yet")

	setPrice(t, e, "EUR_USD", 1.1000, 1.1002, t0)
	_, err = e.SubmitOrder(ctx, broker.OrderRequest{Symbol: "EUR_USD", Direction: position.Flat, Size: 1})
	assert.ErrorIs(t, err, broker.ErrRejected)
	_, err = e.SubmitOrder(ctx, broker.OrderRequest{Symbol: "EUR_USD", Direction: position.Long})
	assert.ErrorIs(t, err, broker.ErrRejected)
}

func TestEngineFaultInjection(t *testing.T) {
	e := newEngine(t, 100000)
	ctx := context.Background()
	setPrice(t, e, "EUR_USD", 1.1000, 1.1002, t0)

	requote := &broker.OrderError{Op: "submit order", Code: "REQUOTE", Err: broker.ErrTransient}
	e.FailNext(OpSubmit, requote, 2)

	_, err := e.SubmitOrder(ctx, broker.OrderRequest{Direction: position.Long, Size: 1})
	assert.True(t, broker.IsTransient(err))
	_, err = e.SubmitOrder(ctx, broker.OrderRequest{Direction: position.Long, Size: 1})
	assert.True(t, broker.IsTransient(err))
	res, err := e.SubmitOrder(ctx, broker.OrderRequest{Direction: position.Long, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", res.Symbol)

	e.FailNext(OpPositions, broker.ErrConnectivity, 1)
	_, err = e.OpenPositions(ctx)
	assert.ErrorIs(t, err, broker.ErrConnectivity)
	_, err = e.OpenPositions(ctx)
	assert.NoError(t, err)

	e.FailNext(OpClose, errors.New("x"), 1)
	e.FailNext(OpClose, nil, 0)
	assert.NoError(t, e.ClosePosition(ctx, res.ID))
}

func TestEngineBarsAndTicks(t *testing.T) {
	e := newEngine(t, 100000)
	ctx := context.Background()

	_, err := e.LatestTick(ctx)
	assert.ErrorIs(t, err, market.ErrDataUnavailable)

	e.PushBar(market.M1, market.Bar{Time: 0, Close: 1})
	e.PushBar(market.M1, market.Bar{Time: 60, Close: 2})
	e.PushBar(market.M1, market.Bar{Time: 60, Close: 3})

	bars, err := e.RecentBars(ctx, market.M1, 1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 3.0, bars[0].Close)

	all, _ := e.RecentBars(ctx, market.M1, 0)
	assert.Len(t, all, 2)
}
