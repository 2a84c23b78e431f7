package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/broker/sim"
	"github.com/rustyeddy/autotrader/events"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/ledger"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
	"github.com/rustyeddy/autotrader/risk"
	"github.com/rustyeddy/autotrader/scheduler"
	"github.com/rustyeddy/autotrader/strategy"
)

var t0 = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memJournal struct {
	mu     sync.Mutex
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (m *memJournal) RecordTrade(t journal.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memJournal) RecordEquity(e journal.EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	return nil
}

func (m *memJournal) Close() error { return nil }

type fixture struct {
	venue   *sim.Engine
	bus     *events.Bus
	ledger  *ledger.Ledger
	trader  *Trader
	journal *memJournal
	clock   *clock
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, balance float64, opts ...Option) *fixture {
	t.Helper()
	c := &clock{t: t0}
	log := quiet()

	v := sim.NewEngine(broker.Account{ID: "sim", Currency: "USD", Balance: balance}, "EUR_USD")
	v.SetClock(c.Now)
	require.NoError(t, v.UpdatePrice(market.Tick{Instrument: "EUR_USD", Bid: 1.10000, Ask: 1.10002, Time: t0}))

	bus := events.NewBus(log)
	mem := &memJournal{}
	journal.NewRecorder(mem, log).Attach(bus)

	l := ledger.NewLedger(v, bus, ledger.WithClock(c.Now), ledger.WithLogger(log))
	r := risk.NewEngine(risk.DefaultPolicy(), l, v, bus, risk.WithClock(c.Now), risk.WithLogger(log))
	store := market.NewStore(v, []market.Timeframe{market.M1}, market.WithStoreLogger(log))
	sched := scheduler.New(scheduler.WithClock(c.Now), scheduler.WithLogger(log))

	opts = append([]Option{WithJournal(mem), WithClock(c.Now), WithLogger(log)}, opts...)
	tr := New(v, store, l, r, sched, opts...)
	tr.Watch(bus)

	return &fixture{venue: v, bus: bus, ledger: l, trader: tr, journal: mem, clock: c}
}

func (f *fixture) openAtVenue(t *testing.T, dir position.Direction, tp float64) string {
	t.Helper()
	res, err := f.venue.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol:     "EUR_USD",
		Direction:  dir,
		Size:       10000,
		TakeProfit: tp,
	})
	require.NoError(t, err)
	return res.ID
}

func (f *fixture) price(t *testing.T, bid, ask float64) {
	t.Helper()
	require.NoError(t, f.venue.UpdatePrice(market.Tick{Instrument: "EUR_USD", Bid: bid, Ask: ask, Time: f.clock.Now()}))
}

func TestCycleAdoptsAndFinalizes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10000)
	id := f.openAtVenue(t, position.Long, 1.10100)

	require.NoError(t, f.trader.Cycle(context.Background()))

	ps := f.trader.Positions()
	require.Len(t, ps, 1)
	assert.Equal(t, id, ps[0].ID)
	assert.Equal(t, 1.10000, ps[0].CurrentPrice)
	assert.Equal(t, 10000.0, f.trader.Account().Balance)
	require.Len(t, f.journal.equity, 1)

	// take profit fires at the venue between cycles
	f.price(t, 1.10150, 1.10152)
	require.NoError(t, f.trader.Cycle(context.Background()))

	assert.Empty(t, f.trader.Positions())
	require.Len(t, f.journal.trades, 1)
	assert.Equal(t, id, f.journal.trades[0].TradeID)
	assert.Equal(t, position.ReasonClosedExternally, f.journal.trades[0].Reason)
	assert.Equal(t, 2, f.trader.Cycles())
}

func TestCycleTrailsStopAtVenue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10000)
	id := f.openAtVenue(t, position.Long, 0)

	f.price(t, 1.10300, 1.10302)
	require.NoError(t, f.trader.Cycle(context.Background()))

	tr, ok := f.venue.Trade(id)
	require.True(t, ok)
	assert.InDelta(t, 1.10120, tr.StopLoss, 1e-9)

	ps := f.trader.Positions()
	require.Len(t, ps, 1)
	assert.InDelta(t, 1.10120, ps[0].StopLoss, 1e-9)
}

func TestCycleSkipsFailedSteps(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10000)
	require.NoError(t, f.trader.Cycle(context.Background()))

	f.openAtVenue(t, position.Short, 0)
	f.venue.FailNext(sim.OpPositions, broker.ErrConnectivity, 1)
	f.venue.FailNext(sim.OpAccount, broker.ErrConnectivity, 1)

	err := f.trader.Cycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrConnectivity)
	assert.Contains(t, err.Error(), "reconcile skipped")
	assert.Zero(t, f.ledger.Len())
	assert.Equal(t, 10000.0, f.trader.Account().Balance)

	require.NoError(t, f.trader.Cycle(context.Background()))
	assert.Equal(t, 1, f.ledger.Len())
}

func TestCycleBreakerAtZeroBalance(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, WithHaltOnViolation(true))

	var mu sync.Mutex
	var codes []string
	f.bus.Subscribe(events.RiskViolation, func(e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		codes = append(codes, e.Violation.Code)
		return nil
	})

	require.NoError(t, f.trader.Cycle(context.Background()))
	assert.True(t, f.trader.Halted())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{risk.CodeBalanceFloor}, codes)
}

func TestCycleManagesWithoutAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10000, WithHaltOnViolation(true))
	id := f.openAtVenue(t, position.Long, 0)
	f.price(t, 1.10300, 1.10302)
	f.venue.FailNext(sim.OpAccount, broker.ErrConnectivity, 1)

	err := f.trader.Cycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrConnectivity)

	tr, ok := f.venue.Trade(id)
	require.True(t, ok)
	assert.InDelta(t, 1.10120, tr.StopLoss, 1e-9)
	assert.False(t, f.trader.Halted())
	assert.Empty(t, f.journal.equity)
	assert.Zero(t, f.trader.Account().Balance)

	require.NoError(t, f.trader.Cycle(context.Background()))
	assert.Equal(t, 10000.0, f.trader.Account().Balance)
	assert.Len(t, f.journal.equity, 1)
}

type countingStrategy struct {
	mu    sync.Mutex
	calls int
}

func (s *countingStrategy) Name() string { return "count" }

func (s *countingStrategy) Detect(context.Context) (strategy.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return strategy.Signal{}, nil
}

func (s *countingStrategy) Execute(context.Context, strategy.Signal) error { return nil }

func (s *countingStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestHaltOnViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		halt      bool
		wantCalls int
	}{
		{"halting", true, 0},
		{"not halting", false, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 90, WithHaltOnViolation(tt.halt))
			s := &countingStrategy{}
			require.NoError(t, f.trader.Schedule(s, time.Minute))

			require.NoError(t, f.trader.Cycle(context.Background()))
			assert.Equal(t, tt.halt, f.trader.Halted())

			f.clock.Advance(time.Minute)
			require.NoError(t, f.trader.Cycle(context.Background()))
			assert.Equal(t, tt.wantCalls, s.Calls())
		})
	}
}

func TestScheduleHourly(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10000)
	s := &countingStrategy{}
	require.NoError(t, f.trader.ScheduleHourly(s, 30))
	assert.ErrorIs(t, f.trader.Schedule(s, time.Minute), scheduler.ErrDuplicateJob)

	f.clock.Advance(29 * time.Minute)
	require.NoError(t, f.trader.Cycle(context.Background()))
	assert.Zero(t, s.Calls())

	f.clock.Advance(time.Minute)
	require.NoError(t, f.trader.Cycle(context.Background()))
	assert.Equal(t, 1, s.Calls())
}

func TestPositionsIsACopy(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10000)
	f.openAtVenue(t, position.Long, 0)
	require.NoError(t, f.trader.Cycle(context.Background()))

	ps := f.trader.Positions()
	ps[0].StopLoss = 1
	assert.Zero(t, f.trader.Positions()[0].StopLoss)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10000, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.trader.Run(ctx) }()

	require.Eventually(t, func() bool { return f.trader.Cycles() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
