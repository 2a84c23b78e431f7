package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
	"github.com/rustyeddy/autotrader/risk"
)

var (
	// ErrSkipped means the order was deliberately not sent.
	ErrSkipped = errors.New("order skipped")
	// ErrRiskRejected means a pre-trade check failed.
	ErrRiskRejected = errors.New("rejected by risk policy")
)

// Book is the part of the position ledger the executor needs.
type Book interface {
	Open(p position.Position) error
	HasOpen(d position.Direction) bool
	HasTag(tag string) bool
	Len() int
	History() []position.Position
}

// Order describes what a strategy wants filled. Distances are in price.
type Order struct {
	Direction    position.Direction
	StopDistance float64
	// TakeProfitDistance of 0 uses StopDistance times the executor's TP ratio.
	TakeProfitDistance float64
	RiskScale          float64
	Timeout            time.Duration
	Tag                string
}

// Executor sizes, checks and places orders for every strategy.
type Executor struct {
	venue    broker.OrderVenue
	ticks    market.TickSource
	accounts broker.AccountSource
	book     Book
	policy   risk.Policy
	meta     market.InstrumentMeta
	tpRatio  float64
	log      *slog.Logger
	now      func() time.Time
}

type ExecutorOption func(*Executor)

func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(x *Executor) {
		if l != nil {
			x.log = l
		}
	}
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(x *Executor) {
		if now != nil {
			x.now = now
		}
	}
}

// WithTPRatio sets the take profit distance as a multiple of the stop distance.
func WithTPRatio(r float64) ExecutorOption {
	return func(x *Executor) {
		if r > 0 {
			x.tpRatio = r
		}
	}
}

func NewExecutor(
	venue broker.OrderVenue,
	ticks market.TickSource,
	accounts broker.AccountSource,
	book Book,
	policy risk.Policy,
	meta market.InstrumentMeta,
	opts ...ExecutorOption,
) *Executor {
	x := &Executor{
		venue:    venue,
		ticks:    ticks,
		accounts: accounts,
		book:     book,
		policy:   policy,
		meta:     meta,
		tpRatio:  0.6,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// PipSize is the price value of one pip of the traded instrument.
func (x *Executor) PipSize() float64 { return x.meta.PipSize() }

// Holding reports whether a position tagged tag is open.
func (x *Executor) Holding(tag string) bool { return x.book.HasTag(tag) }

// Place sends o to the venue and records the fill in the book.
func (x *Executor) Place(ctx context.Context, o Order) (position.Position, error) {
	if o.Direction == position.Flat {
		return position.Position{}, fmt.Errorf("%w: flat direction", ErrSkipped)
	}
	if x.book.HasOpen(o.Direction) {
		return position.Position{}, fmt.Errorf("%w: %s position already open", ErrSkipped, o.Direction)
	}
	if o.StopDistance <= 0 {
		return position.Position{}, fmt.Errorf("%w: no stop distance", ErrSkipped)
	}

	tick, err := x.ticks.LatestTick(ctx)
	if err != nil {
		return position.Position{}, fmt.Errorf("price: %w", err)
	}
	acct, err := x.accounts.Account(ctx)
	if err != nil {
		return position.Position{}, fmt.Errorf("account: %w", err)
	}

	dir := float64(o.Direction)
	entry := tick.Entry(int(o.Direction))
	tpDist := o.TakeProfitDistance
	if tpDist <= 0 {
		tpDist = o.StopDistance * x.tpRatio
	}
	sl := entry - dir*o.StopDistance
	tp := entry + dir*tpDist

	rate, err := market.QuoteToAccountRate(x.meta.Name, acct.Currency, tick.Mid())
	if err != nil {
		return position.Position{}, err
	}

	scale := o.RiskScale
	if scale <= 0 {
		scale = 1
	}
	pip := x.meta.PipSize()
	units, err := risk.Size(acct.Balance, o.StopDistance/pip, x.policy.DefaultRiskPct*scale, pip*rate, x.policy.MinUnits, x.policy.MaxUnits)
	if err != nil {
		return position.Position{}, err
	}

	now := x.now()
	d := risk.CheckTrade(x.policy,
		risk.TradeIntent{Now: now, Instrument: x.meta.Name, Units: units, Entry: entry, Stop: sl, TakeProfit: tp},
		risk.AccountSnapshot{
			Balance:     acct.Balance,
			Equity:      acct.Equity,
			MarginUsed:  acct.MarginUsed,
			MarginAvail: acct.FreeMargin,
			OpenTrades:  x.book.Len(),
		},
		risk.PnLFrom(x.book.History(), now, rate),
		rate,
	)
	if !d.Allowed {
		codes := make([]string, len(d.Violations))
		for i, v := range d.Violations {
			codes[i] = v.Code
		}
		return position.Position{}, fmt.Errorf("%w: %s", ErrRiskRejected, strings.Join(codes, ","))
	}

	res, err := x.venue.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:     x.meta.Name,
		Direction:  o.Direction,
		Size:       units,
		StopLoss:   sl,
		TakeProfit: tp,
		Tag:        o.Tag,
	})
	if err != nil {
		return position.Position{}, err
	}

	entryTime := res.Time
	if entryTime.IsZero() {
		entryTime = now
	}
	p := position.Position{
		ID:           res.ID,
		Symbol:       x.meta.Name,
		Direction:    o.Direction,
		EntryPrice:   res.Price,
		StopLoss:     sl,
		TakeProfit:   tp,
		Size:         units,
		Point:        x.meta.Point(),
		Timeout:      o.Timeout,
		EntryTime:    entryTime,
		Tag:          o.Tag,
		CurrentPrice: res.Price,
	}
	if err := x.book.Open(p); err != nil {
		return p, err
	}

	x.log.Info("order placed",
		slog.String("id", p.ID),
		slog.String("tag", p.Tag),
		slog.String("direction", p.Direction.String()),
		slog.Float64("units", units),
		slog.Float64("entry", p.EntryPrice),
		slog.Float64("sl", sl),
		slog.Float64("tp", tp),
	)
	return p, nil
}
