package cli

import (
	"fmt"
	"log/slog"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/broker/oanda"
	"github.com/rustyeddy/autotrader/broker/sim"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/engine"
	"github.com/rustyeddy/autotrader/events"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/ledger"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/risk"
	"github.com/rustyeddy/autotrader/scheduler"
	"github.com/rustyeddy/autotrader/strategy"
)

// App is a fully wired trader.
type App struct {
	Config  *config.Config
	Venue   broker.Venue
	Store   *market.Store
	Ledger  *ledger.Ledger
	Bus     *events.Bus
	Journal journal.Journal
	Trader  *engine.Trader
}

// Build assembles the trader described by cfg. The caller closes the
// journal through App.Close.
func Build(cfg *config.Config, log *slog.Logger) (*App, error) {
	meta, err := market.LookupInstrument(cfg.Venue.Instrument)
	if err != nil {
		return nil, err
	}

	venue, err := buildVenue(cfg, meta, log)
	if err != nil {
		return nil, err
	}

	delay, err := cfg.Venue.Delay()
	if err != nil {
		return nil, err
	}
	maxDelay, err := cfg.Venue.MaxDelay()
	if err != nil {
		return nil, err
	}
	orders := broker.NewRetrying(venue,
		broker.WithAttempts(cfg.Venue.RetryAttempts),
		broker.WithDelay(delay),
		broker.WithBackoff(cfg.Venue.RetryFactor, maxDelay),
		broker.WithRetryLogger(log),
	)

	tfs, err := cfg.Market.ParsedTimeframes()
	if err != nil {
		return nil, err
	}
	storeOpts := []market.StoreOption{market.WithStoreLogger(log)}
	for name, n := range cfg.Market.Capacities {
		tf, err := market.ParseTimeframe(name)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, market.WithCapacity(tf, n))
	}
	store := market.NewStore(venue, tfs, storeOpts...)

	j, err := journal.Open(cfg.Journal.Type, cfg.Journal.Path)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(log)
	journal.NewRecorder(j, log).Attach(bus)

	policy := cfg.Policy()
	l := ledger.NewLedger(orders, bus, ledger.WithLogger(log), ledger.WithPoint(meta.Point()))
	re := risk.NewEngine(policy, l, orders, bus, risk.WithLogger(log))
	sched := scheduler.New(scheduler.WithLogger(log))

	interval, err := cfg.Engine.CycleInterval()
	if err != nil {
		_ = j.Close()
		return nil, err
	}
	tr := engine.New(venue, store, l, re, sched,
		engine.WithInterval(interval),
		engine.WithHaltOnViolation(cfg.Engine.HaltOnViolation),
		engine.WithJournal(j),
		engine.WithLogger(log),
	)
	tr.Watch(bus)

	exec := strategy.NewExecutor(orders, venue, venue, l, policy, meta, strategy.WithExecutorLogger(log))
	deps := strategy.Deps{Market: store, Ticks: venue, Executor: exec}
	if err := schedule(tr, cfg.Strategies, deps); err != nil {
		_ = j.Close()
		return nil, err
	}

	return &App{
		Config:  cfg,
		Venue:   venue,
		Store:   store,
		Ledger:  l,
		Bus:     bus,
		Journal: j,
		Trader:  tr,
	}, nil
}

func (a *App) Close() error {
	return a.Journal.Close()
}

func buildVenue(cfg *config.Config, meta market.InstrumentMeta, log *slog.Logger) (broker.Venue, error) {
	acct := broker.Account{
		ID:       cfg.Account.ID,
		Currency: cfg.Account.Currency,
		Balance:  cfg.Account.Balance,
	}

	switch cfg.Venue.Type {
	case "sim":
		e := sim.NewEngine(acct, meta.Name)
		err := e.UpdatePrice(market.Tick{Instrument: meta.Name, Bid: cfg.Venue.InitialBid, Ask: cfg.Venue.InitialAsk})
		if err != nil {
			return nil, fmt.Errorf("seed sim quotes: %w", err)
		}
		return e, nil

	case "paper", "oanda":
		base, err := oanda.BaseURL(cfg.Venue.Environment)
		if err != nil {
			return nil, err
		}
		c, err := oanda.NewClient(cfg.Venue.Token, cfg.Venue.AccountID, meta.Name, base == oanda.PracticeURL,
			oanda.WithBaseURL(base),
			oanda.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		if cfg.Venue.Type == "oanda" {
			return c, nil
		}
		return sim.NewPaper(sim.NewEngine(acct, meta.Name), c, c), nil
	}
	return nil, fmt.Errorf("unknown venue %q", cfg.Venue.Type)
}

func schedule(tr *engine.Trader, configs []config.StrategyConfig, deps strategy.Deps) error {
	for _, sc := range configs {
		if !sc.Enabled {
			continue
		}
		s, err := strategy.New(sc.Name, deps, strategy.Params{Threshold: sc.Threshold, StopPips: sc.StopPips})
		if err != nil {
			return err
		}
		if sc.AtMinute != nil {
			err = tr.ScheduleHourly(s, *sc.AtMinute)
		} else {
			d, perr := sc.Interval()
			if perr != nil {
				return perr
			}
			err = tr.Schedule(s, d)
		}
		if err != nil {
			return fmt.Errorf("schedule %s: %w", sc.Name, err)
		}
	}
	return nil
}
