package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrDataUnavailable means the upstream source had nothing to offer this time.
// Callers treat it as "skip", never as a failure.
var ErrDataUnavailable = errors.New("data unavailable")

// BarSource delivers historical and in-progress bars, oldest first.
type BarSource interface {
	RecentBars(ctx context.Context, tf Timeframe, count int) ([]Bar, error)
}

// Outcome classifies what a Refresh did to a series.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeInitialized
	OutcomeMerged
	OutcomeAppended
	OutcomeGapFilled
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInitialized:
		return "initialized"
	case OutcomeMerged:
		return "merged"
	case OutcomeAppended:
		return "appended"
	case OutcomeGapFilled:
		return "gap-filled"
	case OutcomeStale:
		return "stale"
	default:
		return "none"
	}
}

// gapFactor is how many periods may elapse before the space between two
// candles counts as missing data.
const gapFactor = 1.5

// Store keeps one Series per configured timeframe and keeps them current
// against a BarSource. It is not safe for concurrent use; the trading loop
// is its only writer.
type Store struct {
	src        BarSource
	timeframes []Timeframe
	series     map[Timeframe]*Series
	log        *slog.Logger
}

type StoreOption func(*Store)

func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCapacity overrides the rolling window size for tf.
func WithCapacity(tf Timeframe, n int) StoreOption {
	return func(s *Store) {
		if _, ok := s.series[tf]; ok {
			s.series[tf] = NewSeries(tf, n)
		}
	}
}

// NewStore creates a store for timeframes, refreshed in the given order.
// Unknown timeframes are dropped.
func NewStore(src BarSource, timeframes []Timeframe, opts ...StoreOption) *Store {
	s := &Store{
		src:    src,
		series: make(map[Timeframe]*Series),
		log:    slog.Default(),
	}
	for _, tf := range timeframes {
		if !tf.Valid() {
			continue
		}
		if _, dup := s.series[tf]; dup {
			continue
		}
		s.timeframes = append(s.timeframes, tf)
		s.series[tf] = NewSeries(tf, tf.DefaultCapacity())
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Timeframes() []Timeframe {
	out := make([]Timeframe, len(s.timeframes))
	copy(out, s.timeframes)
	return out
}

// Series exposes the underlying series for tf, or nil.
func (s *Store) Series(tf Timeframe) *Series {
	return s.series[tf]
}

func (s *Store) lookup(tf Timeframe) (*Series, error) {
	ser, ok := s.series[tf]
	if !ok {
		return nil, fmt.Errorf("timeframe %s not configured", tf)
	}
	return ser, nil
}

// Initialize bulk-loads up to the series capacity. It does nothing when the
// series already holds data or the source has none.
func (s *Store) Initialize(ctx context.Context, tf Timeframe) error {
	ser, err := s.lookup(tf)
	if err != nil {
		return err
	}
	if ser.Len() > 0 {
		return nil
	}

	start := time.Now()
	bars, err := s.src.RecentBars(ctx, tf, ser.Cap())
	if err != nil {
		if errors.Is(err, ErrDataUnavailable) {
			return nil
		}
		return fmt.Errorf("initialize %s: %w", tf, err)
	}
	if len(bars) == 0 {
		return nil
	}

	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	for _, b := range sorted {
		last, ok := ser.Last()
		switch {
		case !ok:
			ser.Push(CandleFromBar(b, tf))
		case b.Time == last.Time:
			last.merge(b)
			ser.replaceLast(last)
		case b.Time > last.Time:
			last.seal()
			ser.replaceLast(last)
			ser.Push(CandleFromBar(b, tf))
		}
	}

	s.log.Info("candles initialized",
		slog.String("timeframe", tf.String()),
		slog.Int("count", ser.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// InitializeAll initializes every configured timeframe and reports all failures.
func (s *Store) InitializeAll(ctx context.Context) error {
	var errs []error
	for _, tf := range s.timeframes {
		if err := s.Initialize(ctx, tf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh pulls the most recent bar for tf and folds it into the series.
// A failed or empty fetch leaves the series untouched and is not an error.
func (s *Store) Refresh(ctx context.Context, tf Timeframe) (Outcome, error) {
	ser, err := s.lookup(tf)
	if err != nil {
		return OutcomeNone, err
	}

	last, ok := ser.Last()
	if !ok {
		if err := s.Initialize(ctx, tf); err != nil {
			s.log.Warn("initialize failed", slog.String("timeframe", tf.String()), slog.Any("err", err))
			return OutcomeNone, nil
		}
		if ser.Len() == 0 {
			return OutcomeNone, nil
		}
		return OutcomeInitialized, nil
	}

	bars, err := s.src.RecentBars(ctx, tf, 1)
	if err != nil {
		if !errors.Is(err, ErrDataUnavailable) {
			s.log.Warn("bar fetch failed", slog.String("timeframe", tf.String()), slog.Any("err", err))
		}
		return OutcomeNone, nil
	}
	if len(bars) == 0 {
		return OutcomeNone, nil
	}
	return s.apply(ser, last, bars[len(bars)-1]), nil
}

func (s *Store) apply(ser *Series, last Candle, b Bar) Outcome {
	tf := ser.Timeframe()
	period := tf.Seconds()

	if b.Time == last.Time {
		last.merge(b)
		ser.replaceLast(last)
		return OutcomeMerged
	}
	if b.Time < last.Time {
		s.log.Warn("stale bar ignored",
			slog.String("timeframe", tf.String()),
			slog.Int64("bar_time", b.Time),
			slog.Int64("last_time", last.Time),
		)
		return OutcomeStale
	}

	last.seal()
	ser.replaceLast(last)

	gap := b.Time - last.Time
	if float64(gap) <= gapFactor*float64(period) {
		ser.Push(CandleFromBar(b, tf))
		return OutcomeAppended
	}

	missing := gap/period - 1
	for i := int64(1); i <= missing; i++ {
		ser.Push(flatCandle(last.Time+i*period, last.Close, tf))
	}
	ser.Push(CandleFromBar(b, tf))
	s.log.Info("gap filled",
		slog.String("timeframe", tf.String()),
		slog.Int64("missing", missing),
		slog.Int64("from", last.Time),
		slog.Int64("to", b.Time),
	)
	return OutcomeGapFilled
}

// RefreshAll refreshes every timeframe in configured order.
func (s *Store) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, tf := range s.timeframes {
		if _, err := s.Refresh(ctx, tf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Candles copies the newest count candles for tf, oldest first.
// count <= 0 returns the whole series.
func (s *Store) Candles(tf Timeframe, count int) []Candle {
	ser, ok := s.series[tf]
	if !ok {
		return nil
	}
	return ser.Tail(count)
}

func (s *Store) Last(tf Timeframe) (Candle, bool) {
	ser, ok := s.series[tf]
	if !ok {
		return Candle{}, false
	}
	return ser.Last()
}
