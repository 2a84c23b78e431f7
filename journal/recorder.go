package journal

import (
	"log/slog"

	"github.com/rustyeddy/autotrader/events"
)

// Recorder writes every closed position it hears about to a journal.
type Recorder struct {
	j   Journal
	log *slog.Logger
}

func NewRecorder(j Journal, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{j: j, log: log}
}

// Attach subscribes the recorder to PositionClosed events on bus.
func (r *Recorder) Attach(bus *events.Bus) {
	bus.Subscribe(events.PositionClosed, r.Handle)
}

func (r *Recorder) Handle(e events.Event) error {
	if e.Kind != events.PositionClosed {
		return nil
	}
	rec := TradeFromPosition(e.Position)
	if err := r.j.RecordTrade(rec); err != nil {
		return err
	}
	r.log.Debug("trade journaled",
		slog.String("trade_id", rec.TradeID),
		slog.String("reason", rec.Reason),
		slog.Float64("realized_pl", rec.RealizedPL),
	)
	return nil
}
