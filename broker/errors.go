package broker

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/autotrader/market"
)

var (
	// ErrConnectivity: the venue could not be reached or did not answer.
	ErrConnectivity = errors.New("venue unreachable")
	// ErrTransient: requote or price moved; the same request may succeed shortly.
	ErrTransient = errors.New("transient venue rejection")
	// ErrRejected: the venue refused the request for good.
	ErrRejected = errors.New("rejected by venue")
	// ErrDataUnavailable: nothing to report this cycle.
	ErrDataUnavailable = market.ErrDataUnavailable
)

// OrderError carries the venue's own reason code alongside the class of failure.
type OrderError struct {
	Op   string
	ID   string
	Code string
	Err  error
}

func (e *OrderError) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
