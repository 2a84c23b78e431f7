package sim

// Op names a venue call that can be made to fail.
type Op string

const (
	OpSubmit    Op = "submit"
	OpModify    Op = "modify"
	OpClose     Op = "close"
	OpPositions Op = "positions"
	OpAccount   Op = "account"
	OpBars      Op = "bars"
	OpTick      Op = "tick"
)

type fault struct {
	err   error
	times int
}

// FailNext makes the next times calls of op return err.
func (e *Engine) FailNext(op Op, err error, times int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if times <= 0 {
		delete(e.faults, op)
		return
	}
	e.faults[op] = &fault{err: err, times: times}
}

func (e *Engine) faultLocked(op Op) error {
	f, ok := e.faults[op]
	if !ok {
		return nil
	}
	f.times--
	if f.times <= 0 {
		delete(e.faults, op)
	}
	return f.err
}
