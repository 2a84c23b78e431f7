package market

// Series is a fixed-capacity ring of candles in chronological order.
// Pushing onto a full series evicts the oldest candle.
type Series struct {
	tf    Timeframe
	buf   []Candle
	start int
	n     int
}

// NewSeries returns an empty series. A capacity below one is raised to one.
func NewSeries(tf Timeframe, capacity int) *Series {
	if capacity < 1 {
		capacity = 1
	}
	return &Series{tf: tf, buf: make([]Candle, capacity)}
}

func (s *Series) Timeframe() Timeframe { return s.tf }
func (s *Series) Cap() int             { return len(s.buf) }
func (s *Series) Len() int             { return s.n }

// Push appends c as the newest candle.
func (s *Series) Push(c Candle) {
	if s.n < len(s.buf) {
		s.buf[(s.start+s.n)%len(s.buf)] = c
		s.n++
		return
	}
	s.buf[s.start] = c
	s.start = (s.start + 1) % len(s.buf)
}

// At returns the i-th candle, 0 being the oldest.
func (s *Series) At(i int) Candle {
	if i < 0 || i >= s.n {
		panic("market: series index out of range")
	}
	return s.buf[(s.start+i)%len(s.buf)]
}

func (s *Series) Last() (Candle, bool) {
	if s.n == 0 {
		return Candle{}, false
	}
	return s.At(s.n - 1), true
}

// replaceLast overwrites the newest candle.
func (s *Series) replaceLast(c Candle) {
	if s.n == 0 {
		return
	}
	s.buf[(s.start+s.n-1)%len(s.buf)] = c
}

// Tail copies the newest n candles, oldest first. n <= 0 copies everything.
func (s *Series) Tail(n int) []Candle {
	if n <= 0 || n > s.n {
		n = s.n
	}
	out := make([]Candle, n)
	for i := 0; i < n; i++ {
		out[i] = s.At(s.n - n + i)
	}
	return out
}

func (s *Series) Candles() []Candle {
	return s.Tail(0)
}
