// Package scheduler runs named jobs at fixed intervals from inside the
// trading loop. Nothing runs on its own goroutine: the loop calls
// RunPending once per cycle and every due job runs to completion there.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

var ErrDuplicateJob = errors.New("job already scheduled")

type Job func(ctx context.Context) error

type entry struct {
	name     string
	next     time.Time
	interval time.Duration
	until    time.Time
	fn       Job
	index    int
}

// queue is a min-heap on next fire time, ties broken by name.
type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if !q[i].next.Equal(q[j].next) {
		return q[i].next.Before(q[j].next)
	}
	return q[i].name < q[j].name
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

type Scheduler struct {
	q      queue
	byName map[string]*entry
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		byName: make(map[string]*entry),
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// JobOption limits a job's lifetime.
type JobOption func(*entry)

// Until drops the job the first time it comes due at or after deadline.
func Until(deadline time.Time) JobOption {
	return func(e *entry) { e.until = deadline }
}

// Every runs fn every interval, first one interval from now.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job, opts ...JobOption) error {
	return s.At(name, s.now().Add(interval), interval, fn, opts...)
}

// At runs fn first at first and then every interval.
func (s *Scheduler) At(name string, first time.Time, interval time.Duration, fn Job, opts ...JobOption) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("job %s: %w", name, ErrDuplicateJob)
	}
	e := &entry{name: name, next: first, interval: interval, fn: fn}
	for _, o := range opts {
		o(e)
	}
	heap.Push(&s.q, e)
	s.byName[name] = e
	s.log.Debug("job scheduled", slog.String("job", name), slog.Time("next", first), slog.Duration("every", interval))
	return nil
}

// Cancel removes a job. It reports whether the job existed. A job may
// cancel itself or another due job from inside RunPending.
func (s *Scheduler) Cancel(name string) bool {
	e, ok := s.byName[name]
	if !ok {
		return false
	}
	// Popped entries are owned by RunPending, which drops them once they
	// are no longer registered.
	if e.index >= 0 {
		heap.Remove(&s.q, e.index)
	}
	delete(s.byName, name)
	return true
}

func (s *Scheduler) registered(e *entry) bool {
	return s.byName[e.name] == e
}

// RunPending runs every job due at now, oldest due first, and reschedules
// it on its interval grid past now. Missed fires are not replayed. Job
// errors and panics are logged; it returns the number of jobs run.
func (s *Scheduler) RunPending(ctx context.Context, now time.Time) int {
	var due []*entry
	for s.q.Len() > 0 && !s.q[0].next.After(now) {
		due = append(due, heap.Pop(&s.q).(*entry))
	}

	ran := 0
	for _, e := range due {
		if !s.registered(e) {
			continue
		}
		if !e.until.IsZero() && !now.Before(e.until) {
			delete(s.byName, e.name)
			s.log.Info("job expired", slog.String("job", e.name))
			continue
		}
		if ctx.Err() == nil {
			s.run(ctx, e)
			ran++
		}
		if !s.registered(e) {
			continue
		}
		for !e.next.After(now) {
			e.next = e.next.Add(e.interval)
		}
		heap.Push(&s.q, e)
	}
	return ran
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", slog.String("job", e.name), slog.Any("panic", r))
		}
	}()
	if err := e.fn(ctx); err != nil {
		s.log.Warn("job failed", slog.String("job", e.name), slog.Any("err", err))
	}
}

func (s *Scheduler) Len() int { return s.q.Len() }

// Next returns the earliest scheduled fire time.
func (s *Scheduler) Next() (time.Time, bool) {
	if s.q.Len() == 0 {
		return time.Time{}, false
	}
	return s.q[0].next, true
}

// Names lists scheduled jobs alphabetically.
func (s *Scheduler) Names() []string {
	out := make([]string, 0, len(s.byName))
	for n := range s.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NextAtMinute returns the first time strictly after now whose minute within
// the hour is minute.
func NextAtMinute(now time.Time, minute int) time.Time {
	minute = ((minute % 60) + 60) % 60
	t := now.Truncate(time.Hour).Add(time.Duration(minute) * time.Minute)
	if !t.After(now) {
		t = t.Add(time.Hour)
	}
	return t
}
