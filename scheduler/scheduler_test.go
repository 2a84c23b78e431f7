package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 4, 2, 9, 12, 0, 0, time.UTC)

func newScheduler() *Scheduler {
	return New(WithClock(func() time.Time { return t0 }))
}

func counter(n *int) Job {
	return func(context.Context) error {
		*n++
		return nil
	}
}

func TestEveryRunsOnInterval(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var n int
	require.NoError(t, s.Every("tick", 10*time.Second, counter(&n)))

	assert.Zero(t, s.RunPending(context.Background(), t0.Add(9*time.Second)))
	assert.Equal(t, 1, s.RunPending(context.Background(), t0.Add(10*time.Second)))
	assert.Equal(t, 1, s.RunPending(context.Background(), t0.Add(25*time.Second)))
	assert.Equal(t, 2, n)

	next, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, t0.Add(30*time.Second), next)
}

func TestMissedFiresAreNotReplayed(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var n int
	require.NoError(t, s.Every("tick", time.Second, counter(&n)))

	s.RunPending(context.Background(), t0.Add(time.Minute))
	assert.Equal(t, 1, n)
	next, _ := s.Next()
	assert.Equal(t, t0.Add(61*time.Second), next)
}

func TestOrderAndCancel(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var order []string
	add := func(name string, after time.Duration) {
		require.NoError(t, s.At(name, t0.Add(after), time.Hour, func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}
	add("c", 3*time.Second)
	add("a", 1*time.Second)
	add("b", 2*time.Second)
	add("gone", 1*time.Second)

	assert.True(t, s.Cancel("gone"))
	assert.False(t, s.Cancel("gone"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Names())

	s.RunPending(context.Background(), t0.Add(5*time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 3, s.Len())
}

func TestCancelFromInsideJob(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var self, victim int
	require.NoError(t, s.Every("a", time.Second, func(context.Context) error {
		self++
		s.Cancel("a")
		s.Cancel("b")
		return nil
	}))
	require.NoError(t, s.Every("b", time.Second, counter(&victim)))

	assert.Equal(t, 1, s.RunPending(context.Background(), t0.Add(time.Second)))
	assert.Zero(t, s.RunPending(context.Background(), t0.Add(2*time.Second)))
	assert.Equal(t, 1, self)
	assert.Zero(t, victim)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Names())
}

func TestRescheduleFromInsideJob(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var first, second int
	require.NoError(t, s.Every("job", time.Second, func(context.Context) error {
		first++
		s.Cancel("job")
		return s.At("job", t0.Add(time.Minute), time.Minute, counter(&second))
	}))

	s.RunPending(context.Background(), t0.Add(time.Second))
	assert.Equal(t, 1, s.Len())
	next, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), next)

	s.RunPending(context.Background(), t0.Add(time.Minute))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestDuplicateAndInvalid(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var n int
	require.NoError(t, s.Every("x", time.Second, counter(&n)))
	assert.ErrorIs(t, s.Every("x", time.Second, counter(&n)), ErrDuplicateJob)
	assert.Error(t, s.Every("y", 0, counter(&n)))
}

func TestUntil(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var n int
	require.NoError(t, s.Every("short", time.Minute, counter(&n), Until(t0.Add(150*time.Second))))

	s.RunPending(context.Background(), t0.Add(time.Minute))
	s.RunPending(context.Background(), t0.Add(2*time.Minute))
	s.RunPending(context.Background(), t0.Add(3*time.Minute))
	assert.Equal(t, 2, n)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Names())
}

func TestFailingJobsKeepSchedule(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var n int
	require.NoError(t, s.Every("err", time.Second, func(context.Context) error { return errors.New("boom") }))
	require.NoError(t, s.Every("panic", time.Second, func(context.Context) error { panic("boom") }))
	require.NoError(t, s.Every("ok", time.Second, counter(&n)))

	assert.Equal(t, 3, s.RunPending(context.Background(), t0.Add(time.Second)))
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, s.Len())
}

func TestCancelledContextSkipsJobs(t *testing.T) {
	t.Parallel()
	s := newScheduler()
	var n int
	require.NoError(t, s.Every("x", time.Second, counter(&n)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, s.RunPending(ctx, t0.Add(time.Second)))
	assert.Zero(t, n)
	assert.Equal(t, 1, s.Len())
}

func TestNextAtMinute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		now    time.Time
		minute int
		want   time.Time
	}{
		{t0, 30, time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)},
		{t0, 0, time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)},
		{t0, 12, time.Date(2024, 4, 2, 10, 12, 0, 0, time.UTC)},
		{time.Date(2024, 4, 2, 23, 45, 0, 0, time.UTC), 30, time.Date(2024, 4, 3, 0, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NextAtMinute(tt.now, tt.minute))
	}
}
