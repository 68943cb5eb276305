package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/normanking/cortexsprite/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestScheduler() (*Scheduler, *testutil.ManualClock) {
	clock := testutil.NewManualClock()
	return New(clock, zerolog.Nop()), clock
}

func TestAfter_FiresInDeadlineOrder(t *testing.T) {
	s, clock := newTestScheduler()

	var order []string
	s.After(300*time.Millisecond, "c", func() { order = append(order, "c") })
	s.After(100*time.Millisecond, "a", func() { order = append(order, "a") })
	s.After(100*time.Millisecond, "b", func() { order = append(order, "b") })

	assert.Equal(t, 0, s.Step())

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 2, s.Step())
	assert.Equal(t, []string{"a", "b"}, order)

	clock.Advance(time.Second)
	s.Step()
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, s.Pending())
}

func TestCancel_NeverFires(t *testing.T) {
	s, clock := newTestScheduler()

	fired := false
	task := s.After(10*time.Millisecond, "settle", func() { fired = true })
	require.True(t, task.Pending())

	assert.True(t, task.Cancel())
	assert.False(t, task.Cancel())
	assert.False(t, task.Pending())

	clock.Advance(time.Second)
	s.Step()
	assert.False(t, fired)
}

func TestNilTask(t *testing.T) {
	var task *Task
	assert.False(t, task.Pending())
	assert.False(t, task.Cancel())
}

func TestPost_RunsOnStep(t *testing.T) {
	s, _ := newTestScheduler()

	var got []int
	s.Post(func() {
		got = append(got, 1)
		s.Post(func() { got = append(got, 2) })
	})

	assert.Empty(t, got)
	s.Step()
	assert.Equal(t, []int{1, 2}, got)
}

func TestTaskScheduledFromTaskWithZeroDelay(t *testing.T) {
	s, clock := newTestScheduler()

	var got []string
	s.After(time.Millisecond, "first", func() {
		got = append(got, "first")
		s.After(0, "second", func() { got = append(got, "second") })
	})

	clock.Advance(time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestCancelAll(t *testing.T) {
	s, clock := newTestScheduler()

	fired := 0
	t1 := s.After(time.Millisecond, "a", func() { fired++ })
	s.Post(func() { fired++ })

	s.CancelAll()
	assert.False(t, t1.Pending())

	clock.Advance(time.Second)
	s.Step()
	assert.Equal(t, 0, fired)
}

func TestFrame(t *testing.T) {
	s, _ := newTestScheduler()

	n := 0
	s.OnFrame(func() { n++ })
	s.Frame()
	s.Frame()
	assert.Equal(t, 2, n)
}

func TestRun_StopsOnCancelWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(SystemClock(), zerolog.Nop())

	var frames atomic.Int32
	s.OnFrame(func() { frames.Add(1) })

	var posted atomic.Bool
	s.Post(func() { posted.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return posted.Load() && frames.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
