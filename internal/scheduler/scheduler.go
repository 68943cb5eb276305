// Package scheduler runs the engine's single logical thread: posted
// callbacks from network completions, single-shot timed tasks (settle,
// delay, idle tick, preload tick) and per-refresh frame callbacks all
// execute one at a time from Step and Frame.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// Task is a single-shot timed callback
type Task struct {
	name  string
	at    time.Time
	seq   uint64
	fn    func()
	index int
	s     *Scheduler
}

// Name returns the task label
func (t *Task) Name() string { return t.name }

// Pending reports whether the task is still waiting to fire
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.index >= 0
}

// Cancel removes the task. It reports whether the task was still pending;
// a cancelled task never fires.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.s.tasks, t.index)
	return true
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler is a cooperative, single-consumer executor
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	tasks  taskHeap
	seq    uint64
	posted []func()
	frames []func()
	wake   chan struct{}
	logger zerolog.Logger
}

// New creates a scheduler driven by clock
func New(clock Clock, logger zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		clock:  clock,
		wake:   make(chan struct{}, 1),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Now returns the scheduler's current time
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// After schedules fn to run once d has elapsed
func (s *Scheduler) After(d time.Duration, name string, fn func()) *Task {
	s.mu.Lock()
	s.seq++
	t := &Task{name: name, at: s.clock.Now().Add(d), seq: s.seq, fn: fn, s: s}
	heap.Push(&s.tasks, t)
	s.mu.Unlock()
	return t
}

// Post queues fn to run on the next Step. Safe from any goroutine.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	s.posted = append(s.posted, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// OnFrame registers fn to run on every Frame
func (s *Scheduler) OnFrame(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, fn)
}

// Pending returns the number of timed tasks waiting to fire
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// CancelAll drops every timed task and posted callback
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		t.index = -1
	}
	s.tasks = nil
	s.posted = nil
}

// Step runs posted callbacks and due tasks until neither remains.
// It returns the number of callbacks executed.
func (s *Scheduler) Step() int {
	ran := 0
	for {
		s.mu.Lock()
		posted := s.posted
		s.posted = nil
		s.mu.Unlock()

		for _, fn := range posted {
			fn()
			ran++
		}

		t := s.popDue()
		if t == nil {
			if len(posted) == 0 {
				return ran
			}
			continue
		}
		t.fn()
		ran++
	}
}

func (s *Scheduler) popDue() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 || s.tasks[0].at.After(s.clock.Now()) {
		return nil
	}
	return heap.Pop(&s.tasks).(*Task)
}

// Frame runs the registered frame callbacks once
func (s *Scheduler) Frame() {
	s.mu.Lock()
	frames := make([]func(), len(s.frames))
	copy(frames, s.frames)
	s.mu.Unlock()

	for _, fn := range frames {
		fn()
	}
}

// Run drives Step and Frame at the given refresh interval until ctx is done.
// Posted callbacks wake the loop early.
func (s *Scheduler) Run(ctx context.Context, refresh time.Duration) error {
	if refresh <= 0 {
		refresh = time.Second / 60
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	s.logger.Debug().Dur("refresh", refresh).Msg("Scheduler running")
	defer s.logger.Debug().Msg("Scheduler stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			s.Step()
		case <-ticker.C:
			s.Step()
			s.Frame()
		}
	}
}
