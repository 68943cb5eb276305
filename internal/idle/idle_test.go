package idle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	data := map[string][]string{
		"normal": {"blink", "idle1-3", "look"},
		"blink":  {"blink"},
		"odd":    {"wave3-1"},
	}
	assert.Equal(t, []string{"blink", "idle1", "idle2", "idle3", "look"}, Expand(data, "normal"))
	assert.Equal(t, []string{"blink"}, Expand(data, TypeBlink))
	assert.Empty(t, Expand(data, "odd"))
	assert.Empty(t, Expand(data, TypeNone))
	assert.Empty(t, Expand(data, "missing"))
	assert.Empty(t, Expand(nil, TypeNormal))
}

func TestSelector_FirstPickIsFirstEntry(t *testing.T) {
	s := NewSelector(rand.New(rand.NewSource(7)))
	assert.Equal(t, "idle1", s.Pick([]string{"idle1", "idle2", "idle3"}))
	assert.Equal(t, "idle1", s.Last())
	assert.Equal(t, "", s.Pick(nil))

	s.Reset()
	assert.Equal(t, "idle3", s.Pick([]string{"idle3", "idle1"}))
}

func TestSelector_NeverRepeats(t *testing.T) {
	for _, idles := range [][]string{
		{"idle1", "idle2"},
		{"idle1", "idle2", "idle3"},
		{"idle1", "idle2", "idle3", "idle4", "idle5"},
	} {
		s := NewSelector(rand.New(rand.NewSource(42)))
		prev := s.Pick(idles)
		seen := map[string]bool{prev: true}
		for i := 0; i < 10000; i++ {
			next := s.Pick(idles)
			require.NotEqual(t, prev, next, "trial %d over %v", i, idles)
			seen[next] = true
			prev = next
		}
		assert.Len(t, seen, len(idles), "every idle gets played")
	}
}

func TestSelector_SingleEntryRepeats(t *testing.T) {
	s := NewSelector(rand.New(rand.NewSource(1)))
	assert.Equal(t, "idle1", s.Pick([]string{"idle1"}))
	assert.Equal(t, "idle1", s.Pick([]string{"idle1"}))
}

func TestTracker_NothingBeforeStart(t *testing.T) {
	tr := NewTracker(rand.New(rand.NewSource(1)))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		now = now.Add(CheckInterval)
		_, ok := tr.Check(now, true, []string{"idle1"})
		require.False(t, ok)
	}
}

func TestTracker_TriggerWindow(t *testing.T) {
	tr := NewTracker(rand.New(rand.NewSource(1)))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idles := []string{"idle1", "idle2"}

	tr.Started()
	_, ok := tr.Check(now, true, idles)
	assert.False(t, ok)

	now = now.Add(1400 * time.Millisecond)
	_, ok = tr.Check(now, true, idles)
	assert.False(t, ok, "never before the shortest window")

	now = now.Add(3700 * time.Millisecond)
	idle, ok := tr.Check(now, true, idles)
	require.True(t, ok, "always after the longest window")
	assert.Equal(t, "idle1", idle)
	assert.Equal(t, time.Duration(0), tr.SinceAction())
}

func TestTracker_IneligibleTimeStillCounts(t *testing.T) {
	tr := NewTracker(rand.New(rand.NewSource(1)))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idles := []string{"idle1", "idle2"}

	tr.Started()
	tr.Check(now, true, idles)
	now = now.Add(6 * time.Second)
	_, ok := tr.Check(now, false, idles)
	assert.False(t, ok)
	assert.Equal(t, 6*time.Second, tr.SinceAction())

	_, ok = tr.Check(now, true, idles)
	assert.True(t, ok)

	tr.Action()
	assert.Equal(t, time.Duration(0), tr.SinceAction())
}

func TestTracker_BlinkCadence(t *testing.T) {
	tr := NewTracker(rand.New(rand.NewSource(1)))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Started()
	tr.Check(now, true, []string{"blink", "idle1"})
	now = now.Add(10001 * time.Millisecond)
	idle, ok := tr.Check(now, true, []string{"blink", "idle1"})
	require.True(t, ok)
	assert.Equal(t, Blink, idle)

	now = now.Add(5001 * time.Millisecond)
	idle, ok = tr.Check(now, true, []string{"idle1", "blink"})
	require.True(t, ok)
	assert.Equal(t, "idle1", idle, "blink only has its own cadence when listed first")
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(rand.New(rand.NewSource(1)))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Started()
	tr.Check(now, true, []string{"idle1"})
	tr.Reset()

	now = now.Add(time.Minute)
	_, ok := tr.Check(now, true, []string{"idle1"})
	assert.False(t, ok)
}
