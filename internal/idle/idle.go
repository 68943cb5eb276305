// Package idle decides when a character with nothing to do should blink or
// play a filler behavior, and which one.
package idle

import (
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

// Idle types
const (
	TypeNone   = "none"
	TypeBlink  = "blink"
	TypeNormal = "normal"
)

// Blink is the behavior that runs on its own cadence when listed first
const Blink = "blink"

// CheckInterval is how often idle eligibility is evaluated
const CheckInterval = time.Second

const (
	minActionGap = 1500 * time.Millisecond
	maxActionGap = 5000 * time.Millisecond
	minBlinkGap  = 5000 * time.Millisecond
	maxBlinkGap  = 10000 * time.Millisecond
	resamples    = 10
)

var rangePattern = regexp.MustCompile(`([a-z]+)([0-9]+)-([0-9]+)`)

// Expand returns the behaviors of idleType, with ranges such as idle1-3
// expanded to idle1, idle2, idle3
func Expand(idleData map[string][]string, idleType string) []string {
	if idleType == TypeNone {
		return nil
	}
	var out []string
	for _, s := range idleData[idleType] {
		m := rangePattern.FindStringSubmatch(s)
		if m == nil {
			out = append(out, s)
			continue
		}
		from, _ := strconv.Atoi(m[2])
		to, _ := strconv.Atoi(m[3])
		for i := from; i <= to; i++ {
			out = append(out, m[1]+strconv.Itoa(i))
		}
	}
	return out
}

// Selector picks the next idle behavior
type Selector struct {
	rng  *rand.Rand
	last string
}

// NewSelector creates a selector. A nil rng uses a time-seeded source.
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{rng: rng}
}

// Pick returns the next behavior from idles. The first pick is the first
// entry; later picks are random but never repeat the previous pick when
// there is a choice.
func (s *Selector) Pick(idles []string) string {
	if len(idles) == 0 {
		return ""
	}
	var idle string
	if s.last == "" {
		idle = idles[0]
	} else {
		for guard := resamples; guard > 0; guard-- {
			idle = idles[s.rng.Intn(len(idles))]
			if idle != s.last {
				break
			}
		}
		if idle == s.last {
			idle = s.other(idles)
		}
	}
	s.last = idle
	return idle
}

// other picks uniformly among entries that differ from the last pick
func (s *Selector) other(idles []string) string {
	var rest []string
	for _, idle := range idles {
		if idle != s.last {
			rest = append(rest, idle)
		}
	}
	if len(rest) == 0 {
		return s.last
	}
	return rest[s.rng.Intn(len(rest))]
}

// Last returns the previous pick
func (s *Selector) Last() string { return s.last }

// Reset forgets the previous pick
func (s *Selector) Reset() { s.last = "" }

// Tracker accumulates time since the last action and the last blink
type Tracker struct {
	rng         *rand.Rand
	selector    *Selector
	lastCheck   time.Time
	sinceAction time.Duration
	sinceBlink  time.Duration
	started     bool
}

// NewTracker creates a tracker. Nothing is due until Started is called.
func NewTracker(rng *rand.Rand) *Tracker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Tracker{rng: rng, selector: NewSelector(rng)}
}

// Started marks the character's first load as complete
func (t *Tracker) Started() {
	t.started = true
	t.sinceAction = 0
	t.sinceBlink = 0
}

// Action records that an utterance just finished
func (t *Tracker) Action() {
	t.sinceAction = 0
}

// SinceAction returns the accumulated time since the last action
func (t *Tracker) SinceAction() time.Duration { return t.sinceAction }

// Check accumulates elapsed time and returns the behavior to play, if any.
// eligible reports whether the character may play an idle right now.
func (t *Tracker) Check(now time.Time, eligible bool, idles []string) (string, bool) {
	var elapsed time.Duration
	if !t.lastCheck.IsZero() {
		elapsed = now.Sub(t.lastCheck)
	}
	t.lastCheck = now
	if !t.started {
		return "", false
	}
	t.sinceAction += elapsed
	t.sinceBlink += elapsed

	if !eligible || t.sinceAction <= randomDuration(t.rng, minActionGap, maxActionGap) {
		return "", false
	}
	t.sinceAction = 0

	hasBlink := len(idles) > 0 && idles[0] == Blink
	if hasBlink && t.sinceBlink > randomDuration(t.rng, minBlinkGap, maxBlinkGap) {
		t.sinceBlink = 0
		return Blink, true
	}
	if hasBlink {
		idles = idles[1:]
	}
	idle := t.selector.Pick(idles)
	return idle, idle != ""
}

// Reset returns the tracker to its initial state
func (t *Tracker) Reset() {
	t.lastCheck = time.Time{}
	t.sinceAction = 0
	t.sinceBlink = 0
	t.started = false
	t.selector.Reset()
}

func randomDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	return min + time.Duration(rng.Float64()*float64(max-min))
}
