package compositor

import (
	"math"
	"math/rand"

	"github.com/normanking/cortexsprite/internal/descriptor"
)

// lookAhead is how many frames ahead random-walk layers must persist for
// the walkers to keep moving
const lookAhead = 6

// Walker drives one random-walk slot: it walks Count steps of Inc through
// Frames pre-baked rows, then picks a new direction and run length.
type Walker struct {
	Frame  int
	Inc    int
	Count  int
	Frames int
}

// RandomWalks holds the nine walkers of a character. Walkers live as long as
// the character, not the utterance.
type RandomWalks struct {
	walkers  [10]*Walker
	suppress bool
	rng      *rand.Rand
}

// NewRandomWalks creates an empty walker set
func NewRandomWalks(rng *rand.Rand) *RandomWalks {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &RandomWalks{rng: rng}
}

// Ensure creates walkers for slots d declares that do not exist yet.
// Existing walkers keep their state.
func (r *RandomWalks) Ensure(d *descriptor.Descriptor) {
	for n := 1; n <= 9; n++ {
		if r.walkers[n] == nil && d.RandomFrames[n] > 0 {
			r.walkers[n] = &Walker{Frames: d.RandomFrames[n]}
		}
	}
}

// Active reports whether any walker exists
func (r *RandomWalks) Active() bool {
	for _, w := range r.walkers {
		if w != nil {
			return true
		}
	}
	return false
}

// Walker returns the walker for slot n, or nil
func (r *RandomWalks) Walker(n int) *Walker {
	if n < 1 || n > 9 {
		return nil
	}
	return r.walkers[n]
}

// Suppressed reports whether walkers are being driven back to rest
func (r *RandomWalks) Suppressed() bool { return r.suppress }

// Suppress drives every walker back toward its first row
func (r *RandomWalks) Suppress() { r.suppress = true }

// ControlSuppression releases the walkers only while random-walk layers are
// present in each of the next lookAhead frames, so they are at rest before
// a layer disappears.
func (r *RandomWalks) ControlSuppression(d *descriptor.Descriptor, frame int, stopping bool) {
	present := true
	for i := 0; i < lookAhead; i++ {
		f := frame + i
		if f >= len(d.Frames) {
			break
		}
		rec := d.Frames[f].Recovery
		if rec == descriptor.Terminal || (stopping && rec != 0) {
			break
		}
		found := false
		for _, op := range d.Recipe(f) {
			if op.Process.IsRandomWalk() {
				found = true
				break
			}
		}
		if !found {
			present = false
			break
		}
	}
	r.suppress = !present
}

// Step advances the walker for slot n
func (r *RandomWalks) Step(n int) {
	w := r.Walker(n)
	if w == nil {
		return
	}
	if r.suppress {
		if w.Frame > 1 {
			w.Frame = int(math.Round(float64(w.Frame) / 2))
		}
		w.Count = 0
		w.Inc = 0
		return
	}
	if w.Count > 0 {
		w.Frame = max(0, min(w.Frames-1, w.Frame+w.Inc))
		w.Count--
		return
	}
	w.Count = w.Frames/3 + r.rng.Intn(w.Frames)
	if r.rng.Float64() < 0.5 {
		w.Inc = -1
	} else {
		w.Inc = 1
	}
}

// Offset returns the current row of slot n
func (r *RandomWalks) Offset(n int) int {
	w := r.Walker(n)
	if w == nil {
		return 0
	}
	return w.Frame
}

// Reset drops all walkers
func (r *RandomWalks) Reset() {
	r.walkers = [10]*Walker{}
	r.suppress = false
}
