package warp

import (
	"math"
	"math/rand"

	"github.com/normanking/cortexsprite/internal/descriptor"
)

// swayEpsilon is how close the sway angle must get before a new target is picked
const swayEpsilon = 0.001

// Motion is the sway and breathing state of one character. It persists
// across utterances so motion stays continuous.
type Motion struct {
	Sway       float64
	Target     float64
	Accel      float64
	Breath     float64
	BreathTime float64 // milliseconds into the breath cycle

	targeted bool
	rng      *rand.Rand
}

// NewMotion creates a motion state drawing from rng
func NewMotion(rng *rand.Rand) *Motion {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Motion{rng: rng}
}

// UpdateSway advances the sway angle by frames steps toward its target,
// picking a new target first if the current one has been reached. Speaking
// characters use the normal range, idle ones the gentler idle range.
func (m *Motion) UpdateSway(d *descriptor.Descriptor, speaking bool, frames int) {
	if !m.targeted || math.Abs(m.Sway-m.Target) < swayEpsilon {
		if speaking {
			m.Target = -d.NormalSwayRange + m.rng.Float64()*d.NormalSwayRange*2
			m.Accel = d.NormalSwayAccelMin + (d.NormalSwayAccelMax-d.NormalSwayAccelMin)*m.rng.Float64()
		} else {
			m.Target = -d.IdleSwayRange + m.rng.Float64()*d.IdleSwayRange*2
			m.Accel = d.IdleSwayAccelMin + (d.IdleSwayAccelMax-d.IdleSwayAccelMin)*m.rng.Float64()
		}
		m.targeted = true
	}
	for ; frames > 0; frames-- {
		m.Sway += (m.Target - m.Sway) * m.Accel
	}
}

// UpdateBreath sets the shoulder lift for the current point of the breath
// cycle and advances the cycle by one frame interval
func (m *Motion) UpdateBreath(d *descriptor.Descriptor, frameInterval float64) {
	if d.BreathCycle <= 0 {
		m.Breath = 0
		return
	}
	m.Breath = d.ShoulderDisplacement * math.Max(0, math.Sin(m.BreathTime*2*math.Pi/d.BreathCycle))
	m.BreathTime += frameInterval
}

// Settle gives a starting utterance a chance to hold the current lean
func (m *Motion) Settle() {
	if m.rng.Float64() < 0.5 {
		m.Target = m.Sway
	}
}

// Reset returns to the upright, exhaled state
func (m *Motion) Reset() {
	rng := m.rng
	*m = Motion{rng: rng}
}
