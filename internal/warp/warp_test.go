package warp

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/normanking/cortexsprite/internal/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradient builds a smooth opaque test patch
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 6), G: uint8(y * 6), B: uint8((x + y) * 3), A: 255})
		}
	}
	return img
}

func radius(v float64) *float64 { return &v }

func TestArticulate_IdentityAtRest(t *testing.T) {
	const w, h = 24, 18
	src := gradient(w, h)

	tests := []struct {
		name string
		op   descriptor.DrawOp
		art  Articulation
	}{
		{
			name: "mouth",
			op:   descriptor.DrawOp{DstX: 40, DstY: 50, W: w, H: h, Process: descriptor.MouthWarp},
			art:  Articulation{MouthBendRadius: 30, MouthTwistRadius: 25, SideLength: 12, TwistToSide: 0.5},
		},
		{
			name: "curved jaw",
			op:   descriptor.DrawOp{DstX: 40, DstY: 60, W: w, H: h, Process: descriptor.JawWarp},
			art:  Articulation{JawBendRadius: radius(8), JawTwistRadius: radius(6)},
		},
		{
			name: "stretched jaw",
			op:   descriptor.DrawOp{DstX: 40, DstY: 60, W: w, H: h, Process: descriptor.JawWarp},
			art:  Articulation{LowerJawDisplacement: 0.3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := image.NewNRGBA(image.Rect(0, 0, w, h))
			dx, dy := Articulate(src, dst, tt.op, tt.art)
			assert.Zero(t, dx)
			assert.Zero(t, dy)

			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					want := src.NRGBAAt(x, y)
					got := dst.NRGBAAt(x, y)
					require.Equal(t, [3]uint8{want.R, want.G, want.B}, [3]uint8{got.R, got.G, got.B}, "pixel %d,%d", x, y)
				}
			}
		})
	}
}

func TestArticulate_MouthFeather(t *testing.T) {
	const w, h = 40, 20
	src := gradient(w, h)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	Articulate(src, dst, descriptor.DrawOp{W: w, H: h, Process: descriptor.MouthWarp}, Articulation{MouthBendRadius: 30, MouthTwistRadius: 30})

	assert.Equal(t, uint8(255), dst.NRGBAAt(w/2, h/2).A, "center is opaque")
	assert.Equal(t, uint8(0), dst.NRGBAAt(0, 0).A, "corner is outside the ellipse")

	// Somewhere along the horizontal axis alpha is strictly between the extremes.
	partial := false
	for x := w / 2; x < w; x++ {
		a := dst.NRGBAAt(x, h/2).A
		if a > 0 && a < 255 {
			partial = true
		}
	}
	assert.True(t, partial, "feathered edge")
}

func TestArticulate_JawCutoutAndFade(t *testing.T) {
	const w, h = 10, 20
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(255)
			if x < 3 {
				a = 200
			}
			src.SetNRGBA(x, y, color.NRGBA{R: 100, G: 100, B: 100, A: a})
		}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	Articulate(src, dst, descriptor.DrawOp{W: w, H: h, Process: descriptor.JawWarp}, Articulation{})

	assert.Equal(t, uint8(0), dst.NRGBAAt(0, 10).A, "below threshold is cut")
	assert.Equal(t, uint8(255), dst.NRGBAAt(8, 10).A, "above threshold is opaque")
	assert.Equal(t, uint8(0), dst.NRGBAAt(8, 0).A, "top row fades out")
	assert.Equal(t, uint8(128), dst.NRGBAAt(8, 1).A, "fade is linear over the top tenth")
}

func TestArticulate_DisplacementFollowsBendAndTwist(t *testing.T) {
	const w, h = 20, 20
	src := gradient(w, h)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	op := descriptor.DrawOp{DstX: 100, DstY: 100, W: w, H: h, Process: descriptor.MouthWarp,
		Warp: descriptor.WarpParams{Bend: 10, Twist: 20}}
	art := Articulation{MouthBendRadius: 30, MouthTwistRadius: 30}

	dx, dy := Articulate(src, dst, op, art)
	assert.Equal(t, int(math.Floor(100+30*math.Sin(radians(20))))-100, dx)
	assert.Equal(t, int(math.Floor(100-30*math.Sin(-radians(10))))-100, dy)
	assert.Positive(t, dx)
	assert.Positive(t, dy)
}

func TestOnEllipse(t *testing.T) {
	assert.InDelta(t, 5.0, onEllipse(5, 10, 0), 1e-9)
	assert.Equal(t, 5.0, onEllipse(5, 0, 1))
	// Continuous across the rim.
	assert.InDelta(t, onEllipse(10, 10, 0.3), onEllipse(10.0001, 10, 0.3), 1e-3)
	assert.InDelta(t, onEllipse(-10, 10, 0.3), onEllipse(-10.0001, 10, 0.3), 1e-3)
	assert.InDelta(t, 15.0, onEllipse(15, 10, 0), 1e-9)
}

func TestGlobal_NoSwayIsIdentity(t *testing.T) {
	const w, h = 30, 20
	src := gradient(w, h+4)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	for _, process := range []int{SwaySeated, SwayStanding} {
		Global(src, dst, GlobalParams{SwayLength: 50, SwayProcess: process, Overhang: 4})
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				require.Equal(t, src.NRGBAAt(x, y), dst.NRGBAAt(x, y), "process %d pixel %d,%d", process, x, y)
			}
		}
	}
}

func TestGlobal_BorderIsTransparent(t *testing.T) {
	const w, h = 30, 20
	src := gradient(w, h)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	Global(src, dst, GlobalParams{Sway: 0.05, SwayLength: 40, SwayBorder: 5, SwayProcess: SwaySeated})

	assert.Equal(t, color.NRGBA{}, dst.NRGBAAt(0, 10))
	assert.Equal(t, color.NRGBA{}, dst.NRGBAAt(w-1, 10))
	assert.Equal(t, uint8(255), dst.NRGBAAt(w/2, 10).A)
}

func TestGlobal_BreathLiftsCenter(t *testing.T) {
	const w, h = 32, 32
	src := gradient(w, h)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	Global(src, dst, GlobalParams{Breath: 2, SwayLength: 40, SwayProcess: SwaySeated})

	// Lift is zero at the horizontal center and full at the edges.
	assert.Equal(t, src.NRGBAAt(w/2, 10).G, dst.NRGBAAt(w/2, 10).G)
	assert.Equal(t, src.NRGBAAt(0, 8).G, dst.NRGBAAt(0, 10).G)
}

func TestMotion_SwayConvergesAndRetargets(t *testing.T) {
	d := &descriptor.Descriptor{
		NormalSwayRange: 0.1, NormalSwayAccelMin: 0.5, NormalSwayAccelMax: 0.5,
		IdleSwayRange: 0.02, IdleSwayAccelMin: 0.1, IdleSwayAccelMax: 0.1,
	}
	m := NewMotion(rand.New(rand.NewSource(7)))

	m.UpdateSway(d, false, 1)
	assert.LessOrEqual(t, math.Abs(m.Target), 0.02)
	assert.Equal(t, 0.1, m.Accel)

	m.UpdateSway(d, false, 500)
	assert.Less(t, math.Abs(m.Sway-m.Target), swayEpsilon)

	m.UpdateSway(d, true, 1)
	assert.Equal(t, 0.5, m.Accel, "speaking uses the normal acceleration")
	assert.LessOrEqual(t, math.Abs(m.Target), 0.1)
}

func TestMotion_Breath(t *testing.T) {
	d := &descriptor.Descriptor{BreathCycle: 4000, ShoulderDisplacement: 3}
	m := NewMotion(rand.New(rand.NewSource(1)))

	m.UpdateBreath(d, 1000)
	assert.InDelta(t, 0, m.Breath, 1e-9)
	m.UpdateBreath(d, 1000)
	assert.InDelta(t, 3, m.Breath, 1e-9)
	m.UpdateBreath(d, 1000)
	m.UpdateBreath(d, 1000)
	assert.Equal(t, 0.0, m.Breath, "exhale half of the cycle is clamped to zero")
	assert.Equal(t, 4000.0, m.BreathTime)

	m.Reset()
	assert.Zero(t, m.BreathTime)
}

func TestGlobal_SwayModes(t *testing.T) {
	const w, h = 30, 20
	src := gradient(w, h)
	seated := image.NewNRGBA(image.Rect(0, 0, w, h))
	unset := image.NewNRGBA(image.Rect(0, 0, w, h))
	unknown := image.NewNRGBA(image.Rect(0, 0, w, h))

	Global(src, seated, GlobalParams{Sway: 0.1, SwayLength: 40, SwayProcess: SwaySeated})
	Global(src, unset, GlobalParams{Sway: 0.1, SwayLength: 40})
	Global(src, unknown, GlobalParams{Sway: 0.1, SwayLength: 40, SwayProcess: 3})

	assert.Equal(t, seated.Pix, unset.Pix, "an unset mode sways seated")
	assert.NotEqual(t, src.Pix, seated.Pix)
	assert.Equal(t, src.Pix, unknown.Pix, "an unknown mode does not sway")
}
