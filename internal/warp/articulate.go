package warp

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/normanking/cortexsprite/internal/descriptor"
)

// Jaw cutout: alpha below the threshold is dropped, the rest is opaque, and
// the top tenth of the patch fades in to hide the seam.
const jawAlphaThreshold = 222

// Articulation holds the descriptor-level parameters shared by every warp op
type Articulation struct {
	MouthBendRadius      float64
	MouthTwistRadius     float64
	JawBendRadius        *float64
	JawTwistRadius       *float64
	LowerJawDisplacement float64
	TwistToSide          float64
	SideToBend           float64
	SideLength           float64
}

// ArticulationFrom extracts the articulation parameters of d
func ArticulationFrom(d *descriptor.Descriptor) Articulation {
	return Articulation{
		MouthBendRadius:      d.MouthBendRadius,
		MouthTwistRadius:     d.MouthTwistRadius,
		JawBendRadius:        d.JawBendRadius,
		JawTwistRadius:       d.JawTwistRadius,
		LowerJawDisplacement: d.LowerJawDisplacement,
		TwistToSide:          d.TwistToSide,
		SideToBend:           d.SideToBend,
		SideLength:           d.SideLength,
	}
}

// Articulate remaps the op.W×op.H patch at the origin of src into dst and
// returns the displacement of the patch's visual origin. dst must be at
// least op.W×op.H. Only MouthWarp and JawWarp ops are accepted.
func Articulate(src, dst *image.NRGBA, op descriptor.DrawOp, a Articulation) (dx, dy int) {
	w, h := op.W, op.H
	if w <= 0 || h <= 0 {
		return 0, 0
	}

	if op.Process == descriptor.JawWarp && a.JawBendRadius == nil {
		stretchJaw(src, dst, w, h, op.Warp.Bend*a.LowerJawDisplacement)
		return 0, 0
	}

	var rb, rt float64
	if op.Process == descriptor.MouthWarp {
		rb, rt = a.MouthBendRadius, a.MouthTwistRadius
	} else {
		rb = deref(a.JawBendRadius)
		rt = deref(a.JawTwistRadius)
	}

	bend := -radians(op.Warp.Bend)
	twist := radians(op.Warp.Twist)
	side := radians(op.Warp.Side)
	side += twist * a.TwistToSide
	bend += side * a.SideToBend

	// Side lean and offset are linear; bend and twist are not.
	m := mgl64.Translate2D(op.Warp.DX, op.Warp.DY).Mul3(pivot(side, a.SideLength))

	dx = int(math.Floor(float64(op.DstX)+rt*math.Sin(twist))) - op.DstX
	dy = int(math.Floor(float64(op.DstY)-rb*math.Sin(bend))) - op.DstY

	feather := newFeather(w, h)
	hw, hh := float64(w)/2, float64(h)/2

	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			xg := float64(x) + 0.001 - hw + float64(dx)
			yg := float64(y) + 0.001 - hh + float64(dy)

			xz := onEllipse(xg, rt, -twist)
			yz := onEllipse(yg, rb, bend)
			xs, ys := apply(m, xz, yz)

			p := bilinear(src, w, h, xs+hw, ys+hh)

			var alpha uint8
			if op.Process == descriptor.MouthWarp {
				alpha = feather.alpha(x, y)
			} else {
				alpha = jawAlpha(p[3], y, h)
			}

			o := x * 4
			row[o+0] = channel(p[0])
			row[o+1] = channel(p[1])
			row[o+2] = channel(p[2])
			row[o+3] = alpha
		}
	}
	return dx, dy
}

// onEllipse rotates coordinate v by angle on a circle of radius r seen edge
// on. Points beyond the radius move with the rim so the map stays
// continuous; a non-positive radius means no curvature.
func onEllipse(v, r, angle float64) float64 {
	if r <= 0 {
		return v
	}
	ratio := v / r
	switch {
	case ratio > 1:
		return v - r + r*math.Sin(math.Pi/2+angle)
	case ratio < -1:
		return v + r + r*math.Sin(-math.Pi/2+angle)
	default:
		return r * math.Sin(math.Asin(ratio)+angle)
	}
}

// stretchJaw lowers the jaw by stretching rows downward, more at the bottom
func stretchJaw(src, dst *image.NRGBA, w, h int, lower float64) {
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		ys := float64(y) - lower*float64(y)/float64(h)
		for x := 0; x < w; x++ {
			p := bilinear(src, w, h, float64(x), ys)
			o := x * 4
			row[o+0] = channel(p[0])
			row[o+1] = channel(p[1])
			row[o+2] = channel(p[2])
			row[o+3] = jawAlpha(p[3], y, h)
		}
	}
}

func jawAlpha(sampled float64, y, h int) uint8 {
	alpha := 0.0
	if math.Round(sampled) >= jawAlphaThreshold {
		alpha = 255
	}
	fade := float64(h) / 10
	if float64(y) < fade {
		alpha = math.Min(alpha, float64(y)/fade*255)
	}
	return channel(alpha)
}

// feather is the elliptical falloff applied to mouth patches: opaque in
// the interior, fading to transparent over the outer few pixels.
type feather struct {
	a, b    float64
	sqrtVp  float64
	sqrtVpp float64
	vp, vpp float64
}

func newFeather(w, h int) feather {
	a, b := float64(w)/2, float64(h)/2
	fudge := math.Round(float64(w)/40) - 1
	xp := float64(w) - 5 - fudge
	xpp := float64(w) - fudge
	vp := (xp - a) * (xp - a) / (a * a)
	vpp := (xpp - a) * (xpp - a) / (a * a)
	return feather{a: a, b: b, vp: vp, vpp: vpp, sqrtVp: math.Sqrt(vp), sqrtVpp: math.Sqrt(vpp)}
}

func (f feather) alpha(x, y int) uint8 {
	dx, dy := float64(x)-f.a, float64(y)-f.b
	v := dx*dx/(f.a*f.a) + dy*dy/(f.b*f.b)
	switch {
	case v > f.vpp:
		return 0
	case v >= f.vp && f.vpp > f.vp:
		return channel(255 * (f.sqrtVpp - math.Sqrt(v)) / (f.sqrtVpp - f.sqrtVp))
	default:
		return 255
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
