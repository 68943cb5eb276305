// Package warp implements the pixel remaps that make a flat sprite move:
// the articulation warp for mouth and jaw patches, and the whole-image
// sway/breath warp for HD characters.
package warp

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// rgba is an unrounded bilinear sample
type rgba [4]float64

// bilinear samples src at (x, y) with the coordinates clamped to the
// top-left w×h region of src. Pixels are read as non-premultiplied RGBA.
func bilinear(src *image.NRGBA, w, h int, x, y float64) rgba {
	x = clampf(x, 0, float64(w-1))
	y = clampf(y, 0, float64(h-1))

	x1, x2, wx1, wx2 := axis(x, w)
	y1, y2, wy1, wy2 := axis(y, h)

	off := func(px, py int) int {
		return py*src.Stride + px*4
	}
	o11, o21 := off(x1, y1), off(x2, y1)
	o12, o22 := off(x1, y2), off(x2, y2)

	var out rgba
	for c := 0; c < 4; c++ {
		out[c] = wx1*wy1*float64(src.Pix[o11+c]) +
			wx2*wy1*float64(src.Pix[o21+c]) +
			wx1*wy2*float64(src.Pix[o12+c]) +
			wx2*wy2*float64(src.Pix[o22+c])
	}
	return out
}

// axis returns the two neighbouring indices around v and their weights.
// When v lands exactly on a pixel the pair is widened to its neighbour so
// both weights stay well defined.
func axis(v float64, n int) (lo, hi int, wlo, whi float64) {
	if n < 2 {
		return 0, 0, 1, 0
	}
	lo = clampi(int(math.Floor(v)), 0, n-1)
	hi = clampi(int(math.Ceil(v)), 0, n-1)
	if lo == hi {
		if lo == 0 {
			hi++
		} else {
			lo--
		}
	}
	return lo, hi, float64(hi) - v, v - float64(lo)
}

func channel(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pivot returns T(0,l)·R(angle)·T(0,-l): a rotation about a point l below the origin
func pivot(angle, l float64) mgl64.Mat3 {
	return mgl64.Translate2D(0, l).Mul3(mgl64.HomogRotate2D(angle)).Mul3(mgl64.Translate2D(0, -l))
}

// apply transforms the point (x, y) by the affine matrix m
func apply(m mgl64.Mat3, x, y float64) (float64, float64) {
	v := m.Mul3x1(mgl64.Vec3{x, y, 1})
	return v[0], v[1]
}

func radians(deg float64) float64 {
	return deg / 180 * math.Pi
}
