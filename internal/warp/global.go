package warp

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Sway modes
const (
	// SwaySeated pivots the whole image about a point below center
	SwaySeated = 1
	// SwayStanding rotates the legs about the feet and counter-rotates the
	// torso about a synthetic hip, blending the two around mid height
	SwayStanding = 2
)

// GlobalParams drive the whole-image warp of an HD character
type GlobalParams struct {
	Sway        float64 // radians
	Breath      float64 // current shoulder lift in pixels
	SwayLength  float64
	SwayBorder  int
	SwayProcess int
	Overhang    int
}

// Global remaps src into dst. src is dst's width and dst's height plus
// the clothing overhang tall. An unset sway mode sways seated, and an
// unknown one skips the sway and only breathes.
func Global(src, dst *image.NRGBA, p GlobalParams) {
	width := dst.Rect.Dx()
	height := dst.Rect.Dy()
	srcH := height + p.Overhang
	w, h := float64(width), float64(height)

	var m, lower, upper mgl64.Mat3
	var hipx float64
	standing := false
	switch p.SwayProcess {
	case 0, SwaySeated:
		m = pivot(p.Sway, p.SwayLength)
	case SwayStanding:
		standing = true
		lower = pivot(-p.Sway, h/2)
		upper = mgl64.HomogRotate2D(p.Sway / 2)
		hipx = h / 2 * math.Tan(p.Sway)
	default:
		m = mgl64.Ident3()
	}

	lift := make([]float64, width)
	for x := range lift {
		lift[x] = p.Breath * (math.Cos(float64(x)*2*math.Pi/w)/2 + 0.5)
	}

	overlap := h / 10
	for y := 0; y < height; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < width; x++ {
			o := x * 4
			if p.SwayBorder > 0 && (x < p.SwayBorder || x > width-p.SwayBorder) {
				row[o+0], row[o+1], row[o+2], row[o+3] = 0, 0, 0, 0
				continue
			}

			xg := float64(x) + 0.001 - w/2
			yg := float64(y) + 0.001 - h/2

			var xs, ys float64
			switch {
			case !standing:
				xs, ys = apply(m, xg, yg)
			case float64(y) < h/2-overlap:
				xs, ys = apply(upper, xg, yg)
				xs -= hipx
			case float64(y) < h/2+overlap:
				x1, y1 := apply(upper, xg, yg)
				x1 -= hipx
				x2, y2 := apply(lower, xg, yg)
				f := (float64(y) - (h/2 - overlap)) / (overlap * 2)
				xs = x1*(1-f) + x2*f
				ys = y1*(1-f) + y2*f
			default:
				xs, ys = apply(lower, xg, yg)
			}

			s := bilinear(src, width, srcH, xs+w/2, ys+h/2-lift[x])
			row[o+0] = channel(s[0])
			row[o+1] = channel(s[1])
			row[o+2] = channel(s[2])
			row[o+3] = channel(s[3])
		}
	}
}
