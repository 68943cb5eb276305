// Package compositor turns a frame's draw recipe into pixels: it resolves
// textures, runs random-walk and warp ops, and presents HD characters
// through the global sway/breath warp.
package compositor

import (
	"image"
	"image/draw"

	"github.com/normanking/cortexsprite/internal/descriptor"
	"github.com/normanking/cortexsprite/internal/warp"
)

// Sprite formats
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Compositor owns the output surface of one character
type Compositor struct {
	width, height int
	format        string

	surface   *image.NRGBA
	offscreen *image.NRGBA

	patchSrc map[descriptor.ProcessKind]*image.NRGBA
	patchDst map[descriptor.ProcessKind]*image.NRGBA

	walks *RandomWalks
}

// New creates a compositor with a width×height surface
func New(width, height int, format string, walks *RandomWalks) *Compositor {
	if walks == nil {
		walks = NewRandomWalks(nil)
	}
	return &Compositor{
		width:    width,
		height:   height,
		format:   format,
		surface:  image.NewNRGBA(image.Rect(0, 0, width, height)),
		patchSrc: make(map[descriptor.ProcessKind]*image.NRGBA),
		patchDst: make(map[descriptor.ProcessKind]*image.NRGBA),
		walks:    walks,
	}
}

// Surface returns the live output surface
func (c *Compositor) Surface() *image.NRGBA {
	return c.surface
}

// Snapshot returns a copy of the output surface
func (c *Compositor) Snapshot() *image.NRGBA {
	out := image.NewNRGBA(c.surface.Rect)
	copy(out.Pix, c.surface.Pix)
	return out
}

// DrawFrame composites frame of d. HD characters draw into an offscreen
// buffer that Present later warps onto the surface.
func (c *Compositor) DrawFrame(d *descriptor.Descriptor, frame int, tex *Textures, stopping bool) {
	if c.walks.Active() {
		c.walks.ControlSuppression(d, frame, stopping)
	}

	target := c.surface
	if d.Swaying() {
		target = c.offscreenFor(d.ClothingOverhang)
	}
	clearRect(target, image.Rect(0, 0, c.width, c.height))

	recipe := d.Recipe(frame)
	if recipe == nil {
		if tex.Base != nil {
			draw.Draw(target, image.Rect(0, 0, c.width, c.height), tex.Base, image.Point{}, draw.Over)
		}
		return
	}

	for _, op := range recipe {
		src := tex.Resolve(d.TextureName(op.Texture))
		if src == nil {
			continue
		}
		slot := op.Process.RandomSlot()
		if slot > 0 {
			c.walks.Step(slot)
		}

		switch {
		case op.Process.IsWarp():
			c.drawWarp(target, src, op, d)
		case c.format == FormatPNG:
			if !d.Layered && op.Process != descriptor.Clothing {
				clearRect(target, image.Rect(op.DstX, op.DstY, op.DstX+op.W, op.DstY+op.H))
			}
			srcY := op.SrcY
			if slot > 0 {
				srcY += op.H * c.walks.Offset(slot)
			}
			dstY := op.DstY
			if op.Process == descriptor.Clothing {
				dstY += d.ClothingOverhang
			}
			blit(target, src, op.SrcX, srcY, op.W, op.H, op.DstX, dstY)
		default:
			blit(target, src, op.SrcX, op.SrcY, op.W, op.H, op.DstX, op.DstY)
		}
	}
}

func (c *Compositor) drawWarp(target, src *image.NRGBA, op descriptor.DrawOp, d *descriptor.Descriptor) {
	in := scratch(c.patchSrc, op.Process, op.W, op.H)
	out := scratch(c.patchDst, op.Process, op.W, op.H)

	patch := image.Rect(0, 0, op.W, op.H)
	clearRect(in, patch)
	draw.Draw(in, patch, src, image.Pt(op.SrcX, op.SrcY), draw.Src)

	dx, dy := warp.Articulate(in, out, op, warp.ArticulationFrom(d))
	blit(target, out, 0, 0, op.W, op.H, op.DstX+dx, op.DstY+dy)
}

// Present runs the global warp from the offscreen buffer onto the surface.
// It is a no-op until an HD frame has been drawn.
func (c *Compositor) Present(p warp.GlobalParams) {
	if c.offscreen == nil {
		return
	}
	warp.Global(c.offscreen, c.surface, p)
}

// Reset clears the surface and drops scratch buffers
func (c *Compositor) Reset() {
	clearRect(c.surface, c.surface.Rect)
	c.offscreen = nil
	c.patchSrc = make(map[descriptor.ProcessKind]*image.NRGBA)
	c.patchDst = make(map[descriptor.ProcessKind]*image.NRGBA)
}

func (c *Compositor) offscreenFor(overhang int) *image.NRGBA {
	h := c.height + overhang
	if c.offscreen == nil || c.offscreen.Rect.Dy() != h {
		c.offscreen = image.NewNRGBA(image.Rect(0, 0, c.width, h))
	}
	return c.offscreen
}

// scratch returns a buffer of at least w×h for a process kind, reusing the
// previous one when it is the same size
func scratch(cache map[descriptor.ProcessKind]*image.NRGBA, p descriptor.ProcessKind, w, h int) *image.NRGBA {
	img := cache[p]
	if img == nil || img.Rect.Dx() != w || img.Rect.Dy() != h {
		img = image.NewNRGBA(image.Rect(0, 0, w, h))
		cache[p] = img
	}
	return img
}

func blit(dst, src *image.NRGBA, sx, sy, w, h, dx, dy int) {
	r := image.Rect(dx, dy, dx+w, dy+h)
	sp := image.Pt(sx, sy)
	// Clip the source rectangle the way a canvas does: parts outside src draw nothing.
	srcRect := image.Rect(sx, sy, sx+w, sy+h).Intersect(src.Rect)
	if srcRect.Empty() {
		return
	}
	r.Min = r.Min.Add(srcRect.Min.Sub(sp))
	r.Max = r.Min.Add(srcRect.Size())
	draw.Draw(dst, r, src, srcRect.Min, draw.Over)
}

func clearRect(img *image.NRGBA, r image.Rectangle) {
	draw.Draw(img, r, image.Transparent, image.Point{}, draw.Src)
}
