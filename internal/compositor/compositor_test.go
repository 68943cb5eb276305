package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/normanking/cortexsprite/internal/descriptor"
	"github.com/normanking/cortexsprite/internal/warp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	none  = color.NRGBA{}
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// rows builds a 4-wide texture whose 4-tall bands are the given colors
func rows(colors ...color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4*len(colors)))
	for i, c := range colors {
		draw.Draw(img, image.Rect(0, 4*i, 4, 4*i+4), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}
	return img
}

func frames(recipes ...[]descriptor.DrawOp) *descriptor.Descriptor {
	d := &descriptor.Descriptor{FPS: 10, Recipes: recipes}
	for i := range recipes {
		d.Frames = append(d.Frames, descriptor.Frame{Recipe: i})
	}
	d.Frames[len(d.Frames)-1].Recovery = descriptor.Terminal
	return d
}

func TestTextures_Resolve(t *testing.T) {
	base, first, alt := solid(1, 1, red), solid(1, 1, green), solid(1, 1, blue)
	tex := &Textures{Base: base, Default: first, Secondary: map[string]*image.NRGBA{"LookLeft": alt}}

	assert.Same(t, first, tex.Resolve("default"))
	assert.Same(t, alt, tex.Resolve("LookLeft"))
	assert.Same(t, base, tex.Resolve("Missing"))
	assert.Same(t, base, tex.Resolve(""))

	noDefault := &Textures{Base: base}
	assert.Same(t, base, noDefault.Resolve("default"))
}

func TestDrawFrame_PNGPreClear(t *testing.T) {
	tex := &Textures{Base: rows(red, none)}
	ops := []descriptor.DrawOp{
		{DstX: 0, DstY: 0, SrcX: 0, SrcY: 0, W: 4, H: 4, Texture: -1},
		{DstX: 0, DstY: 0, SrcX: 0, SrcY: 4, W: 2, H: 2, Texture: -1},
	}

	c := New(8, 8, FormatPNG, nil)
	c.DrawFrame(frames(ops), 0, tex, false)
	assert.Equal(t, none, c.Surface().NRGBAAt(0, 0), "replacement overlay clears what it covers")
	assert.Equal(t, red, c.Surface().NRGBAAt(3, 3))

	layered := frames(ops)
	layered.Layered = true
	c.DrawFrame(layered, 0, tex, false)
	assert.Equal(t, red, c.Surface().NRGBAAt(0, 0), "layered descriptors composite over")
}

func TestDrawFrame_JPEGBlitsWithoutClear(t *testing.T) {
	tex := &Textures{Base: rows(red, none)}
	ops := []descriptor.DrawOp{
		{W: 4, H: 4, Texture: -1},
		{SrcY: 4, W: 2, H: 2, Texture: -1},
	}
	c := New(8, 8, FormatJPEG, nil)
	c.DrawFrame(frames(ops), 0, tex, false)
	assert.Equal(t, red, c.Surface().NRGBAAt(0, 0))
}

func TestDrawFrame_ClothingShiftsByOverhang(t *testing.T) {
	tex := &Textures{Base: rows(green)}
	d := frames([]descriptor.DrawOp{{DstX: 0, DstY: 0, W: 4, H: 4, Texture: -1, Process: descriptor.Clothing}})
	d.ClothingOverhang = 2

	c := New(8, 8, FormatPNG, nil)
	c.DrawFrame(d, 0, tex, false)
	assert.Equal(t, none, c.Surface().NRGBAAt(0, 1))
	assert.Equal(t, green, c.Surface().NRGBAAt(0, 2))
	assert.Equal(t, green, c.Surface().NRGBAAt(0, 5))
}

func TestDrawFrame_RandomWalkSelectsRow(t *testing.T) {
	tex := &Textures{Base: rows(red, green, blue)}
	d := frames([]descriptor.DrawOp{{W: 4, H: 4, Texture: -1, Process: descriptor.ProcessKind(12)}})
	d.RandomFrames[2] = 3

	walks := NewRandomWalks(rand.New(rand.NewSource(1)))
	walks.Ensure(d)
	c := New(4, 4, FormatPNG, walks)

	// First step only chooses a direction, so the row is still 0.
	c.DrawFrame(d, 0, tex, false)
	assert.Equal(t, red, c.Surface().NRGBAAt(1, 1))

	walks.Walker(2).Frame = 2
	walks.Walker(2).Count = 0
	c.DrawFrame(d, 0, tex, false)
	assert.Equal(t, blue, c.Surface().NRGBAAt(1, 1))
}

func TestDrawFrame_StripFormat(t *testing.T) {
	d := &descriptor.Descriptor{FPS: 10, Frames: []descriptor.Frame{{Recovery: -1}}}
	c := New(4, 4, FormatPNG, nil)
	c.DrawFrame(d, 0, &Textures{Base: solid(8, 8, blue)}, false)
	assert.Equal(t, blue, c.Surface().NRGBAAt(3, 3))
}

func TestDrawFrame_DefaultTextureStaysFrozen(t *testing.T) {
	d := frames([]descriptor.DrawOp{{W: 1, H: 1, Texture: 0}})
	d.Textures = []string{"default"}

	c := New(1, 1, FormatPNG, nil)
	first := solid(1, 1, red)
	c.DrawFrame(d, 0, &Textures{Base: solid(1, 1, green), Default: first}, false)
	assert.Equal(t, red, c.Surface().NRGBAAt(0, 0))
}

func TestDrawFrame_WarpOpBlitsAtDisplacement(t *testing.T) {
	tex := &Textures{Base: solid(10, 10, green)}
	d := frames([]descriptor.DrawOp{{DstX: 2, DstY: 2, W: 10, H: 10, Texture: -1, Process: descriptor.JawWarp}})

	c := New(16, 16, FormatPNG, nil)
	c.DrawFrame(d, 0, tex, false)
	// Rows below the top fade are opaque green at the destination.
	assert.Equal(t, green, c.Surface().NRGBAAt(5, 8))
	assert.Equal(t, none, c.Surface().NRGBAAt(0, 0))
}

func TestPresent_HDCharacter(t *testing.T) {
	tex := &Textures{Base: solid(8, 8, red)}
	d := frames([]descriptor.DrawOp{{W: 8, H: 8, Texture: -1}})
	d.SwayLength = 20
	d.ClothingOverhang = 2

	c := New(8, 8, FormatPNG, nil)
	c.Present(warp.GlobalParams{})
	assert.Equal(t, none, c.Surface().NRGBAAt(4, 4), "nothing to present before the first frame")

	c.DrawFrame(d, 0, tex, false)
	assert.Equal(t, none, c.Surface().NRGBAAt(4, 4), "HD frames draw offscreen")

	c.Present(warp.GlobalParams{SwayLength: 20, SwayProcess: warp.SwaySeated, Overhang: 2})
	assert.Equal(t, red, c.Surface().NRGBAAt(4, 4))

	snap := c.Snapshot()
	c.Reset()
	assert.Equal(t, red, snap.NRGBAAt(4, 4))
	assert.Equal(t, none, c.Surface().NRGBAAt(4, 4))
}

func TestControlSuppression(t *testing.T) {
	walk := []descriptor.DrawOp{{W: 1, H: 1, Process: descriptor.RandomWalk1}}
	plain := []descriptor.DrawOp{{W: 1, H: 1}}

	d := &descriptor.Descriptor{FPS: 10, Recipes: [][]descriptor.DrawOp{walk, plain}}
	for i := 0; i < 10; i++ {
		d.Frames = append(d.Frames, descriptor.Frame{Recipe: 0})
	}
	d.Frames[9].Recovery = descriptor.Terminal
	d.RandomFrames[1] = 4

	r := NewRandomWalks(rand.New(rand.NewSource(3)))
	r.Ensure(d)

	r.ControlSuppression(d, 0, false)
	assert.False(t, r.Suppressed())

	d.Frames[4].Recipe = 1
	r.ControlSuppression(d, 0, false)
	assert.True(t, r.Suppressed(), "a layer disappears within the look-ahead")

	r.ControlSuppression(d, 5, false)
	assert.False(t, r.Suppressed(), "look-ahead stops at the terminal frame")

	d.Frames[2].Recovery = 7
	r.ControlSuppression(d, 0, true)
	assert.False(t, r.Suppressed(), "look-ahead stops at a recovery frame while stopping")
}

func TestWalker_StaysInBoundsAndSettles(t *testing.T) {
	d := &descriptor.Descriptor{}
	d.RandomFrames[1] = 5

	r := NewRandomWalks(rand.New(rand.NewSource(42)))
	r.Ensure(d)
	require.True(t, r.Active())

	for i := 0; i < 1000; i++ {
		r.Step(1)
		w := r.Walker(1)
		require.GreaterOrEqual(t, w.Frame, 0)
		require.Less(t, w.Frame, 5)
	}

	r.Walker(1).Frame = 4
	r.Suppress()
	r.Step(1)
	assert.Equal(t, 2, r.Offset(1))
	r.Step(1)
	assert.Equal(t, 1, r.Offset(1))
	r.Step(1)
	assert.Equal(t, 1, r.Offset(1))

	// Ensure keeps existing walkers.
	r.Ensure(d)
	assert.Equal(t, 1, r.Offset(1))

	r.Reset()
	assert.False(t, r.Active())
}
