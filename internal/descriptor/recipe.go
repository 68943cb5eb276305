package descriptor

import (
	"fmt"
	"math"
)

// ProcessKind selects how a draw op is composited
type ProcessKind int

const (
	// Blit is a straight rectangle copy
	Blit ProcessKind = 0
	// MouthWarp is the ellipsoid bend/twist remap with a feathered edge
	MouthWarp ProcessKind = 1
	// JawWarp is the bend/twist or stretch remap with a hard alpha cutout
	JawWarp ProcessKind = 2
	// Clothing is an overlay drawn without pre-clear, shifted by the clothing overhang
	Clothing ProcessKind = 3
	// RandomWalk1 is the first of nine random-walk slots (11..19)
	RandomWalk1 ProcessKind = 11
	// RandomWalk9 is the last random-walk slot
	RandomWalk9 ProcessKind = 19
)

// IsWarp reports whether the op goes through the articulation warp
func (p ProcessKind) IsWarp() bool {
	return p == MouthWarp || p == JawWarp
}

// IsRandomWalk reports whether the op samples a random-walk row
func (p ProcessKind) IsRandomWalk() bool {
	return p >= RandomWalk1 && p <= RandomWalk9
}

// RandomSlot returns the random-walk slot 1..9, or 0
func (p ProcessKind) RandomSlot() int {
	if !p.IsRandomWalk() {
		return 0
	}
	return int(p - RandomWalk1 + 1)
}

func (p ProcessKind) String() string {
	switch {
	case p == Blit:
		return "blit"
	case p == MouthWarp:
		return "mouth"
	case p == JawWarp:
		return "jaw"
	case p == Clothing:
		return "clothing"
	case p.IsRandomWalk():
		return fmt.Sprintf("random%d", p.RandomSlot())
	default:
		return fmt.Sprintf("process(%d)", int(p))
	}
}

// WarpParams are the articulation parameters of a warp op, in degrees and pixels
type WarpParams struct {
	Bend  float64
	Twist float64
	Side  float64
	DX    float64
	DY    float64
}

// DrawOp copies a W×H region from a texture onto the surface
type DrawOp struct {
	DstX, DstY int
	SrcX, SrcY int
	W, H       int
	// Texture indexes Descriptor.Textures, -1 when unset
	Texture int
	Process ProcessKind
	// Warp is only populated for warp ops
	Warp WarpParams
}

// UnmarshalJSON decodes the positional wire form
// [dstX, dstY, srcX, srcY, w, h, texture, process, bend, twist, side, dx, dy].
// Missing trailing elements default to zero; a non-numeric texture means unset.
func (op *DrawOp) UnmarshalJSON(data []byte) error {
	var parts []any
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 6 {
		return fmt.Errorf("draw op needs at least 6 elements, got %d", len(parts))
	}

	num := func(i int) float64 {
		if i >= len(parts) {
			return 0
		}
		if f, ok := parts[i].(float64); ok {
			return f
		}
		return 0
	}
	px := func(i int) int { return int(math.Round(num(i))) }

	*op = DrawOp{
		DstX:    px(0),
		DstY:    px(1),
		SrcX:    px(2),
		SrcY:    px(3),
		W:       px(4),
		H:       px(5),
		Texture: -1,
		Process: ProcessKind(px(7)),
	}
	if len(parts) > 6 {
		if f, ok := parts[6].(float64); ok {
			op.Texture = int(f)
		}
	}
	if op.Process.IsWarp() {
		op.Warp = WarpParams{
			Bend:  num(8),
			Twist: num(9),
			Side:  num(10),
			DX:    num(11),
			DY:    num(12),
		}
	}
	return nil
}
