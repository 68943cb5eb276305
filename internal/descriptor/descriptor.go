// Package descriptor decodes the per-utterance animation descriptor: frame
// sequence, draw recipes, texture names and the motion parameters used by
// the warp engine.
package descriptor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClientVersion is the descriptor format version this engine implements
const ClientVersion = "1.0"

// Terminal is the recovery marker of the last frame of an animation
const Terminal = -1

// DefaultTexture names the texture that resolves to the first texture ever
// loaded for a character
const DefaultTexture = "default"

var (
	// ErrInvalid is returned for descriptors that cannot be played
	ErrInvalid = errors.New("invalid animation descriptor")
	// ErrClientTooOld is returned when the descriptor needs a newer major version
	ErrClientTooOld = errors.New("character requires newer client")
)

// Frame is one step of the animation
type Frame struct {
	Recipe int
	// Recovery is Terminal for the last frame, a frame index to jump to on
	// early stop, or zero for an ordinary frame
	Recovery int
	Command  *Command
}

// Command is a side effect attached to a frame
type Command struct {
	Type string
	Raw  jsoniter.RawMessage
}

// Descriptor is an immutable animation descriptor
type Descriptor struct {
	FPS      float64    `json:"fps"`
	Frames   []Frame    `json:"frames"`
	Recipes  [][]DrawOp `json:"recipes"`
	Textures []string   `json:"textures"`
	Layered  bool       `json:"layered"`

	SwayLength         float64 `json:"swayLength"`
	SwayBorder         int     `json:"swayBorder"`
	SwayProcess        int     `json:"swayProcess"`
	NormalSwayRange    float64 `json:"normalSwayRange"`
	NormalSwayAccelMin float64 `json:"normalSwayAccelMin"`
	NormalSwayAccelMax float64 `json:"normalSwayAccelMax"`
	IdleSwayRange      float64 `json:"idleSwayRange"`
	IdleSwayAccelMin   float64 `json:"idleSwayAccelMin"`
	IdleSwayAccelMax   float64 `json:"idleSwayAccelMax"`

	BreathCycle          float64 `json:"breathCycle"`
	ShoulderDisplacement float64 `json:"shoulderDisplacement"`

	MouthBendRadius      float64  `json:"mouthBendRadius"`
	MouthTwistRadius     float64  `json:"mouthTwistRadius"`
	JawBendRadius        *float64 `json:"jawBendRadius"`
	JawTwistRadius       *float64 `json:"jawTwistRadius"`
	LowerJawDisplacement float64  `json:"lowerJawDisplacement"`
	TwistToSide          float64  `json:"twistToSide"`
	SideToBend           float64  `json:"sideToBend"`
	SideLength           float64  `json:"sideLength"`

	ClothingOverhang int    `json:"clothingOverhang"`
	LeadingSilence   int    `json:"leadingSilence"` // milliseconds
	RequireClient    string `json:"requireClient"`
	FinalState       string `json:"finalState"`

	// RandomFrames[n] is the row count of random-walk slot n (1..9), zero
	// when the slot is unused
	RandomFrames [10]int `json:"-"`
}

// Parse decodes and validates a descriptor
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	for n := 1; n <= 9; n++ {
		s := gjson.GetBytes(data, "random"+strconv.Itoa(n))
		if !s.Exists() || s.String() == "" {
			continue
		}
		head, _, _ := strings.Cut(s.String(), ",")
		frames, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil || frames < 1 {
			return nil, fmt.Errorf("%w: random%d %q", ErrInvalid, n, s.String())
		}
		d.RandomFrames[n] = frames
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Descriptor) validate() error {
	if d.FPS <= 0 {
		return fmt.Errorf("%w: fps %v", ErrInvalid, d.FPS)
	}
	if len(d.Frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrInvalid)
	}
	if len(d.Recipes) == 0 {
		return nil
	}
	for i, f := range d.Frames {
		if f.Recipe < 0 || f.Recipe >= len(d.Recipes) {
			return fmt.Errorf("%w: frame %d references recipe %d", ErrInvalid, i, f.Recipe)
		}
	}
	for r, recipe := range d.Recipes {
		for i, op := range recipe {
			if op.W < 0 || op.H < 0 {
				return fmt.Errorf("%w: recipe %d op %d has negative size", ErrInvalid, r, i)
			}
			if op.Process.IsRandomWalk() && d.RandomFrames[op.Process.RandomSlot()] == 0 {
				return fmt.Errorf("%w: recipe %d op %d uses undeclared random%d", ErrInvalid, r, i, op.Process.RandomSlot())
			}
		}
	}
	return nil
}

// Recipe returns the draw ops for frame i, nil for strip descriptors
func (d *Descriptor) Recipe(i int) []DrawOp {
	if len(d.Recipes) == 0 || i < 0 || i >= len(d.Frames) {
		return nil
	}
	return d.Recipes[d.Frames[i].Recipe]
}

// TextureName returns the name of texture idx, or "" when idx is unset
func (d *Descriptor) TextureName(idx int) string {
	if idx < 0 || idx >= len(d.Textures) {
		return ""
	}
	return d.Textures[idx]
}

// SecondaryTextures lists the textures that must be fetched separately,
// in descriptor order and without duplicates
func (d *Descriptor) SecondaryTextures() []string {
	seen := make(map[string]bool, len(d.Textures))
	var out []string
	for _, name := range d.Textures {
		if name == DefaultTexture || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Swaying reports whether this is an HD character with a global warp pass
func (d *Descriptor) Swaying() bool {
	return d.SwayLength != 0
}

// HasRandomWalk reports whether any random-walk slot is declared
func (d *Descriptor) HasRandomWalk() bool {
	for _, n := range d.RandomFrames {
		if n > 0 {
			return true
		}
	}
	return false
}

// Compat is the outcome of a version check
type Compat int

const (
	// CompatFull means the descriptor is fully supported
	CompatFull Compat = iota
	// CompatLimited means a newer minor version is required for some features
	CompatLimited
)

// CheckClient compares RequireClient against the engine version. A newer
// major version is breaking; a newer minor version is feature-limited.
func (d *Descriptor) CheckClient(client string) (Compat, error) {
	if d.RequireClient == "" {
		return CompatFull, nil
	}
	reqMajor, reqMinor := splitVersion(d.RequireClient)
	major, minor := splitVersion(client)
	switch {
	case reqMajor > major:
		return CompatFull, fmt.Errorf("%w: requires %s, have %s", ErrClientTooOld, d.RequireClient, client)
	case reqMajor == major && reqMinor > minor:
		return CompatLimited, nil
	default:
		return CompatFull, nil
	}
}

func splitVersion(v string) (int, int) {
	majorStr, minorStr, _ := strings.Cut(v, ".")
	major, _ := strconv.Atoi(strings.TrimSpace(majorStr))
	minor, _ := strconv.Atoi(strings.TrimSpace(minorStr))
	return major, minor
}

// UnmarshalJSON decodes the [recipe, recovery, command?] wire form
func (f *Frame) UnmarshalJSON(data []byte) error {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 2 {
		return fmt.Errorf("frame needs at least 2 elements, got %d", len(parts))
	}
	var recipe, recovery float64
	if err := json.Unmarshal(parts[0], &recipe); err != nil {
		return fmt.Errorf("frame recipe: %w", err)
	}
	if err := json.Unmarshal(parts[1], &recovery); err != nil {
		return fmt.Errorf("frame recovery: %w", err)
	}
	f.Recipe = int(recipe)
	f.Recovery = int(recovery)
	f.Command = nil

	if len(parts) > 2 {
		raw := parts[2]
		tag := gjson.ParseBytes(raw)
		switch {
		case tag.Type == gjson.String && tag.String() != "":
			f.Command = &Command{Type: tag.String(), Raw: append(jsoniter.RawMessage(nil), raw...)}
		case tag.IsObject():
			f.Command = &Command{Type: tag.Get("type").String(), Raw: append(jsoniter.RawMessage(nil), raw...)}
		}
	}
	return nil
}
