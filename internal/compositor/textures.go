package compositor

import (
	"image"

	"github.com/normanking/cortexsprite/internal/descriptor"
)

// Textures is the texture set of one utterance plus the character's frozen
// default texture
type Textures struct {
	Base      *image.NRGBA
	Secondary map[string]*image.NRGBA
	// Default is the first texture ever loaded for the character. It stays
	// fixed for the character's lifetime and backs the "default" name.
	Default *image.NRGBA
}

// Resolve returns the bitmap for a texture name. Unknown names fall back
// to the base texture.
func (t *Textures) Resolve(name string) *image.NRGBA {
	if name == descriptor.DefaultTexture && t.Default != nil {
		return t.Default
	}
	if img, ok := t.Secondary[name]; ok && img != nil {
		return img
	}
	return t.Base
}
