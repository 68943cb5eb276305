package loader

import (
	"net/url"
	"sort"
	"strings"

	"github.com/normanking/cortexsprite/internal/script"
)

// Artifact types selected by the type query parameter
const (
	TypeAudio = "audio"
	TypeData  = "data"
	TypeImage = "image"
)

// Request is what the loader needs to know about an utterance
type Request struct {
	Do      string
	Say     string
	Audio   string
	Lipsync string
	// InitialState is sent when state carryover is on
	InitialState string
	// Idle marks assets that may be served from the idle cache
	Idle bool
}

// Plan is the set of URLs one request resolves to
type Plan struct {
	// Audio is empty when the request has nothing to say
	Audio    string
	Data     string
	Image    string
	Recorded bool
	Idle     bool
}

// URLs returns the plan's URLs in fetch order
func (p Plan) URLs() []string {
	var urls []string
	if p.Audio != "" {
		urls = append(urls, p.Audio)
	}
	return append(urls, p.Image, p.Data)
}

// URLBuilder composes asset URLs. The same request always produces the
// same URL string so cache and preload lookups match.
type URLBuilder struct {
	Endpoint string
	// Params are the character's own query parameters
	Params    map[string]string
	SaveState bool
}

// Plan resolves req to its asset URLs
func (b *URLBuilder) Plan(req Request) Plan {
	var added []string
	if b.SaveState {
		added = append(added, "initialstate="+url.QueryEscape(req.InitialState))
	}
	added = append(added, "do="+url.QueryEscape(req.Do), "say="+url.QueryEscape(req.Say))

	p := Plan{Idle: req.Idle || strings.HasPrefix(req.Do, "idle")}
	if script.HasSpeech(req.Say) {
		if req.Audio != "" && req.Lipsync != "" {
			added = append(added, "lipsync="+url.QueryEscape(req.Lipsync))
			p.Audio = req.Audio
			p.Recorded = true
		} else {
			p.Audio = b.build(added, "type="+TypeAudio)
		}
	}
	p.Data = b.build(added, "type="+TypeData)
	p.Image = b.build(added, "type="+TypeImage)
	return p
}

// Texture returns the URL of a named secondary texture
func (b *URLBuilder) Texture(name string) string {
	return b.build(nil, "texture="+url.QueryEscape(name), "type="+TypeImage)
}

// IsData reports whether u fetches an animation descriptor
func IsData(u string) bool {
	return strings.HasSuffix(u, "type="+TypeData)
}

func (b *URLBuilder) build(added []string, extra ...string) string {
	keys := make([]string, 0, len(b.Params))
	for k := range b.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+len(added)+len(extra))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(b.Params[k]))
	}
	parts = append(parts, added...)
	parts = append(parts, extra...)

	sep := "?"
	if strings.Contains(b.Endpoint, "?") {
		sep = "&"
	}
	return b.Endpoint + sep + strings.Join(parts, "&")
}
