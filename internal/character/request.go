package character

import (
	"github.com/normanking/cortexsprite/internal/loader"
	"github.com/normanking/cortexsprite/internal/script"
)

// maxPreloadSay is the longest speech text a preload request carries
const maxPreloadSay = 255

// Request is one utterance: an optional behavior, optional speech and an
// optional follow-up that runs when the utterance reaches its apogee
type Request struct {
	Do      string `json:"do,omitempty"`
	Say     string `json:"say,omitempty"`
	Audio   string `json:"audio,omitempty"` // recorded audio URL, used with Lipsync
	Lipsync string `json:"lipsync,omitempty"`

	And    string `json:"and,omitempty"` // link, command or run
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
}

// FromLine converts a parsed script line into a request
func FromLine(l script.Line) Request {
	return Request{Do: l.Do, Say: l.Say, And: l.And, URL: l.URL, Target: l.Target, Value: l.Value}
}

// FromText parses text into a list of requests
func FromText(text string) []Request {
	lines := script.FromText(text)
	reqs := make([]Request, 0, len(lines))
	for _, l := range lines {
		reqs = append(reqs, FromLine(l))
	}
	return reqs
}

func (r Request) empty() bool {
	return r.Do == "" && r.Say == "" && r.Audio == ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// loaderRequest resolves r against the current carried-over state
func (c *Character) loaderRequest(r Request, idle bool) loader.Request {
	return loader.Request{
		Do:           r.Do,
		Say:          r.Say,
		Audio:        r.Audio,
		Lipsync:      r.Lipsync,
		InitialState: c.initialState,
		Idle:         idle,
	}
}
