// Package script converts authored text into an ordered list of lines, each
// an optional behavior plus optional speech, and derives closed-caption
// text from speech markup.
package script

import (
	"regexp"
	"strings"
)

// Line is one step of a script
type Line struct {
	Do  string `json:"do,omitempty"`
	Say string `json:"say,omitempty"`
	// And is the follow-up to run at the line's apogee: link, command or run
	And    string `json:"and,omitempty"`
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Follow-up kinds
const (
	AndLink    = "link"
	AndCommand = "command"
	AndRun     = "run"
)

// lookAtUser is the neutral behavior; it is dropped from parsed lines
const lookAtUser = "look-at-user"

// highLevelTags are the tag prefixes that mark text as an authored script
var highLevelTags = []string{
	"look-", "point-", "acknowledge", "agree", "disagree", "emphasize", "flirt", "greet", "smile",
	"think", "wink", "amused", "angry", "concerned", "confused", "doubtful", "frustrated", "sad",
	"surprised", "happy", "air-quote", "finger-", "gesture-", "palm-", "thumbs-", "custom-",
}

var (
	sentenceEnd = regexp.MustCompile(`([.!?]+ +)`)
	anyTag      = regexp.MustCompile(`\[[^\]]*\]`)
	captionTag  = regexp.MustCompile(`\[[^\[]*\]`)
	written     = regexp.MustCompile(`\[written\](.*?)\[/written\]`)
	spoken      = regexp.MustCompile(`\[spoken\].*?\[/spoken\]`)
	nonSpace    = regexp.MustCompile(`\S`)
	linkArgs    = regexp.MustCompile(`^"([^"]*)" +"([^"]*)"$`)
	commandArgs = regexp.MustCompile(`^"([^"]*)"$`)
)

// IsScript reports whether s contains any high-level behavior tag
func IsScript(s string) bool {
	for _, tag := range highLevelTags {
		if strings.Contains(s, "["+tag) {
			return true
		}
	}
	return false
}

// FromText converts text into script lines. Plain text is split into one
// line per sentence; tagged text yields one line per tag, with the speech
// that follows it.
//
//	"[look-right] Look over here. [look-at-user] See?"
//	=> [{Do: "look-right", Say: "Look over here."}, {Say: "See?"}]
//
// An unterminated trailing tag ends the script.
func FromText(s string) []Line {
	if !IsScript(s) {
		var lines []Line
		for _, sentence := range SentenceSplit(s) {
			lines = append(lines, Line{Say: sentence})
		}
		return lines
	}

	var lines []Line
	var cur Line
	tagEnd := -1
	for {
		tagStart := nextTag(s, tagEnd+1)

		if tagEnd != -1 {
			if tagStart != -1 {
				cur.Say = strings.TrimSpace(s[tagEnd+1 : tagStart])
			} else {
				cur.Say = strings.TrimSpace(s[tagEnd+1:])
			}
			if cur.Do == lookAtUser {
				cur.Do = ""
			}
			lines = append(lines, cur)
		} else if lead := strings.TrimSpace(s[:tagStart]); lead != "" {
			lines = append(lines, Line{Say: lead})
		}

		if tagStart == -1 {
			break
		}

		cur = Line{}
		rel := strings.Index(s[tagStart:], "]")
		if rel == -1 {
			break
		}
		tagEnd = tagStart + rel
		cur = parseTag(s[tagStart+1 : tagEnd])
	}
	return lines
}

func nextTag(s string, from int) int {
	if from > len(s) {
		return -1
	}
	best := -1
	for _, tag := range highLevelTags {
		if i := strings.Index(s[from:], "["+tag); i != -1 && (best == -1 || from+i < best) {
			best = from + i
		}
	}
	return best
}

// parseTag splits "behavior and follow-up args" into a line
func parseTag(tag string) Line {
	do, and, found := strings.Cut(tag, " and ")
	if !found {
		return Line{Do: tag}
	}

	l := Line{Do: do}
	kind, rest, hasArgs := strings.Cut(and, " ")
	if !hasArgs {
		l.And = and
		return l
	}
	l.And = kind
	rest = strings.TrimSpace(rest)
	switch kind {
	case AndLink:
		if m := linkArgs.FindStringSubmatch(rest); m != nil {
			l.URL, l.Target = m[1], m[2]
		}
	case AndCommand:
		if m := commandArgs.FindStringSubmatch(rest); m != nil {
			l.Value = m[1]
		}
	}
	return l
}

// SentenceSplit splits text after runs of sentence punctuation followed by
// spaces, keeping the punctuation and dropping empty pieces
func SentenceSplit(s string) []string {
	marked := sentenceEnd.ReplaceAllString(s+" ", "${1}\n")
	var out []string
	for _, piece := range strings.Split(marked, "\n") {
		if t := strings.TrimSpace(piece); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Transcript returns the closed-caption form of speech: [written] content
// is kept, [spoken] content and all other tags are removed
func Transcript(s string) string {
	s = written.ReplaceAllString(s, "${1}")
	s = spoken.ReplaceAllString(s, "")
	s = captionTag.ReplaceAllString(s, "")
	return strings.ReplaceAll(strings.TrimSpace(s), "  ", " ")
}

// HasSpeech reports whether s has anything to say once tags are removed
func HasSpeech(s string) bool {
	if s == "" {
		return false
	}
	return nonSpace.MatchString(anyTag.ReplaceAllString(s, ""))
}
