// Package audio decodes utterance audio and plays it through a gain stage
// that can be faded out when playback is interrupted.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrNoOutput      = errors.New("audio output not available")
)

// AudioFormat represents audio encoding format
type AudioFormat string

const (
	FormatWAV AudioFormat = "wav"
	FormatMP3 AudioFormat = "mp3"
)

// AudioState represents the current playback state
type AudioState string

const (
	StateIdle     AudioState = "idle"
	StateSpeaking AudioState = "speaking"
)

// Output names accepted by NewSink
const (
	OutputSpeaker = "speaker"
	OutputNull    = "null"
)

const (
	// fadeTimeConstant is the exponential time constant of a stop fade
	fadeTimeConstant = 15 * time.Millisecond
	// silenceLevel is where a fading voice is considered silent
	silenceLevel = 1e-4
	// speakerBuffer is the latency of the speaker output
	speakerBuffer = 100 * time.Millisecond
	resampleQuality = 4
)
