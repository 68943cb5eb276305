package audio

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// Sink is where voices are mixed and played
type Sink interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	// Lock guards streamer state shared with the output goroutine
	Lock()
	Unlock()
	Close() error
}

// NewSink opens the named output
func NewSink(output string, sampleRate int) (Sink, error) {
	switch output {
	case OutputSpeaker, "":
		return NewSpeakerSink(sampleRate)
	case OutputNull:
		return NewNullSink(sampleRate), nil
	default:
		return nil, fmt.Errorf("%w: unknown output %q", ErrNoOutput, output)
	}
}

// SpeakerSink plays through the system audio device
type SpeakerSink struct {
	rate  beep.SampleRate
	mixer *beep.Mixer
}

// NewSpeakerSink initializes the speaker at the given sample rate
func NewSpeakerSink(sampleRate int) (*SpeakerSink, error) {
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(speakerBuffer)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	s := &SpeakerSink{rate: sr, mixer: &beep.Mixer{}}
	speaker.Play(s.mixer)
	return s, nil
}

func (s *SpeakerSink) SampleRate() beep.SampleRate { return s.rate }

func (s *SpeakerSink) Play(st beep.Streamer) {
	speaker.Lock()
	s.mixer.Add(st)
	speaker.Unlock()
}

func (s *SpeakerSink) Lock()   { speaker.Lock() }
func (s *SpeakerSink) Unlock() { speaker.Unlock() }

// Close stops all voices and releases the device
func (s *SpeakerSink) Close() error {
	speaker.Lock()
	s.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
	return nil
}

// NullSink mixes voices without an output device. Samples only move when
// Pull is called, which makes it suitable for headless runs and tests.
type NullSink struct {
	mu    sync.Mutex
	rate  beep.SampleRate
	mixer *beep.Mixer
}

// NewNullSink creates a device-less sink
func NewNullSink(sampleRate int) *NullSink {
	return &NullSink{rate: beep.SampleRate(sampleRate), mixer: &beep.Mixer{}}
}

func (s *NullSink) SampleRate() beep.SampleRate { return s.rate }

func (s *NullSink) Play(st beep.Streamer) {
	s.mu.Lock()
	s.mixer.Add(st)
	s.mu.Unlock()
}

func (s *NullSink) Lock()   { s.mu.Lock() }
func (s *NullSink) Unlock() { s.mu.Unlock() }

// Pull mixes the next n samples
func (s *NullSink) Pull(n int) [][2]float64 {
	out := make([][2]float64, n)
	s.mu.Lock()
	s.mixer.Stream(out)
	s.mu.Unlock()
	return out
}

// Voices returns the number of streamers still playing
func (s *NullSink) Voices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mixer.Len()
}

func (s *NullSink) Close() error {
	s.mu.Lock()
	s.mixer.Clear()
	s.mu.Unlock()
	return nil
}
