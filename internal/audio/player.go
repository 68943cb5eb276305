package audio

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/rs/zerolog"
)

// voice is one utterance's audio with its own gain stage
type voice struct {
	src    beep.Streamer
	level  float64
	decay  float64
	fading bool
	cut    bool
	ended  atomic.Bool
	onEnd  func()
}

func (v *voice) Stream(samples [][2]float64) (int, bool) {
	if v.cut {
		v.finish()
		return 0, false
	}
	n, ok := v.src.Stream(samples)
	for i := 0; i < n; i++ {
		if v.fading {
			v.level *= v.decay
		}
		samples[i][0] *= v.level
		samples[i][1] *= v.level
	}
	if v.fading && v.level < silenceLevel {
		v.finish()
		return n, false
	}
	if !ok {
		v.finish()
	}
	return n, ok
}

func (v *voice) Err() error { return v.src.Err() }

func (v *voice) finish() {
	if v.ended.CompareAndSwap(false, true) && v.onEnd != nil {
		v.onEnd()
	}
}

// Player plays one utterance at a time through a sink
type Player struct {
	mu     sync.Mutex
	sink   Sink
	volume float64
	cur    *voice
	master *effects.Volume

	onFinished func()
	logger     zerolog.Logger
}

// NewPlayer creates a player with a master volume in [0,1]
func NewPlayer(sink Sink, volume float64, logger zerolog.Logger) *Player {
	return &Player{
		sink:   sink,
		volume: clampVolume(volume),
		logger: logger.With().Str("component", "audio").Logger(),
	}
}

// OnFinished registers a callback for when a voice stops producing sound,
// either because it ran out or because its fade reached silence. The
// callback runs on the output goroutine and must not block.
func (p *Player) OnFinished(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFinished = fn
}

// Start plays clip at full gain, cutting any previous voice
func (p *Player) Start(clip *Clip) {
	if clip == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cutLocked()

	var src beep.Streamer = clip.streamer()
	if clip.Format.SampleRate != p.sink.SampleRate() {
		src = beep.Resample(resampleQuality, clip.Format.SampleRate, p.sink.SampleRate(), src)
	}
	v := &voice{
		src:   src,
		level: 1,
		decay: math.Exp(-1 / (fadeTimeConstant.Seconds() * float64(p.sink.SampleRate()))),
		onEnd: p.onFinished,
	}
	master := &effects.Volume{Streamer: v, Base: 2}
	setVolume(master, p.volume)

	p.cur = v
	p.master = master
	p.sink.Play(master)
	p.logger.Debug().Dur("duration", clip.Duration()).Str("format", string(clip.Kind)).Msg("Voice started")
}

// FadeOut ramps the current voice to silence. It returns false if nothing
// was playing.
func (p *Player) FadeOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur == nil || p.cur.ended.Load() {
		return false
	}
	p.sink.Lock()
	p.cur.fading = true
	p.sink.Unlock()
	p.logger.Debug().Msg("Voice fading out")
	return true
}

// Release drops the current voice immediately
func (p *Player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutLocked()
}

func (p *Player) cutLocked() {
	if p.cur == nil {
		return
	}
	p.sink.Lock()
	p.cur.cut = true
	p.sink.Unlock()
	p.cur = nil
	p.master = nil
}

// Playing reports whether a voice is producing sound
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil && !p.cur.ended.Load()
}

// State returns the current audio state
func (p *Player) State() AudioState {
	if p.Playing() {
		return StateSpeaking
	}
	return StateIdle
}

// Volume returns the master volume
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume changes the master volume, including for the current voice
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(v)
	if p.master != nil {
		p.sink.Lock()
		setVolume(p.master, p.volume)
		p.sink.Unlock()
	}
}

// Close releases the voice and the sink
func (p *Player) Close() error {
	p.Release()
	return p.sink.Close()
}

// setVolume maps a linear volume onto the logarithmic volume effect
func setVolume(m *effects.Volume, v float64) {
	if v <= 0 {
		m.Silent = true
		m.Volume = 0
		return
	}
	m.Silent = false
	m.Volume = math.Log2(v)
}

func clampVolume(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
