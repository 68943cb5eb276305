package audio

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/normanking/cortexsprite/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rate = 8000

func halfLevelClip(t *testing.T, d time.Duration) *Clip {
	t.Helper()
	clip, err := Decode(testutil.WAV(d, rate, 16384))
	require.NoError(t, err)
	return clip
}

// level is the decoded amplitude of a clip's first sample
func level(t *testing.T, clip *Clip) float64 {
	t.Helper()
	samples := make([][2]float64, 1)
	n, ok := clip.streamer().Stream(samples)
	require.True(t, ok)
	require.Equal(t, 1, n)
	require.Greater(t, samples[0][0], 0.0)
	return samples[0][0]
}

func TestSniff(t *testing.T) {
	assert.Equal(t, FormatWAV, Sniff(testutil.WAV(10*time.Millisecond, rate, 0)))
	assert.Equal(t, FormatMP3, Sniff([]byte("ID3\x04\x00")))
	assert.Equal(t, FormatMP3, Sniff(nil))
}

func TestDecode_WAV(t *testing.T) {
	clip := halfLevelClip(t, 100*time.Millisecond)
	assert.Equal(t, FormatWAV, clip.Kind)
	assert.Equal(t, 800, clip.Len())
	assert.Equal(t, 100*time.Millisecond, clip.Duration())
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Decode([]byte("RIFF\x00\x00\x00\x00WAVEjunk"))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestNewSink(t *testing.T) {
	s, err := NewSink(OutputNull, rate)
	require.NoError(t, err)
	assert.IsType(t, &NullSink{}, s)

	_, err = NewSink("hdmi", rate)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestPlayer_PlaysAtMasterVolume(t *testing.T) {
	sink := NewNullSink(rate)
	p := NewPlayer(sink, 1, zerolog.Nop())

	clip := halfLevelClip(t, time.Second)
	ref := level(t, clip)
	p.Start(clip)
	assert.True(t, p.Playing())
	assert.Equal(t, StateSpeaking, p.State())

	out := sink.Pull(10)
	assert.InDelta(t, ref, out[9][0], 0.01)
	assert.InDelta(t, ref, out[9][1], 0.01)

	p.SetVolume(0.5)
	out = sink.Pull(10)
	assert.InDelta(t, ref/2, out[9][0], 0.01)

	p.SetVolume(0)
	out = sink.Pull(10)
	assert.Equal(t, 0.0, out[9][0])

	p.SetVolume(3)
	assert.Equal(t, 1.0, p.Volume())
}

func TestPlayer_FadeOutIsExponential(t *testing.T) {
	sink := NewNullSink(rate)
	p := NewPlayer(sink, 1, zerolog.Nop())
	var finished atomic.Int32
	p.OnFinished(func() { finished.Add(1) })

	assert.False(t, p.FadeOut(), "nothing playing yet")

	clip := halfLevelClip(t, time.Second)
	ref := level(t, clip)
	p.Start(clip)
	require.True(t, p.FadeOut())

	// One time constant in, the level is 1/e of where it started.
	out := sink.Pull(int(fadeTimeConstant.Seconds() * rate))
	assert.InDelta(t, ref/math.E, out[len(out)-1][0], 0.01)
	assert.True(t, p.Playing())

	sink.Pull(2000)
	assert.False(t, p.Playing())
	assert.Equal(t, int32(1), finished.Load())
	assert.Equal(t, 0, sink.Voices())
	assert.False(t, p.FadeOut())
}

func TestPlayer_FinishesAtEndOfClip(t *testing.T) {
	sink := NewNullSink(rate)
	p := NewPlayer(sink, 1, zerolog.Nop())
	var finished atomic.Int32
	p.OnFinished(func() { finished.Add(1) })

	p.Start(halfLevelClip(t, 50*time.Millisecond))
	sink.Pull(400)
	sink.Pull(10)
	assert.False(t, p.Playing())
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, int32(1), finished.Load())
}

func TestPlayer_StartCutsPreviousVoice(t *testing.T) {
	sink := NewNullSink(rate)
	p := NewPlayer(sink, 1, zerolog.Nop())

	clip := halfLevelClip(t, time.Second)
	ref := level(t, clip)
	p.Start(halfLevelClip(t, time.Second))
	p.Start(clip)
	out := sink.Pull(10)
	assert.InDelta(t, ref, out[9][0], 0.01, "only one voice is audible")
	assert.Equal(t, 1, sink.Voices())
}

func TestPlayer_Release(t *testing.T) {
	sink := NewNullSink(rate)
	p := NewPlayer(sink, 1, zerolog.Nop())

	p.Start(halfLevelClip(t, time.Second))
	p.Release()
	assert.False(t, p.Playing())

	out := sink.Pull(10)
	assert.Equal(t, 0.0, out[9][0])
	assert.Equal(t, 0, sink.Voices())
	require.NoError(t, p.Close())
}

func TestPlayer_Resamples(t *testing.T) {
	sink := NewNullSink(2 * rate)
	p := NewPlayer(sink, 1, zerolog.Nop())

	clip := halfLevelClip(t, time.Second)
	ref := level(t, clip)
	p.Start(clip)
	out := sink.Pull(1000)
	assert.InDelta(t, ref, out[500][0], 0.05)
}
