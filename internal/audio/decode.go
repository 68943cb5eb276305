package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

// Clip is decoded utterance audio held in memory
type Clip struct {
	buf    *beep.Buffer
	Format beep.Format
	Kind   AudioFormat
}

// Duration returns the playing time of the clip
func (c *Clip) Duration() time.Duration {
	return c.Format.SampleRate.D(c.buf.Len())
}

// Len returns the number of samples in the clip
func (c *Clip) Len() int {
	return c.buf.Len()
}

// streamer returns a fresh streamer over the whole clip
func (c *Clip) streamer() beep.StreamSeeker {
	return c.buf.Streamer(0, c.buf.Len())
}

// Sniff reports the container format of data
func Sniff(data []byte) AudioFormat {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV
	}
	return FormatMP3
}

// Decode buffers WAV or MP3 data into a clip
func Decode(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidFormat)
	}

	kind := Sniff(data)
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch kind {
	case FormatWAV:
		stream, format, err = wav.Decode(bytes.NewReader(data))
	default:
		stream, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, kind, err)
	}
	defer stream.Close()

	buf := beep.NewBuffer(format)
	buf.Append(stream)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, kind, err)
	}
	return &Clip{buf: buf, Format: format, Kind: kind}, nil
}
