// Package loader fetches and decodes the assets of one utterance: audio,
// the animation descriptor, the base texture and the secondary textures
// the descriptor names.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/normanking/cortexsprite/internal/audio"
	"github.com/normanking/cortexsprite/internal/descriptor"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Load phases
const (
	PhaseNone      = 0
	PhasePrimary   = 1
	PhaseSecondary = 2
)

// Poster delivers a callback onto the engine's thread
type Poster interface {
	Post(fn func())
}

// Assets is everything one utterance needs to play
type Assets struct {
	Plan       Plan
	Descriptor *descriptor.Descriptor
	Texture    *image.NRGBA
	Secondary  map[string]*image.NRGBA
	// Audio is nil when the request has nothing to say
	Audio *audio.Clip
}

// HasAudio reports whether the utterance plays sound
func (a *Assets) HasAudio() bool {
	return a.Audio != nil
}

// Job tracks one load
type Job struct {
	ID     uuid.UUID
	phase  atomic.Int32
	cancel context.CancelFunc
}

// Phase returns how far the load has progressed
func (j *Job) Phase() int {
	return int(j.phase.Load())
}

// Cancel abandons the load. Its callback still runs, with an error.
func (j *Job) Cancel() {
	j.cancel()
}

// Loader loads utterance assets
type Loader struct {
	fetcher Fetcher
	urls    *URLBuilder
	fetched *URLSet
	idle    *IdleCache
	poster  Poster
	logger  zerolog.Logger
}

// New creates a loader that posts completions through poster
func New(fetcher Fetcher, urls *URLBuilder, poster Poster, logger zerolog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		urls:    urls,
		fetched: NewURLSet(),
		idle:    NewIdleCache(),
		poster:  poster,
		logger:  logger.With().Str("component", "loader").Logger(),
	}
}

// URLs returns the loader's URL builder
func (l *Loader) URLs() *URLBuilder { return l.urls }

// Fetched returns the set of URLs fetched so far
func (l *Loader) Fetched() *URLSet { return l.fetched }

// IdleCache returns the decoded idle asset cache
func (l *Loader) IdleCache() *IdleCache { return l.idle }

// Fetch retrieves url and records it as fetched
func (l *Loader) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	l.fetched.Add(url)
	return body, nil
}

// Load starts loading req in the background. done is posted exactly once,
// with the assets or the error that aborted the load.
func (l *Loader) Load(ctx context.Context, req Request, done func(*Assets, error)) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{ID: uuid.New(), cancel: cancel}
	plan := l.urls.Plan(req)

	go func() {
		defer cancel()
		assets, err := l.load(ctx, job, plan)
		if err != nil {
			l.logger.Warn().Err(err).Str("job", job.ID.String()).Str("data", plan.Data).Msg("Load failed")
		}
		l.poster.Post(func() { done(assets, err) })
	}()
	return job
}

func (l *Loader) load(ctx context.Context, job *Job, plan Plan) (*Assets, error) {
	a := &Assets{Plan: plan, Secondary: make(map[string]*image.NRGBA)}

	g, gctx := errgroup.WithContext(ctx)
	if plan.Audio != "" {
		g.Go(func() error {
			body, err := l.Fetch(gctx, plan.Audio)
			if err != nil {
				return err
			}
			clip, err := audio.Decode(body)
			if err != nil {
				return fmt.Errorf("%w: audio: %w", ErrDecode, err)
			}
			a.Audio = clip
			return nil
		})
	}

	d, haveData := l.idle.Descriptor(plan.Data)
	tex, haveImage := l.idle.Image(plan.Image)
	if haveData && haveImage {
		a.Descriptor, a.Texture = d, tex
		l.logger.Debug().Str("job", job.ID.String()).Msg("Served from idle cache")
	} else {
		g.Go(func() error {
			body, err := l.Fetch(gctx, plan.Data)
			if err != nil {
				return err
			}
			d, err := descriptor.Parse(body)
			if err != nil {
				return fmt.Errorf("%w: data: %w", ErrDecode, err)
			}
			a.Descriptor = d
			return nil
		})
		g.Go(func() error {
			img, err := l.fetchImage(gctx, plan.Image)
			if err != nil {
				return err
			}
			a.Texture = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	job.phase.Store(PhasePrimary)

	if plan.Idle {
		l.idle.PutDescriptor(plan.Data, a.Descriptor)
		l.idle.PutImage(plan.Image, a.Texture)
	}

	// cached textures are filled in before any fetch goroutine starts
	var missing []string
	for _, name := range a.Descriptor.SecondaryTextures() {
		if img, ok := l.idle.Image(l.urls.Texture(name)); ok {
			a.Secondary[name] = img
			continue
		}
		missing = append(missing, name)
	}

	var mu sync.Mutex
	g, gctx = errgroup.WithContext(ctx)
	for _, name := range missing {
		name := name
		u := l.urls.Texture(name)
		g.Go(func() error {
			img, err := l.fetchImage(gctx, u)
			if err != nil {
				return err
			}
			mu.Lock()
			a.Secondary[name] = img
			mu.Unlock()
			if plan.Idle {
				l.idle.PutImage(u, img)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	job.phase.Store(PhaseSecondary)

	l.logger.Debug().
		Str("job", job.ID.String()).
		Bool("audio", a.HasAudio()).
		Int("textures", len(a.Secondary)).
		Msg("Assets loaded")
	return a, nil
}

func (l *Loader) fetchImage(ctx context.Context, url string) (*image.NRGBA, error) {
	body, err := l.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(body)
	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %w", ErrDecode, url, err)
	}
	return img, nil
}

// DecodeImage decodes PNG or JPEG bytes into an NRGBA bitmap
func DecodeImage(body []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if n, ok := img.(*image.NRGBA); ok {
		return n, nil
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out, nil
}
