// Package preload fetches the assets of anticipated utterances in the
// background, one URL at a time, so playback does not wait on the network.
package preload

import (
	"context"
	"sync"
	"time"

	"github.com/normanking/cortexsprite/internal/descriptor"
	"github.com/normanking/cortexsprite/internal/loader"
	"github.com/normanking/cortexsprite/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultInterval is the pause between background fetches
const DefaultInterval = 100 * time.Millisecond

// Preloader is a de-duplicating FIFO of URLs fetched in the background
type Preloader struct {
	mu       sync.Mutex
	loader   *loader.Loader
	sched    *scheduler.Scheduler
	limiter  *rate.Limiter
	interval time.Duration

	queue    []string
	queued   map[string]bool
	inflight string
	timer    *scheduler.Task
	enabled  bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	busy       func() bool
	onComplete func()
	logger     zerolog.Logger
}

// New creates an enabled preloader that fetches through ld
func New(ld *loader.Loader, sched *scheduler.Scheduler, logger zerolog.Logger) *Preloader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Preloader{
		loader:   ld,
		sched:    sched,
		limiter:  rate.NewLimiter(rate.Every(DefaultInterval), 1),
		interval: DefaultInterval,
		queued:   make(map[string]bool),
		enabled:  true,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With().Str("component", "preload").Logger(),
	}
}

// SetEnabled turns background fetching on or off. URLs are still queued
// while disabled.
func (p *Preloader) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	if enabled {
		p.kickLocked()
	}
}

// SetBusy registers a check that defers fetching, e.g. while an utterance
// is loading
func (p *Preloader) SetBusy(fn func() bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = fn
}

// OnComplete registers a callback for when the queue drains
func (p *Preloader) OnComplete(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onComplete = fn
}

// Request queues every asset of req
func (p *Preloader) Request(req loader.Request) {
	p.Enqueue(p.loader.URLs().Plan(req).URLs()...)
}

// Enqueue queues urls that have not been fetched or queued already
func (p *Preloader) Enqueue(urls ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	fetched := p.loader.Fetched()
	for _, u := range urls {
		if u == "" || fetched.Has(u) || p.queued[u] || p.inflight == u {
			continue
		}
		p.queue = append(p.queue, u)
		p.queued[u] = true
	}
	p.kickLocked()
}

// Pending returns the number of queued URLs
func (p *Preloader) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Active reports whether anything is queued or being fetched
func (p *Preloader) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) > 0 || p.inflight != ""
}

// Reset drops the queue. An in-flight fetch finishes but is discarded.
func (p *Preloader) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	p.queued = make(map[string]bool)
	p.inflight = ""
	p.timer.Cancel()
	p.timer = nil
}

// Close stops preloading and waits for the in-flight fetch
func (p *Preloader) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Reset()
	p.cancel()
	p.wg.Wait()
}

func (p *Preloader) kickLocked() {
	if p.timer.Pending() || !p.enabled || p.closed || len(p.queue) == 0 {
		return
	}
	p.timer = p.sched.After(p.interval, "preload", p.next)
}

// next starts the next fetch. It runs on the scheduler.
func (p *Preloader) next() {
	p.mu.Lock()
	p.timer = nil
	busy := p.busy
	p.mu.Unlock()

	deferred := busy != nil && busy()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight != "" || p.closed {
		return
	}
	if deferred {
		p.kickLocked()
		return
	}
	if len(p.queue) == 0 {
		return
	}
	now := p.sched.Now()
	if r := p.limiter.ReserveN(now, 1); r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		p.kickLocked()
		return
	}

	u := p.queue[0]
	p.queue = p.queue[1:]
	delete(p.queued, u)
	p.inflight = u

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		body, err := p.loader.Fetch(p.ctx, u)
		p.sched.Post(func() { p.fetched(u, body, err) })
	}()
}

// fetched handles a completed fetch on the scheduler
func (p *Preloader) fetched(u string, body []byte, err error) {
	p.mu.Lock()
	if p.inflight != u {
		p.mu.Unlock()
		return
	}
	p.inflight = ""

	if err != nil {
		p.logger.Warn().Err(err).Str("url", u).Msg("Preload failed")
	} else {
		p.logger.Debug().Str("url", u).Int("bytes", len(body)).Msg("Preloaded")
	}

	var textures []string
	if err == nil && loader.IsData(u) {
		gjson.GetBytes(body, "textures").ForEach(func(_, name gjson.Result) bool {
			if name.String() != descriptor.DefaultTexture {
				textures = append(textures, p.loader.URLs().Texture(name.String()))
			}
			return true
		})
	}
	p.mu.Unlock()

	p.Enqueue(textures...)

	p.mu.Lock()
	drained := len(p.queue) == 0
	p.kickLocked()
	onComplete := p.onComplete
	p.mu.Unlock()

	if drained && onComplete != nil {
		onComplete()
	}
}
