// Package character is the playback session of one talking sprite: it
// loads utterances, runs them through the playback state machine on the
// scheduler thread, keeps the character alive with idle behaviors and
// publishes lifecycle events on the bus.
package character

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/normanking/cortexsprite/internal/audio"
	"github.com/normanking/cortexsprite/internal/bus"
	"github.com/normanking/cortexsprite/internal/compositor"
	"github.com/normanking/cortexsprite/internal/config"
	"github.com/normanking/cortexsprite/internal/idle"
	"github.com/normanking/cortexsprite/internal/loader"
	"github.com/normanking/cortexsprite/internal/preload"
	"github.com/normanking/cortexsprite/internal/scheduler"
	"github.com/normanking/cortexsprite/internal/warp"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingEndpoint is returned when no asset endpoint is configured
	ErrMissingEndpoint = errors.New("missing parameter endpoint")
	// ErrMissingCharacter is returned when no character id is configured
	ErrMissingCharacter = errors.New("missing parameter character")
	// ErrBusy reports an execute issued while another utterance is active
	ErrBusy = errors.New("execute called while loading or animating")
	// ErrNotStarted is returned by plays issued before Start
	ErrNotStarted = errors.New("character not started")
	// ErrStarted is returned when Start is called twice
	ErrStarted = errors.New("character already started")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("character closed")
)

// Deps are the collaborators a character runs on
type Deps struct {
	Scheduler *scheduler.Scheduler
	Fetcher   loader.Fetcher
	Sink      audio.Sink
	Bus       *bus.EventBus
	Volume    float64
	// Rand drives idle timing, sway and random walks. Nil uses a
	// time-seeded source.
	Rand   *rand.Rand
	Logger zerolog.Logger
}

// Character is one talking sprite. All methods are safe for concurrent
// use; playback itself advances on the scheduler thread.
type Character struct {
	mu sync.Mutex

	cfg     config.CharacterConfig
	sched   *scheduler.Scheduler
	loader  *loader.Loader
	preload *preload.Preloader
	tracker *idle.Tracker
	walks   *compositor.RandomWalks
	comp    *compositor.Compositor
	motion  *warp.Motion
	player  *audio.Player
	bus     *bus.EventBus
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// gates
	started    bool
	closed     bool
	visible    bool
	appeared   bool
	playShield bool
	idleType   string
	idles      []string

	// playback
	loaded     bool
	loading    bool
	animating  bool
	starting   bool
	stopping   bool
	recovering bool
	landing    bool
	loadError  bool
	busy       atomic.Bool

	gen      uuid.UUID
	job      *loader.Job
	assets   *loader.Assets
	textures compositor.Textures
	frame    int
	drawn    int
	callback func()

	playCur      *Request
	queue        []Request
	apogee       bool
	initialState string
	caption      string

	audioStarted  bool
	lastAudioStop time.Time
	warnedLimited bool

	looping       bool
	frameInterval time.Duration
	then          time.Time

	settleTask *scheduler.Task
	delayTask  *scheduler.Task
	idleTask   *scheduler.Task

	state State
}

// New creates a character. Nothing is fetched until Start.
func New(cfg config.CharacterConfig, deps Deps) (*Character, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.ID == "" {
		return nil, ErrMissingCharacter
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New(nil, deps.Logger)
	}
	if deps.Bus == nil {
		deps.Bus = bus.NewEventBus()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Fetcher == nil {
		f, err := loader.NewHTTPFetcher(30*time.Second, 256, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fetcher: %w", err)
		}
		deps.Fetcher = f
	}
	if deps.Sink == nil {
		deps.Sink = audio.NewNullSink(44100)
	}

	logger := deps.Logger.With().Str("component", "character").Str("character", cfg.ID).Logger()
	urls := &loader.URLBuilder{
		Endpoint:  cfg.Endpoint,
		Params:    queryParams(cfg),
		SaveState: cfg.SaveState,
	}
	ld := loader.New(deps.Fetcher, urls, deps.Scheduler, deps.Logger)
	walks := compositor.NewRandomWalks(deps.Rand)
	ctx, cancel := context.WithCancel(context.Background())

	c := &Character{
		cfg:        cfg,
		sched:      deps.Scheduler,
		loader:     ld,
		preload:    preload.New(ld, deps.Scheduler, deps.Logger),
		tracker:    idle.NewTracker(deps.Rand),
		walks:      walks,
		comp:       compositor.New(cfg.Width, cfg.Height, cfg.Format, walks),
		motion:     warp.NewMotion(deps.Rand),
		player:     audio.NewPlayer(deps.Sink, deps.Volume, deps.Logger),
		bus:        deps.Bus,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		visible:    cfg.Visible,
		playShield: cfg.PlayShield,
		frame:      noFrame,
		drawn:      -1,
		state:      StateIdle,
	}
	c.setIdleTypeLocked(cfg.IdleType)

	c.preload.SetEnabled(cfg.Preload)
	c.preload.SetBusy(c.busy.Load)
	c.preload.OnComplete(func() { c.emit(bus.EventTypePreloadComplete, nil) })
	c.player.OnFinished(func() { c.emit(bus.EventTypeSpeakingStopped, nil) })
	c.sched.OnFrame(c.tick)
	return c, nil
}

// queryParams are the character's own parameters sent with every request
func queryParams(cfg config.CharacterConfig) map[string]string {
	params := make(map[string]string, len(cfg.Params)+6)
	for k, v := range cfg.Params {
		params[k] = v
	}
	params["character"] = cfg.ID
	for k, v := range map[string]string{"version": cfg.Version, "format": cfg.Format, "voice": cfg.Voice} {
		if v != "" {
			params[k] = v
		}
	}
	if cfg.Width > 0 {
		params["width"] = strconv.Itoa(cfg.Width)
	}
	if cfg.Height > 0 {
		params["height"] = strconv.Itoa(cfg.Height)
	}
	return params
}

// Bus returns the bus the character publishes on
func (c *Character) Bus() *bus.EventBus { return c.bus }

// Start loads the character's resting pose. character.loaded is published
// when it has played.
func (c *Character) Start() error {
	c.mu.Lock()
	defer c.unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.started:
		return ErrStarted
	}
	c.started = true
	c.logger.Info().Str("endpoint", c.cfg.Endpoint).Msg("Loading character")
	c.executeLocked(Request{}, false, nil)
	return nil
}

// DynamicPlay plays req now if the character is free, otherwise queues it
// and starts preloading its assets. A nil request only publishes
// playback.complete.
func (c *Character) DynamicPlay(req *Request) error {
	c.mu.Lock()
	defer c.unlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.started:
		return ErrNotStarted
	}
	if req == nil {
		c.emit(bus.EventTypePlayComplete, nil)
		return nil
	}
	r := *req
	if c.busyLocked() && c.playCur == nil && len(c.queue) == 0 {
		// hurry a running idle along
		c.stopAllLocked()
	}
	if !c.busyLocked() {
		c.playCur = &r
		c.executeLocked(r, false, c.onPlayDoneLocked)
		return nil
	}
	c.queue = append(c.queue, r)
	c.preload.Request(c.loaderRequest(r, false))
	return nil
}

// PreloadDynamicPlay fetches the assets req would need without playing it
func (c *Character) PreloadDynamicPlay(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	req.Say = truncateRunes(req.Say, maxPreloadSay)
	c.preload.Request(c.loaderRequest(req, false))
}

// Stop winds the current utterance down to its next recovery frame, fades
// its audio and clears the play queue
func (c *Character) Stop() {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return
	}
	c.queue = nil
	c.stopAllLocked()
}

func (c *Character) busyLocked() bool {
	return c.loading || c.animating || c.stopping
}

// Playing reports whether a caller-issued utterance is in progress
func (c *Character) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playCur != nil
}

// PlayQueueLength returns the number of queued utterances
func (c *Character) PlayQueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Preloading reports whether background fetches are outstanding
func (c *Character) Preloading() bool {
	return c.cfg.Preload && c.preload.Pending() > 0
}

// State returns the playback state
func (c *Character) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// InitialState returns the state token the next utterance starts from
func (c *Character) InitialState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialState
}

// Visible reports whether the character is shown
func (c *Character) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Show makes the character visible and resumes idle behavior
func (c *Character) Show() {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return
	}
	c.visible = true
	if c.loaded {
		c.appearLocked()
	}
}

// Hide hides the character and suspends idle behavior
func (c *Character) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = false
	c.stopIdleLocked()
}

// PlayShield reports whether the play shield gate is up
func (c *Character) PlayShield() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playShield
}

// DismissPlayShield lowers the play shield and publishes playback.autostart
func (c *Character) DismissPlayShield() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.playShield {
		return
	}
	c.playShield = false
	c.emit(bus.EventTypeAutoStart, nil)
}

// SetIdleType switches between none, blink and normal idle behavior
func (c *Character) SetIdleType(t string) error {
	switch t {
	case idle.TypeNone, idle.TypeBlink, idle.TypeNormal:
	default:
		return fmt.Errorf("%w: idle type %q", config.ErrInvalid, t)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setIdleTypeLocked(t)
	return nil
}

func (c *Character) setIdleTypeLocked(t string) {
	c.idleType = t
	c.idles = idle.Expand(c.cfg.IdleData, t)
}

// IdleType returns the idle type
func (c *Character) IdleType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleType
}

// Volume returns the master volume
func (c *Character) Volume() float64 {
	return c.player.Volume()
}

// SetVolume sets the master volume in [0,1]
func (c *Character) SetVolume(v float64) {
	c.player.SetVolume(v)
}

// LoadError reports whether any load has failed. Idle behavior stays off
// once it has.
func (c *Character) LoadError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadError
}

// LastFrame returns the index of the last frame drawn, or -1
func (c *Character) LastFrame() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawn
}

// Snapshot returns a copy of the output surface
func (c *Character) Snapshot() *image.NRGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.comp.Snapshot()
}

// Close stops playback and timers, abandons in-flight loads and drops
// every cached asset. The character cannot be restarted.
func (c *Character) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.player.FadeOut()
	c.closed = true
	c.cancel()
	c.stopIdleLocked()
	c.settleTask.Cancel()
	c.delayTask.Cancel()
	c.settleTask, c.delayTask = nil, nil
	if c.job != nil {
		c.job.Cancel()
		c.job = nil
	}
	c.queue = nil
	c.playCur = nil
	c.callback = nil
	c.loaded, c.loading, c.animating, c.starting, c.stopping, c.recovering = false, false, false, false, false, false
	c.busy.Store(false)
	c.looping = false
	c.assets = nil
	c.textures = compositor.Textures{}
	c.frame, c.drawn = noFrame, -1
	c.initialState = ""
	c.tracker.Reset()
	c.walks.Reset()
	c.motion.Reset()
	c.comp.Reset()
	c.loader.IdleCache().Reset()
	c.loader.Fetched().Reset()
	c.mu.Unlock()

	c.preload.Close()
	err := c.player.Close()
	c.logger.Info().Msg("Character closed")
	return err
}

// unlock releases the lock, publishing playback.state_changed if the
// state moved
func (c *Character) unlock() {
	if st := c.stateLocked(); st != c.state {
		c.emit(bus.EventTypeStateChanged, map[string]any{"from": string(c.state), "to": string(st)})
		c.state = st
	}
	c.mu.Unlock()
}

// emit publishes an event on the scheduler thread, after the current
// callback returns
func (c *Character) emit(t bus.EventType, data map[string]any) {
	evt := bus.Event{Type: t, Data: data}
	c.sched.Post(func() { c.bus.PublishSync(evt) })
}
