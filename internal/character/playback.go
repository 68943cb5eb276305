package character

import (
	"time"

	"github.com/google/uuid"
	"github.com/normanking/cortexsprite/internal/bus"
	"github.com/normanking/cortexsprite/internal/descriptor"
	"github.com/normanking/cortexsprite/internal/loader"
	"github.com/normanking/cortexsprite/internal/script"
	"github.com/normanking/cortexsprite/internal/warp"
	"github.com/tidwall/gjson"
)

// settleGap is the least time between one utterance's audio stopping and
// the next one's starting
const settleGap = 333 * time.Millisecond

// Embedded command that marks the apogee of a line
const commandApogee = "apogee"

// executeLocked loads and plays one utterance. callback runs when it has
// completed, whether it played, was stopped or failed.
func (c *Character) executeLocked(req Request, idle bool, callback func()) {
	if req.empty() && c.loaded {
		// nothing to fetch: just advance the script
		c.apogee = false
		c.apogeeLocked()
		if callback != nil {
			callback()
		}
		return
	}

	c.apogee = false
	if c.loading || c.animating {
		c.logger.Error().Err(ErrBusy).Str("do", req.Do).Msg("Request dropped")
		return
	}

	if c.walks.Active() && !idle {
		c.walks.Suppress()
	}
	if req.Say != "" {
		c.caption = script.Transcript(req.Say)
	}

	c.callback = callback
	c.stopping = false
	c.recovering = false
	c.landing = false
	c.frame, c.drawn = noFrame, -1
	c.animating = false
	c.setLoadingLocked(true)
	c.assets = nil

	gen := uuid.New()
	c.gen = gen
	c.job = c.loader.Load(c.ctx, c.loaderRequest(req, idle), func(a *loader.Assets, err error) {
		c.onLoaded(gen, a, err)
	})
	c.logger.Debug().
		Str("gen", gen.String()).
		Str("job", c.job.ID.String()).
		Str("do", req.Do).
		Bool("idle", idle).
		Msg("Executing")
}

func (c *Character) setLoadingLocked(loading bool) {
	c.loading = loading
	c.busy.Store(loading)
}

// onLoaded runs on the scheduler when a load finishes
func (c *Character) onLoaded(gen uuid.UUID, a *loader.Assets, err error) {
	c.mu.Lock()
	defer c.unlock()
	if c.closed || gen != c.gen || !c.loading {
		return
	}
	c.job = nil
	if err != nil {
		c.failLocked(err)
		return
	}
	c.assets = a
	c.textures.Base = a.Texture
	c.textures.Secondary = a.Secondary
	c.walks.Ensure(a.Descriptor)
	c.getItStartedLocked()
}

// failLocked aborts the current utterance. The error is sticky: idle
// behavior stays off, but queued utterances are still attempted.
func (c *Character) failLocked(err error) {
	c.logger.Error().Err(err).Msg("Service error")
	c.loadError = true
	c.setLoadingLocked(false)
	c.stopping = false
	c.caption = ""
	c.animateCompleteLocked()
	c.emit(bus.EventTypeServiceError, map[string]any{"error": err.Error()})
}

func (c *Character) getItStartedLocked() {
	d := c.assets.Descriptor
	compat, err := d.CheckClient(descriptor.ClientVersion)
	if err != nil {
		c.logger.Error().Err(err).Msg("Character requires newer client")
		c.setLoadingLocked(false)
		c.stopping = false
		c.animateCompleteLocked()
		return
	}
	if compat == descriptor.CompatLimited && !c.warnedLimited {
		c.warnedLimited = true
		c.logger.Warn().Str("requires", d.RequireClient).Msg("Character requires newer client to be fully functional")
	}

	c.setLoadingLocked(false)
	c.showCaptionLocked()
	if c.stopping {
		// stopped before it got going
		c.stopping = false
		c.animateCompleteLocked()
		return
	}
	c.animating = true
	c.starting = true

	c.settleTask.Cancel()
	c.settleTask = nil
	startAudio := c.assets.HasAudio()
	if gap := c.sched.Now().Sub(c.lastAudioStop); !c.lastAudioStop.IsZero() && gap < settleGap {
		c.settleTask = c.sched.After(settleGap-gap, "settle", func() {
			c.mu.Lock()
			defer c.unlock()
			c.settleTask = nil
			if c.animating && c.starting {
				c.checkDelayLocked(startAudio)
			}
		})
		return
	}
	c.checkDelayLocked(startAudio)
}

// checkDelayLocked starts the animation, holding the audio back for the
// descriptor's leading silence
func (c *Character) checkDelayLocked(startAudio bool) {
	c.delayTask.Cancel()
	c.delayTask = nil
	silence := c.assets.Descriptor.LeadingSilence
	if silence <= 0 || !startAudio {
		c.startActualLocked(startAudio)
		return
	}
	gen := c.gen
	c.delayTask = c.sched.After(time.Duration(silence)*time.Millisecond, "delay", func() {
		c.mu.Lock()
		defer c.unlock()
		c.delayTask = nil
		if gen == c.gen && c.animating {
			c.startActualLocked(true)
		}
	})
	c.startActualLocked(false)
}

func (c *Character) startActualLocked(startAudio bool) {
	d := c.assets.Descriptor
	c.frameInterval = time.Duration(float64(time.Second) / d.FPS)
	if !c.looping {
		c.looping = true
		c.then = c.sched.Now()
	}
	if startAudio {
		c.player.Start(c.assets.Audio)
		c.audioStarted = true
		c.emit(bus.EventTypeSpeakingStarted, map[string]any{"duration_ms": c.assets.Audio.Duration().Milliseconds()})
	}
	c.starting = false
	c.motion.Settle()
}

// tick is the frame clock. It runs on every scheduler frame and advances
// as many animation frames as the descriptor's rate calls for.
func (c *Character) tick() {
	c.mu.Lock()
	defer c.unlock()
	if c.closed || !c.looping || c.frameInterval <= 0 {
		return
	}
	now := c.sched.Now()
	elapsed := now.Sub(c.then)
	if elapsed <= c.frameInterval {
		return
	}
	c.then = now.Add(-(elapsed % c.frameInterval))
	skip := max(1, int(elapsed/c.frameInterval)) - 1

	if c.assets == nil {
		return
	}
	d := c.assets.Descriptor
	swaying := d.Swaying() && c.cfg.Sway
	if swaying {
		c.motion.UpdateSway(d, c.playCur != nil, 1+skip)
		if d.BreathCycle > 0 && c.cfg.Breath {
			c.motion.UpdateBreath(d, float64(c.frameInterval)/float64(time.Millisecond))
		}
	}

	advanced, completed := false, false
	if c.animating && !c.starting {
		if c.frame == descriptor.Terminal {
			completed = true
		} else {
			c.advanceLocked(d, skip)
			advanced = true
		}
	}

	if advanced {
		c.comp.DrawFrame(d, c.frame, &c.textures, c.stopping)
		c.drawn = c.frame
	}
	if swaying {
		c.comp.Present(warp.GlobalParams{
			Sway:        c.motion.Sway,
			Breath:      c.motion.Breath,
			SwayLength:  d.SwayLength,
			SwayBorder:  d.SwayBorder,
			SwayProcess: d.SwayProcess,
			Overhang:    d.ClothingOverhang,
		})
	}
	if advanced {
		c.afterDrawLocked(d)
	}

	if completed {
		c.animating = false
		c.stopping = false
		c.recovering = false
		c.frame = noFrame
		c.animateCompleteLocked()
	}
}

// advanceLocked moves toward frame+1+skip but never past the last frame,
// and while stopping never past a frame with a recovery marker
func (c *Character) advanceLocked(d *descriptor.Descriptor, skip int) {
	switch {
	case c.frame == noFrame:
		c.frame = 0
		return
	case c.landing:
		c.landing = false
		return
	}
	last := len(d.Frames) - 1
	target := c.frame + 1 + skip
	for c.frame < target && c.frame < last {
		r := d.Frames[c.frame].Recovery
		if r == descriptor.Terminal || (c.stopping && r != 0) {
			break
		}
		c.frame++
	}
}

// afterDrawLocked dispatches the drawn frame's command and follows its
// recovery marker
func (c *Character) afterDrawLocked(d *descriptor.Descriptor) {
	f := d.Frames[c.frame]
	if f.Command != nil {
		c.embeddedCommandLocked(f.Command)
	}
	switch {
	case f.Recovery == descriptor.Terminal || c.frame == len(d.Frames)-1:
		c.frame = descriptor.Terminal
	case c.stopping && f.Recovery != 0:
		if f.Recovery < 0 || f.Recovery >= len(d.Frames) || f.Recovery == c.frame {
			c.frame = descriptor.Terminal
			return
		}
		c.frame = f.Recovery
		c.landing = true
		c.recovering = true
	}
}

func (c *Character) embeddedCommandLocked(cmd *descriptor.Command) {
	if cmd.Type == commandApogee {
		if !c.apogee {
			c.apogeeLocked()
		}
		return
	}
	c.emit(bus.EventTypeEmbeddedCommand, map[string]any{
		"type":   cmd.Type,
		"detail": gjson.ParseBytes(cmd.Raw).Value(),
	})
}

// apogeeLocked marks the line's apogee and runs its follow-up. Follow-ups
// are published, never executed here.
func (c *Character) apogeeLocked() {
	c.apogee = true
	c.emit(bus.EventTypeEmbeddedCommand, map[string]any{"type": commandApogee})
	if c.playCur == nil {
		return
	}
	switch c.playCur.And {
	case script.AndLink:
		c.emit(bus.EventTypeNavigate, map[string]any{"url": c.playCur.URL, "target": c.playCur.Target})
	case script.AndCommand:
		c.emit(bus.EventTypeScriptCommand, map[string]any{"value": c.playCur.Value})
	case script.AndRun:
		c.emit(bus.EventTypeRunAction, map[string]any{"action": c.playCur.Value})
	}
}

func (c *Character) showCaptionLocked() {
	if c.caption == "" {
		return
	}
	c.emit(bus.EventTypeClosedCaption, map[string]any{"text": c.caption})
	c.caption = ""
}

// stopAllLocked fades the audio and asks the frame clock to head for the
// next recovery frame. An utterance still settling completes at once.
func (c *Character) stopAllLocked() {
	c.player.FadeOut()
	c.lastAudioStop = c.sched.Now()
	if c.loading || c.animating {
		c.stopping = true
	}
	c.delayTask.Cancel()
	c.delayTask = nil
	if c.settleTask.Cancel() {
		c.settleTask = nil
		c.animating = false
		c.starting = false
		c.stopping = false
		c.animateCompleteLocked()
	}
}

func (c *Character) animateCompleteLocked() {
	c.tracker.Action()
	if !c.loaded {
		c.loaded = true
		if c.textures.Default == nil && c.assets != nil && len(c.assets.Descriptor.Recipes) > 0 {
			c.textures.Default = c.assets.Texture
		}
		c.tracker.Started()
		c.characterLoadedLocked()
		if len(c.queue) > 0 {
			c.onPlayDoneLocked()
		}
		return
	}

	if c.audioStarted {
		c.audioStarted = false
		c.lastAudioStop = c.sched.Now()
	}
	if c.cfg.SaveState && c.assets != nil {
		c.initialState = c.assets.Descriptor.FinalState
	}
	if cb := c.callback; cb != nil {
		c.callback = nil
		cb()
	}
}

// onPlayDoneLocked runs after every utterance, caller-issued or idle
func (c *Character) onPlayDoneLocked() {
	if c.playCur != nil && !c.apogee {
		c.apogeeLocked()
	}
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.playCur = &next
		c.executeLocked(next, false, c.onPlayDoneLocked)
		return
	}
	if c.playCur != nil {
		c.playCur = nil
		c.emit(bus.EventTypePlayComplete, nil)
	}
}

func (c *Character) characterLoadedLocked() {
	c.logger.Info().Msg("Character loaded")
	c.emit(bus.EventTypeCharacterLoaded, nil)
	if c.visible {
		c.appearLocked()
	}
}

// appearLocked runs whenever the character becomes visible once loaded
func (c *Character) appearLocked() {
	c.emit(bus.EventTypeSceneVisible, nil)
	c.startIdleLocked()
	if c.appeared {
		return
	}
	c.appeared = true
	if !c.playShield {
		c.emit(bus.EventTypeAutoStart, nil)
	}
}
