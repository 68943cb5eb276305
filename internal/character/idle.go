package character

import (
	"github.com/normanking/cortexsprite/internal/idle"
)

func (c *Character) startIdleLocked() {
	if c.idleTask.Pending() || c.closed {
		return
	}
	c.idleTask = c.sched.After(idle.CheckInterval, "idle", c.checkIdle)
}

func (c *Character) stopIdleLocked() {
	c.idleTask.Cancel()
	c.idleTask = nil
}

// checkIdle runs once a second while the character is shown and plays an
// idle behavior when one is due
func (c *Character) checkIdle() {
	c.mu.Lock()
	defer c.unlock()
	c.idleTask = nil
	if c.closed {
		return
	}

	eligible := c.loaded && !c.loading && !c.animating && !c.playShield && !c.loadError
	if name, ok := c.tracker.Check(c.sched.Now(), eligible, c.idles); ok {
		c.logger.Debug().Str("idle", name).Msg("Idle behavior")
		c.executeLocked(Request{Do: name}, true, c.onPlayDoneLocked)
	}
	c.startIdleLocked()
}
