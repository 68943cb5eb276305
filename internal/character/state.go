package character

// State is the phase of the playback state machine
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateSettling   State = "settling"   // holding back-to-back audio apart
	StateDelaying   State = "delaying"   // animating, audio held for the leading silence
	StateStarting   State = "starting"
	StateAnimating  State = "animating"
	StateStopping   State = "stopping"   // heading for the next recovery frame
	StateRecovering State = "recovering" // playing out from a recovery frame
)

// noFrame marks an utterance whose first frame has not been drawn
const noFrame = -2

// stateLocked derives the public state from the playback flags
func (c *Character) stateLocked() State {
	switch {
	case c.loading:
		return StateLoading
	case !c.animating:
		return StateIdle
	case c.settleTask.Pending():
		return StateSettling
	case c.starting:
		return StateStarting
	case c.stopping && c.recovering:
		return StateRecovering
	case c.stopping:
		return StateStopping
	case c.delayTask.Pending():
		return StateDelaying
	default:
		return StateAnimating
	}
}
