package dispatcher

import "time"

const (
	defaultTolerance   = time.Second
	defaultLoopBackoff = 250 * time.Millisecond
)

// Config controls the dispatcher.
type Config struct {
	// Tolerance is how early a task may run: a task due within Tolerance of
	// now runs immediately instead of sleeping for the remainder.
	// Defaults to 1s.
	Tolerance time.Duration

	// LoopBackoff is the minimum spacing between worker iterations that
	// failed outside a task action. Defaults to 250ms.
	LoopBackoff time.Duration

	// StallAfter marks the dispatcher unhealthy while one action has been
	// running longer than this. Zero disables the check.
	StallAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = defaultTolerance
	}
	if c.LoopBackoff <= 0 {
		c.LoopBackoff = defaultLoopBackoff
	}
	return c
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopping
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event types published on the bus.
const (
	EventStarted     = "dispatcher.started"
	EventStopped     = "dispatcher.stopped"
	EventAdded       = "task.added"
	EventRemoved     = "task.removed"
	EventUpdated     = "task.updated"
	EventRunStarted  = "task.started"
	EventCompleted   = "task.completed"
	EventFailed      = "task.failed"
	EventRescheduled = "task.rescheduled"
)

// TaskEvent is the bus payload for task lifecycle events.
// RunID, Started and Duration are set for run events only.
type TaskEvent struct {
	RunID    string        `json:"run_id,omitempty"`
	ID       string        `json:"id"`
	Due      time.Time     `json:"due"`
	Started  time.Time     `json:"started,omitzero"`
	Duration time.Duration `json:"duration,omitempty"`
	Next     time.Time     `json:"next,omitzero"`
	Error    string        `json:"error,omitempty"`
}

// TaskInfo is a read-only view of a pending task.
type TaskInfo struct {
	ID         string        `json:"id"`
	Due        time.Time     `json:"due"`
	Recurrence time.Duration `json:"recurrence_ns,omitempty"`
	Cron       bool          `json:"cron,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	State     string        `json:"state"`
	Tolerance time.Duration `json:"tolerance_ns"`

	Pending  int       `json:"pending"`
	Next     time.Time `json:"next,omitzero"`
	InFlight string    `json:"in_flight,omitempty"`

	// InFlightSince is when the running action started.
	InFlightSince time.Time `json:"in_flight_since,omitzero"`

	Executed    uint64 `json:"executed"`
	Failed      uint64 `json:"failed"`
	Rescheduled uint64 `json:"rescheduled"`
	LoopErrors  uint64 `json:"loop_errors"`
}
