package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"taskschedd/internal/eventbus"
	"taskschedd/internal/task/schedule"
	logx "taskschedd/pkg/logx"
)

// Dispatcher owns the ordered task store and the worker goroutine.
type Dispatcher struct {
	mu sync.Mutex

	cfg Config
	log logx.Logger
	bus eventbus.Bus

	// guarded by mu
	store         taskStore
	state         state
	done          chan struct{}
	inflight      *Task
	inflightSince time.Time
	// inflightRemoved is set when the running task is removed; it is then
	// not rescheduled.
	inflightRemoved bool

	wake    *wakeSignal
	backoff *rate.Limiter

	executed    atomic.Uint64
	failed      atomic.Uint64
	rescheduled atomic.Uint64
	loopErrors  atomic.Uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		wake:    newWakeSignal(),
		backoff: rate.NewLimiter(rate.Every(cfg.LoopBackoff), 1),
	}
}

// Start launches the worker. It is a no-op if the dispatcher is already
// running, and a stopped dispatcher is not restarted.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	switch d.state {
	case stateRunning:
		d.mu.Unlock()
		return
	case stateStopping, stateStopped:
		d.mu.Unlock()
		d.log.Warn("start ignored: dispatcher already stopped")
		return
	}
	d.state = stateRunning
	d.done = make(chan struct{})
	done := d.done
	pending := d.store.len()
	d.mu.Unlock()

	go d.run(done)

	d.log.Info("dispatcher started", logx.Int("tasks", pending), logx.Duration("tolerance", d.cfg.Tolerance))
	d.publish(EventStarted, TaskEvent{})
}

// Stop signals the worker to exit and waits for it. A task already running is
// not interrupted. Stop is a no-op if the dispatcher was never started, and
// must not be called from inside a task action.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	switch d.state {
	case stateNew, stateStopped:
		d.mu.Unlock()
		return
	case stateStopping:
		done := d.done
		d.mu.Unlock()
		<-done
		return
	}
	d.state = stateStopping
	done := d.done
	d.mu.Unlock()

	start := time.Now()
	d.log.Debug("dispatcher stopping")
	d.wake.signal()
	<-done

	d.mu.Lock()
	d.state = stateStopped
	pending := d.store.len()
	d.mu.Unlock()

	d.log.Info("dispatcher stopped", logx.Int("tasks", pending), logx.Duration("took", time.Since(start)))
	d.publish(EventStopped, TaskEvent{})
}

// Close stops the dispatcher and discards pending tasks.
func (d *Dispatcher) Close() error {
	d.Stop()
	d.mu.Lock()
	d.state = stateStopped
	d.store.clear()
	d.mu.Unlock()
	return nil
}

// Started reports whether the worker is running.
func (d *Dispatcher) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateRunning
}

// Healthy reports whether the worker is running and, when StallAfter is set,
// not stuck in a single action for longer than StallAfter.
func (d *Dispatcher) Healthy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != stateRunning {
		return false
	}
	if d.cfg.StallAfter <= 0 || d.inflight == nil {
		return true
	}
	return time.Since(d.inflightSince) < d.cfg.StallAfter
}

// AddTask schedules t. The worker is woken only when t becomes the earliest
// task; otherwise its current sleep cannot be affected.
func (d *Dispatcher) AddTask(t *Task) error {
	if err := t.validate(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.state == stateStopped {
		d.mu.Unlock()
		return ErrStopped
	}
	if d.inflight == t || d.store.contains(t) {
		d.mu.Unlock()
		return ErrAlreadyScheduled
	}
	prev := d.store.peek()
	var prevDue time.Time
	if prev != nil {
		prevDue = prev.Due
	}
	d.store.insert(t)
	due := t.Due
	d.mu.Unlock()

	d.log.Debug("task added", logx.String("task", t.ID), logx.Time("due", due), logx.Duration("recurrence", t.Recurrence))
	d.publish(EventAdded, TaskEvent{ID: t.ID, Due: due})

	if prev == nil || due.Before(prevDue) {
		d.wake.signal()
	}
	return nil
}

// AddAt schedules a one-shot action.
func (d *Dispatcher) AddAt(action Action, due time.Time) (*Task, error) {
	t := NewTask(action, due, 0, "")
	if err := d.AddTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddEvery schedules action at due, then every recurrence after that.
func (d *Dispatcher) AddEvery(action Action, due time.Time, recurrence time.Duration) (*Task, error) {
	t := NewTask(action, due, recurrence, "")
	if err := d.AddTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddSchedule parses spec (see package schedule) and schedules a recurring
// task whose first run is the schedule's first trigger after now.
func (d *Dispatcher) AddSchedule(id, spec string, action Action) (*Task, error) {
	ps, err := schedule.Parse(spec)
	if err != nil {
		return nil, err
	}
	every, sched := ps.Recurrence()
	now := time.Now()
	t := &Task{
		ID:         id,
		Due:        ps.First(now),
		Action:     action,
		Recurrence: every,
		Schedule:   sched,
	}
	if err := d.AddTask(t); err != nil {
		return nil, err
	}
	if d.log.Enabled(logx.LevelDebug) {
		d.log.Debug("schedule registered", logx.String("task", id), logx.String("spec", spec), logx.String("next", ps.Preview(now, 4)))
	}
	return t, nil
}

// RemoveTask unschedules t. It reports false if t is not scheduled.
// Removing the task that is currently running keeps it from being rescheduled.
func (d *Dispatcher) RemoveTask(t *Task) bool {
	if t == nil {
		return false
	}
	d.mu.Lock()
	ok := d.store.remove(t)
	if !ok && d.inflight == t && !d.inflightRemoved {
		d.inflightRemoved = true
		ok = true
	}
	d.mu.Unlock()

	if ok {
		d.log.Debug("task removed", logx.String("task", t.ID))
		d.publish(EventRemoved, TaskEvent{ID: t.ID})
	}
	return ok
}

// RemoveTaskByID unschedules the earliest task with the given id.
// It reports false if there is none.
func (d *Dispatcher) RemoveTaskByID(id string) bool {
	d.mu.Lock()
	t, ok := d.store.removeByID(id)
	if !ok && d.inflight != nil && d.inflight.ID == id && !d.inflightRemoved {
		t = d.inflight
		d.inflightRemoved = true
		ok = true
	}
	d.mu.Unlock()

	if ok {
		d.log.Debug("task removed", logx.String("task", t.ID))
		d.publish(EventRemoved, TaskEvent{ID: t.ID})
	}
	return ok
}

// UpdateTask moves t to a new due time. It reports false, and changes
// nothing, if t is not scheduled.
func (d *Dispatcher) UpdateTask(t *Task, due time.Time) bool {
	if t == nil {
		return false
	}
	d.mu.Lock()
	prev := d.store.peek()
	if !d.store.remove(t) {
		d.mu.Unlock()
		return false
	}
	t.Due = due
	d.store.insert(t)
	earliest := d.store.peek()
	d.mu.Unlock()

	d.log.Debug("task updated", logx.String("task", t.ID), logx.Time("due", due))
	d.publish(EventUpdated, TaskEvent{ID: t.ID, Due: due})

	if earliest != prev || earliest == t {
		d.wake.signal()
	}
	return true
}

// TaskCount returns the number of pending tasks.
func (d *Dispatcher) TaskCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.len()
}

// Tasks returns the pending tasks in due order.
func (d *Dispatcher) Tasks() []TaskInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TaskInfo, 0, d.store.len())
	d.store.each(func(t *Task) bool {
		out = append(out, t.info())
		return true
	})
	return out
}

func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	snap := Snapshot{
		State:     d.state.String(),
		Tolerance: d.cfg.Tolerance,
		Pending:   d.store.len(),
	}
	if next := d.store.peek(); next != nil {
		snap.Next = next.Due
	}
	if d.inflight != nil {
		snap.InFlight = d.inflight.ID
		snap.InFlightSince = d.inflightSince
	}
	d.mu.Unlock()

	snap.Executed = d.executed.Load()
	snap.Failed = d.failed.Load()
	snap.Rescheduled = d.rescheduled.Load()
	snap.LoopErrors = d.loopErrors.Load()
	return snap
}

func (d *Dispatcher) publish(typ string, ev TaskEvent) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
