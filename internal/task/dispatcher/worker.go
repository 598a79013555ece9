package dispatcher

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	logx "taskschedd/pkg/logx"
)

func (d *Dispatcher) run(done chan struct{}) {
	defer close(done)
	d.log.Debug("worker started")
	for d.running() {
		if err := d.step(); err != nil {
			d.loopErrors.Add(1)
			d.log.Error("worker iteration failed", logx.Err(err))
			d.pause()
		}
	}
	d.log.Debug("worker exited")
}

func (d *Dispatcher) running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateRunning
}

// pause spaces out failing iterations. Stop still interrupts it.
func (d *Dispatcher) pause() {
	r := d.backoff.Reserve()
	if wait := r.Delay(); wait > 0 {
		d.wake.waitTimeout(wait)
	}
}

// step runs one iteration of the worker loop: wait for the earliest task, or
// run it when it is due.
func (d *Dispatcher) step() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	t, due := d.earliest()
	if t == nil {
		d.log.Trace("waiting for tasks")
		d.wake.wait()
		return nil
	}

	remaining := time.Until(due)
	if remaining < d.cfg.Tolerance {
		d.execute(t, due)
		return nil
	}

	d.log.Trace("waiting for next task", logx.String("task", t.ID), logx.Duration("wait", remaining))
	if d.wake.waitTimeout(remaining) {
		d.log.Trace("woken early")
	}
	return nil
}

func (d *Dispatcher) earliest() (*Task, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.store.peek()
	if t == nil {
		return nil, time.Time{}
	}
	return t, t.Due
}

// execute removes t from the store, runs it, and re-inserts it when it recurs.
// due is the due time observed when t was picked.
func (d *Dispatcher) execute(t *Task, due time.Time) {
	d.mu.Lock()
	// t may have been removed or moved since it was picked.
	if !t.Due.Equal(due) || !d.store.remove(t) {
		d.mu.Unlock()
		return
	}
	started := time.Now()
	d.inflight = t
	d.inflightSince = started
	d.inflightRemoved = false
	d.mu.Unlock()

	runID := uuid.NewString()
	d.log.Debug("task started", logx.String("task", t.ID), logx.String("run", runID), logx.Duration("late", started.Sub(due)))
	d.publish(EventRunStarted, TaskEvent{RunID: runID, ID: t.ID, Due: due, Started: started})

	err := runAction(t.Action)
	took := time.Since(started)
	d.executed.Add(1)

	ev := TaskEvent{RunID: runID, ID: t.ID, Due: due, Started: started, Duration: took}
	if err != nil {
		d.failed.Add(1)
		ev.Error = err.Error()
		fields := []logx.Field{logx.String("task", t.ID), logx.String("run", runID), logx.Duration("took", took), logx.Err(err)}
		if pe, ok := err.(*PanicError); ok {
			fields = append(fields, logx.Stack(pe.Stack))
		}
		d.log.Error("task failed", fields...)
		d.publish(EventFailed, ev)
	} else {
		d.log.Debug("task completed", logx.String("task", t.ID), logx.String("run", runID), logx.Duration("took", took))
		d.publish(EventCompleted, ev)
	}

	d.mu.Lock()
	removed := d.inflightRemoved
	d.inflight = nil
	d.inflightSince = time.Time{}
	d.inflightRemoved = false
	next, ok := time.Time{}, false
	if !removed {
		if next, ok = t.NextDue(due); ok {
			t.Due = next
			d.store.insert(t)
		}
	}
	d.mu.Unlock()

	if ok {
		d.rescheduled.Add(1)
		d.log.Debug("task rescheduled", logx.String("task", t.ID), logx.Time("next", next))
		d.publish(EventRescheduled, TaskEvent{ID: t.ID, Due: due, Next: next})
	}
}

// runAction calls a, turning a panic into a *PanicError.
func runAction(a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return a()
}
