package dispatcher

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Action is the work a task performs. A returned error (or a panic) marks the
// run as failed; it never stops the dispatcher.
type Action func() error

// Func adapts a function without an error result.
func Func(fn func()) Action {
	if fn == nil {
		return nil
	}
	return func() error {
		fn()
		return nil
	}
}

// Task is a unit of work due at a point in time.
//
// Recurrence and Schedule are the two recurring variants: when Schedule is set
// the next due time is Schedule.Next(last), otherwise a positive Recurrence
// advances the due time by that interval. With neither, the task runs once.
//
// Once a task has been added, Due belongs to the dispatcher. Change it with
// Dispatcher.UpdateTask, never by assigning the field.
type Task struct {
	ID         string
	Due        time.Time
	Action     Action
	Recurrence time.Duration
	Schedule   cron.Schedule
}

// NewTask returns a task running action at due, repeating every recurrence
// (0 for a one-shot task).
func NewTask(action Action, due time.Time, recurrence time.Duration, id string) *Task {
	return &Task{
		ID:         id,
		Due:        due,
		Action:     action,
		Recurrence: recurrence,
	}
}

// Recurring reports whether the task is re-inserted after it runs.
func (t *Task) Recurring() bool {
	return t.Schedule != nil || t.Recurrence > 0
}

// NextDue returns the due time following last, or false for a one-shot task.
func (t *Task) NextDue(last time.Time) (time.Time, bool) {
	if t.Schedule != nil {
		next := t.Schedule.Next(last)
		if next.IsZero() {
			return time.Time{}, false
		}
		return next, true
	}
	if t.Recurrence > 0 {
		return last.Add(t.Recurrence), true
	}
	return time.Time{}, false
}

func (t *Task) validate() error {
	if t == nil {
		return ErrNilTask
	}
	if t.Action == nil {
		return ErrNilAction
	}
	if t.Recurrence < 0 {
		return ErrNegativeRecurrence
	}
	return nil
}

func (t *Task) info() TaskInfo {
	return TaskInfo{
		ID:         t.ID,
		Due:        t.Due,
		Recurrence: t.Recurrence,
		Cron:       t.Schedule != nil,
	}
}
