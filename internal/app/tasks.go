package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"taskschedd/internal/config"
	"taskschedd/internal/task/dispatcher"
	"taskschedd/internal/task/schedule"
	logx "taskschedd/pkg/logx"
)

const clockFormat = "2006-01-02 15:04:05"

// ActionFactory builds the action run for a configured task.
type ActionFactory func(tc config.TaskConfig) dispatcher.Action

// PrintAction returns the default action: it writes the current time, the
// task id and its message to w.
func PrintAction(w io.Writer) ActionFactory {
	return func(tc config.TaskConfig) dispatcher.Action {
		id := strings.TrimSpace(tc.ID)
		msg := strings.TrimSpace(tc.Message)
		return func() error {
			line := time.Now().Format(clockFormat) + " [" + id + "]"
			if msg != "" {
				line += " " + msg
			}
			_, err := fmt.Fprintln(w, line)
			return err
		}
	}
}

// buildTask turns a task entry into a dispatcher task. Interval tasks first
// run after tc.FirstDelay(); cron tasks at their next trigger after now.
func buildTask(tc config.TaskConfig, action dispatcher.Action, now time.Time) (*dispatcher.Task, error) {
	ps, err := schedule.Parse(tc.Schedule)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", tc.ID, err)
	}
	every, sched := ps.Recurrence()
	t := &dispatcher.Task{
		ID:         strings.TrimSpace(tc.ID),
		Action:     action,
		Recurrence: every,
		Schedule:   sched,
	}
	if ps.Kind == schedule.KindCron {
		t.Due = ps.First(now)
	} else {
		t.Due = now.Add(tc.FirstDelay())
	}
	return t, nil
}

// registerTasks schedules every enabled entry of tasks. Failures are logged
// and skipped so one bad entry does not block the rest.
func (a *App) registerTasks(tasks []config.TaskConfig) int {
	now := time.Now()
	n := 0
	for _, tc := range tasks {
		if tc.Disabled {
			a.log.Debug("task disabled; skipping", logx.String("task", tc.ID))
			continue
		}
		t, err := buildTask(tc, a.actions(tc), now)
		if err != nil {
			a.log.Warn("task not registered", logx.String("task", tc.ID), logx.Err(err))
			continue
		}
		// Due belongs to the dispatcher once added.
		first := t.Due
		if err := a.disp.AddTask(t); err != nil {
			a.log.Warn("task not registered", logx.String("task", tc.ID), logx.Err(err))
			continue
		}
		a.log.Info("task registered",
			logx.String("task", tc.ID),
			logx.String("schedule", tc.Schedule),
			logx.Time("first", first),
		)
		n++
	}
	return n
}

// reconcileTasks applies a task diff: removed and changed ids are
// unscheduled, then added and changed ids are registered again.
func (a *App) reconcileTasks(changes config.TaskChanges, cfg *config.Config) {
	for _, id := range append(append([]string(nil), changes.Removed...), changes.Changed...) {
		if a.disp.RemoveTaskByID(id) {
			a.log.Info("task unscheduled", logx.String("task", id))
		}
	}

	want := make(map[string]struct{}, len(changes.Added)+len(changes.Changed))
	for _, id := range changes.Added {
		want[id] = struct{}{}
	}
	for _, id := range changes.Changed {
		want[id] = struct{}{}
	}
	if len(want) == 0 {
		return
	}
	var todo []config.TaskConfig
	for _, tc := range cfg.Tasks {
		if _, ok := want[strings.TrimSpace(tc.ID)]; ok {
			todo = append(todo, tc)
		}
	}
	a.registerTasks(todo)
}
