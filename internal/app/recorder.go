package app

import (
	"context"
	"time"

	"taskschedd/internal/eventbus"
	"taskschedd/internal/storage"
	"taskschedd/internal/task/dispatcher"
	logx "taskschedd/pkg/logx"
)

// recordRuns appends every finished run seen on events to st until ctx ends
// or the channel closes. Runs already buffered when ctx ends are still
// written.
func recordRuns(ctx context.Context, events <-chan eventbus.Event, st storage.Store, log logx.Logger) error {
	// Writes outlive ctx so the final drain is not canceled.
	wbase := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return nil
					}
					appendRun(wbase, e, st, log)
				default:
					return nil
				}
			}
		case e, ok := <-events:
			if !ok {
				return nil
			}
			appendRun(wbase, e, st, log)
		}
	}
}

func appendRun(ctx context.Context, e eventbus.Event, st storage.Store, log logx.Logger) {
	ev, ok := e.Data.(dispatcher.TaskEvent)
	if !ok {
		return
	}
	rec := storage.RunRecord{
		RunID:    ev.RunID,
		TaskID:   ev.ID,
		Due:      ev.Due,
		Started:  ev.Started,
		Duration: ev.Duration,
		OK:       e.Type == dispatcher.EventCompleted,
		Error:    ev.Error,
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := st.AppendRun(wctx, rec); err != nil {
		log.Warn("run history append failed", logx.String("task", ev.ID), logx.String("run", ev.RunID), logx.Err(err))
	}
}
