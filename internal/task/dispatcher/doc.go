// Package dispatcher runs one-shot and recurring tasks at their due time on a
// single background worker.
//
// # Overview
//
// Tasks are kept in a store ordered by due time. The worker peeks the earliest
// task, sleeps until it is due, runs it, and re-inserts it when it recurs.
// The sleep is interruptible: AddTask wakes the worker only when the new task
// becomes the earliest, and Stop wakes it to exit. Nothing polls.
//
// # Execution
//
// Tasks run sequentially on the worker goroutine, in ascending due-time order.
// A task whose due time is within the configured tolerance of now is treated as
// due. A failing (or panicking) task is logged and, when recurring, still
// rescheduled for its next occurrence. A long-running task delays every task
// behind it; actions that need parallelism should start their own goroutines.
//
// # Lifecycle
//
// New -> Start -> Stop. Start is idempotent; Stop blocks until the worker has
// exited and is a no-op when the dispatcher was never started. A stopped
// dispatcher is not restarted: construct a new one instead.
package dispatcher
