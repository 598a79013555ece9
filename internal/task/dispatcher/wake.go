package dispatcher

import "time"

// wakeSignal is a single-slot auto-reset event.
//
// A signal sent while nobody waits is kept for exactly one later wait, so a
// producer signaling between the worker's peek and its wait is never lost.
// Further signals before that wait coalesce into the same slot.
type wakeSignal struct {
	ch chan struct{}
}

func newWakeSignal() *wakeSignal {
	return &wakeSignal{ch: make(chan struct{}, 1)}
}

func (w *wakeSignal) signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// wait blocks until signaled.
func (w *wakeSignal) wait() {
	<-w.ch
}

// waitTimeout blocks until signaled or d elapses. It reports whether it was
// signaled.
func (w *wakeSignal) waitTimeout(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-w.ch:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ch:
		return true
	case <-t.C:
		return false
	}
}
