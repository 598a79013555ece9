package dispatcher

import (
	"testing"
	"time"
)

func TestWakeSignalRemembersOneSignal(t *testing.T) {
	t.Parallel()
	w := newWakeSignal()

	w.signal()
	w.signal()
	if !w.waitTimeout(10 * time.Millisecond) {
		t.Fatal("signal before wait was lost")
	}
	if w.waitTimeout(10 * time.Millisecond) {
		t.Fatal("signals did not coalesce into one slot")
	}
}

func TestWakeSignalWakesBlockedWaiter(t *testing.T) {
	t.Parallel()
	w := newWakeSignal()

	woke := make(chan bool, 1)
	go func() { woke <- w.waitTimeout(5 * time.Second) }()

	time.Sleep(20 * time.Millisecond)
	w.signal()
	select {
	case ok := <-woke:
		if !ok {
			t.Fatal("waitTimeout reported timeout after signal")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}

	done := make(chan struct{})
	go func() {
		w.wait()
		close(done)
	}()
	w.signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait not woken")
	}
}

func TestWakeSignalTimesOut(t *testing.T) {
	t.Parallel()
	w := newWakeSignal()
	start := time.Now()
	if w.waitTimeout(30 * time.Millisecond) {
		t.Fatal("unexpected signal")
	}
	if el := time.Since(start); el < 25*time.Millisecond {
		t.Fatalf("returned after %v, before the timeout", el)
	}
	if w.waitTimeout(0) {
		t.Fatal("zero timeout reported a signal")
	}
}
