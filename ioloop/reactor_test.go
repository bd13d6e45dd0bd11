//go:build linux

package ioloop_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/applog"
	"github.com/momentics/httpcore/ioloop"
)

func newReactor(t *testing.T) *ioloop.Reactor {
	t.Helper()
	r, err := ioloop.New(applog.Nop{}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ioloop.New: %v", err)
	}
	return r
}

func runUntilIdle(t *testing.T, r *ioloop.Reactor, d time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	time.Sleep(d)
	r.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAddCallbackRunsOnLoopGoroutine(t *testing.T) {
	r := newReactor(t)
	var ran atomic.Bool
	r.AddCallback(func() { ran.Store(true) })
	runUntilIdle(t, r, 20*time.Millisecond)
	if !ran.Load() {
		t.Fatal("callback did not run")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestAddCallbackFromOtherGoroutine(t *testing.T) {
	r := newReactor(t)
	var wg sync.WaitGroup
	var count atomic.Int32
	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func() {
			defer wg.Done()
			r.AddCallback(func() { count.Add(1) })
		}()
	}
	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	wg.Wait()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count.Load() != 8 {
		t.Fatalf("expected 8 callbacks run, got %d", count.Load())
	}
}

func TestTimerOrderingByDeadlineThenInsertion(t *testing.T) {
	r := newReactor(t)
	var order []int
	var mu sync.Mutex
	record := func(n int) func() {
		return func() {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}
	}
	now := time.Now()
	r.AddCallback(func() {
		// Equal deadlines fire in insertion (monotonic id) order.
		r.AddTimeout(now.Add(10*time.Millisecond), record(1))
		r.AddTimeout(now.Add(10*time.Millisecond), record(2))
		r.AddTimeout(now.Add(5*time.Millisecond), record(0))
	})
	runUntilIdle(t, r, 60*time.Millisecond)
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("unexpected fire order: %v", order)
	}
	_ = r.Close()
}

func TestRemoveTimeoutSkipsCancelledEntry(t *testing.T) {
	r := newReactor(t)
	var fired atomic.Bool
	r.AddCallback(func() {
		h := r.AddTimeout(time.Now().Add(5*time.Millisecond), func() { fired.Store(true) })
		h.Cancel()
	})
	runUntilIdle(t, r, 30*time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled timer fired")
	}
	_ = r.Close()
}

func TestHandlerPanicDoesNotAbortLoop(t *testing.T) {
	r := newReactor(t)
	var afterPanicRan atomic.Bool
	r.AddCallback(func() { panic("boom") })
	r.AddCallback(func() { afterPanicRan.Store(true) })
	runUntilIdle(t, r, 20*time.Millisecond)
	if !afterPanicRan.Load() {
		t.Fatal("loop aborted after callback panic")
	}
	_ = r.Close()
}

// capturingLogger records Warn calls so tests can assert on PollThreshold
// crossing without depending on applog's own formatting.
type capturingLogger struct {
	applog.Nop
	warns []string
}

func (l *capturingLogger) Warn(msg string, fields ...api.Field) {
	l.warns = append(l.warns, msg)
}

func TestAddHandlerWarnsOnceAtPollThreshold(t *testing.T) {
	log := &capturingLogger{}
	r, err := ioloop.New(log, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ioloop.New: %v", err)
	}
	r.SetPollThreshold(2)

	rd1, wr1, err := pipeFDs()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer closeFD(rd1)
	defer closeFD(wr1)
	rd2, wr2, err := pipeFDs()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer closeFD(rd2)
	defer closeFD(wr2)

	noop := func(fd int, events api.Interest) {}
	if err := r.AddHandler(rd1, noop, api.InterestRead); err != nil {
		t.Fatalf("AddHandler 1: %v", err)
	}
	if len(log.warns) != 0 {
		t.Fatalf("expected no warning below threshold, got %v", log.warns)
	}
	if err := r.AddHandler(rd2, noop, api.InterestRead); err != nil {
		t.Fatalf("AddHandler 2: %v", err)
	}
	if len(log.warns) != 1 {
		t.Fatalf("expected exactly one warning at threshold, got %v", log.warns)
	}
	r.RemoveHandler(rd1)
	r.RemoveHandler(rd2)
	_ = r.Close()
}

func TestAddHandlerRejectsDuplicateFD(t *testing.T) {
	r := newReactor(t)
	// A pipe gives us a real, valid fd pair without needing a socket.
	rd, wr, err := pipeFDs()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer closeFD(rd)
	defer closeFD(wr)

	noop := func(fd int, events api.Interest) {}
	if err := r.AddHandler(rd, noop, api.InterestRead); err != nil {
		t.Fatalf("first AddHandler: %v", err)
	}
	if err := r.AddHandler(rd, noop, api.InterestRead); err != api.ErrHandlerExists {
		t.Fatalf("expected ErrHandlerExists, got %v", err)
	}
	r.RemoveHandler(rd)
	// Idempotent on repeated removal.
	r.RemoveHandler(rd)
	_ = r.Close()
}
