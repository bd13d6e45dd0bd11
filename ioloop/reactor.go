// File: ioloop/reactor.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Reactor is the single scheduling primitive described by §4.1: one
// goroutine drains a deferred-callback queue, fires due timers, then
// blocks on a readiness notifier and dispatches ready fds, repeating
// until stopped. Grounded step for step on
// original_source/pluggdapps/.Attic/evserver/httpioloop.py's start()
// method, with the epoll/waker plumbing taken from the teacher's
// reactor/epoll_reactor.go.

package ioloop

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/httpcore/api"
)

// Reactor owns exactly one readiness notifier, one timer heap and one
// callback queue, and must only be driven by the goroutine that called
// Run, except for AddCallback which is safe from any goroutine.
type Reactor struct {
	log api.Logger

	defaultPollTimeout time.Duration

	p poller
	w *waker

	mu       sync.Mutex // guards handlers, below
	handlers map[int]registeredHandler

	// pollThreshold is §6's PollThreshold: the registered-fd count at
	// which AddHandler logs a one-shot capacity warning. 0 disables it.
	pollThreshold int

	timers    timerHeap
	nextTimer uint64
	callbacks *callbackQueue
	pending   []pollEvent

	stopped int32 // atomic bool
	running int32 // atomic bool; distinct from stopped, which Run clears on exit
	closed  int32 // atomic bool
}

type registeredHandler struct {
	handler  api.FDHandler
	interest api.Interest
}

// timeoutHandle implements api.TimeoutHandle by wrapping a *timerEntry.
type timeoutHandle struct {
	entry *timerEntry
}

func (h timeoutHandle) Cancel() {
	h.entry.Cancel()
}

// New constructs a Reactor. defaultPollTimeout bounds how long a loop
// iteration may block when no timer is pending, matching §4.1 step 3's
// configured_default.
func New(log api.Logger, defaultPollTimeout time.Duration) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("ioloop: new reactor: %w", err)
	}
	w, err := newWaker()
	if err != nil {
		p.close()
		return nil, fmt.Errorf("ioloop: new reactor: %w", err)
	}
	r := &Reactor{
		log:                log,
		defaultPollTimeout: defaultPollTimeout,
		p:                  p,
		w:                  w,
		handlers:           make(map[int]registeredHandler),
		callbacks:          newCallbackQueue(),
	}
	if err := p.add(w.fd(), api.InterestRead|api.InterestError); err != nil {
		w.close()
		p.close()
		return nil, fmt.Errorf("ioloop: register waker: %w", err)
	}
	return r, nil
}

// SetPollThreshold configures the registered-fd count (§6's PollThreshold)
// at which AddHandler logs a capacity warning; 0 (the default) disables
// the check.
func (r *Reactor) SetPollThreshold(n int) { r.pollThreshold = n }

// AddHandler registers fd for interest ∪ InterestError. Fails if fd is
// already registered. Logs a one-shot warning the moment the registered
// handler count reaches the configured PollThreshold.
func (r *Reactor) AddHandler(fd int, handler api.FDHandler, interest api.Interest) error {
	r.mu.Lock()
	if _, exists := r.handlers[fd]; exists {
		r.mu.Unlock()
		return api.ErrHandlerExists
	}
	full := interest | api.InterestError
	r.handlers[fd] = registeredHandler{handler: handler, interest: full}
	count := len(r.handlers)
	r.mu.Unlock()
	if r.pollThreshold > 0 && count == r.pollThreshold {
		r.log.Warn("ioloop: registered fd count reached poll threshold",
			api.F("count", count), api.F("threshold", r.pollThreshold))
	}
	return r.p.add(fd, full)
}

// UpdateHandler replaces fd's interest with interest ∪ InterestError.
func (r *Reactor) UpdateHandler(fd int, interest api.Interest) error {
	r.mu.Lock()
	rh, exists := r.handlers[fd]
	if !exists {
		r.mu.Unlock()
		return nil
	}
	full := interest | api.InterestError
	rh.interest = full
	r.handlers[fd] = rh
	r.mu.Unlock()
	return r.p.modify(fd, full)
}

// RemoveHandler unregisters fd. Silent if fd was never registered.
func (r *Reactor) RemoveHandler(fd int) {
	r.mu.Lock()
	if _, exists := r.handlers[fd]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.handlers, fd)
	r.mu.Unlock()
	_ = r.p.remove(fd)
	// Drop any already-merged pending event for this fd (§4.1 tie-break:
	// "a fd removed while it has a pending event is silently dropped").
	for i := range r.pending {
		if r.pending[i].fd == fd {
			r.pending[i].fd = -1
		}
	}
}

// AddTimeout inserts a one-shot callback to run at or after deadline.
// Only safe to call from the reactor goroutine; deferred work from other
// goroutines must go through AddCallback.
func (r *Reactor) AddTimeout(deadline time.Time, cb api.Callback) api.TimeoutHandle {
	r.nextTimer++
	e := &timerEntry{deadline: deadline, id: r.nextTimer, callback: cb}
	heap.Push(&r.timers, e)
	return timeoutHandle{entry: e}
}

// AddCallback appends cb to the cross-goroutine deferred queue. This is
// the only Reactor method safe to call off the reactor goroutine. Go has
// no cheap way to test "am I the reactor goroutine", so unlike the
// Python original this always wakes the notifier when the queue
// transitions empty-to-non-empty; a self-wake while already running
// just costs one redundant non-blocking poll iteration.
func (r *Reactor) AddCallback(cb api.Callback) {
	if r.callbacks.push(cb) {
		r.w.wake()
	}
}

// Run executes the loop until Stop is observed. Re-entrant per §4.1: if
// Stop was called before Run, the stop flag is simply cleared and Run
// returns immediately without iterating.
func (r *Reactor) Run() error {
	if atomic.LoadInt32(&r.stopped) != 0 {
		atomic.StoreInt32(&r.stopped, 0)
		return nil
	}

	atomic.StoreInt32(&r.running, 1)
	defer atomic.StoreInt32(&r.running, 0)
	defer atomic.StoreInt32(&r.stopped, 0) // step 8: clear for reuse

	for {
		// Step 1-2: drain and execute deferred callbacks.
		for _, cb := range r.callbacks.drain() {
			r.invoke(cb)
		}

		// Step 3: fire due timers, clamp poll_timeout.
		pollTimeout := r.defaultPollTimeout
		now := time.Now()
		for {
			top := r.timers.peek()
			if top == nil {
				break
			}
			if top.callback == nil {
				heap.Pop(&r.timers)
				continue
			}
			if top.deadline.After(now) {
				break
			}
			heap.Pop(&r.timers)
			r.invoke(top.callback)
		}
		if top := r.timers.peek(); top != nil {
			if d := top.deadline.Sub(time.Now()); d > 0 {
				pollTimeout = d
			} else {
				pollTimeout = 0
			}
		}

		// Step 4: more work queued by a timer forces a non-blocking poll.
		if r.callbacks.length() > 0 {
			pollTimeout = 0
		}

		// Step 5.
		if atomic.LoadInt32(&r.stopped) != 0 {
			break
		}

		// Step 6: wait on the readiness notifier.
		events, err := r.p.wait(pollTimeout, r.pending[:0])
		if err != nil {
			return fmt.Errorf("ioloop: poll: %w", err)
		}
		r.pending = events

		// Step 7: drain pending events one at a time; reentrancy-safe
		// because handlers may mutate r.handlers during this loop.
		for i := 0; i < len(r.pending); i++ {
			ev := r.pending[i]
			if ev.fd < 0 {
				continue // dropped by a concurrent RemoveHandler
			}
			if ev.fd == r.w.fd() {
				r.w.consume()
				continue
			}
			r.mu.Lock()
			rh, exists := r.handlers[ev.fd]
			r.mu.Unlock()
			if !exists {
				continue
			}
			r.dispatch(rh.handler, ev.fd, ev.events)
		}
	}
	return nil
}

// Stop requests the loop to exit at the next opportunity and wakes it if
// it is currently blocked in the notifier wait.
func (r *Reactor) Stop() {
	atomic.StoreInt32(&r.stopped, 1)
	r.w.wake()
}

// Close releases the notifier and waker. Requires the loop be stopped.
func (r *Reactor) Close() error {
	if atomic.LoadInt32(&r.running) != 0 {
		return fmt.Errorf("ioloop: close called while running")
	}
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}
	err1 := r.w.close()
	err2 := r.p.close()
	if err1 != nil {
		return err1
	}
	return err2
}

// invoke runs a deferred or timer callback, catching and logging panics
// per §4.1's failure semantics (exceptions from handlers never abort the
// loop).
func (r *Reactor) invoke(cb api.Callback) {
	if cb == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("ioloop: callback panic", api.F("panic", rec))
		}
	}()
	cb()
}

func (r *Reactor) dispatch(handler api.FDHandler, fd int, events api.Interest) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("ioloop: handler panic", api.F("fd", fd), api.F("panic", rec))
		}
	}()
	handler(fd, events)
}
