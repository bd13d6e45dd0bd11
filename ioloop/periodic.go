// File: ioloop/periodic.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// PeriodicCallback repeatedly reschedules itself on a Reactor at a fixed
// period, correcting for drift the same way original_source's
// PeriodicCallback._schedule_next does: advance the next deadline by
// whole periods until it is back in the future, rather than always
// adding one period to "now" (which would slowly drift later under
// load).

package ioloop

import (
	"time"

	"github.com/momentics/httpcore/api"
)

// PeriodicCallback invokes fn roughly every period until Stop is called.
// It must be started from the reactor goroutine (it calls AddTimeout
// directly, which is not cross-goroutine safe).
type PeriodicCallback struct {
	reactor *Reactor
	period  time.Duration
	fn      func()
	handle  api.TimeoutHandle
	next    time.Time
	stopped bool
}

// NewPeriodicCallback constructs and arms a PeriodicCallback on r.
func NewPeriodicCallback(r *Reactor, period time.Duration, fn func()) *PeriodicCallback {
	p := &PeriodicCallback{reactor: r, period: period, fn: fn, next: time.Now()}
	p.scheduleNext(p.next)
	return p
}

func (p *PeriodicCallback) scheduleNext(now time.Time) {
	if p.stopped {
		return
	}
	p.next = p.next.Add(p.period)
	for !p.next.After(now) {
		p.next = p.next.Add(p.period)
	}
	p.handle = p.reactor.AddTimeout(p.next, p.run)
}

func (p *PeriodicCallback) run() {
	if p.stopped {
		return
	}
	now := time.Now()
	p.fn()
	p.scheduleNext(now)
}

// Stop cancels the pending timer and prevents further rescheduling.
func (p *PeriodicCallback) Stop() {
	p.stopped = true
	if p.handle != nil {
		p.handle.Cancel()
	}
}
