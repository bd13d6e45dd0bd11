// File: api/handler.go
// Package api defines the FD-readiness handler and interest-mask contract
// the Reactor dispatches against (§4.1).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Interest is a bitmask of readiness conditions a registered fd cares
// about. ERROR is implicit: the Reactor always ORs it into whatever a
// caller passes to AddHandler/UpdateHandler.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
	InterestError
)

func (i Interest) Read() bool  { return i&InterestRead != 0 }
func (i Interest) Write() bool { return i&InterestWrite != 0 }
func (i Interest) Error() bool { return i&InterestError != 0 }

// FDHandler is invoked by the Reactor when a registered fd becomes ready
// for one or more of its registered interests. events carries only the
// conditions that actually fired this round.
type FDHandler func(fd int, events Interest)

// Callback is a zero-argument deferred callback, as queued by
// Reactor.AddCallback and timer callbacks.
type Callback func()

// TimeoutHandle cancels a pending timer registered with AddTimeout. The
// entry is lazily removed: cancellation only clears its callback slot.
type TimeoutHandle interface {
	Cancel()
}
