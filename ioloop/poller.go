// File: ioloop/poller.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// poller is the readiness-notifier abstraction the Reactor drives; Linux
// has a real epoll-backed implementation (poller_linux.go), matching the
// spec's "epoll on Linux" requirement. Grounded on the teacher's
// reactor/epoll_reactor.go and internal/transport/transport_linux.go,
// both already built on golang.org/x/sys.

package ioloop

import (
	"time"

	"github.com/momentics/httpcore/api"
)

// pollEvent is one readiness notification returned from a poller.wait.
type pollEvent struct {
	fd     int
	events api.Interest
}

// poller is the minimal readiness-notifier contract the Reactor needs.
// events passed to add/modify already have ERROR unioned in by the
// caller (Reactor.AddHandler / UpdateHandler), per §4.1.
type poller interface {
	add(fd int, events api.Interest) error
	modify(fd int, events api.Interest) error
	remove(fd int) error
	// wait blocks for up to timeout (negative means block indefinitely)
	// and appends ready events to dst, returning the extended slice.
	wait(timeout time.Duration, dst []pollEvent) ([]pollEvent, error)
	close() error
}
