//go:build !linux

// File: ioloop/poller_other.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Non-Linux stub, grounded on the teacher's reactor/reactor_stub.go: the
// spec targets epoll specifically, so other platforms fail fast at
// construction instead of silently degrading to a busy-poll loop.

package ioloop

import (
	"errors"
	"time"

	"github.com/momentics/httpcore/api"
)

var errUnsupportedPlatform = errors.New("ioloop: epoll reactor requires linux")

type stubPoller struct{}

func newPoller() (poller, error) {
	return nil, errUnsupportedPlatform
}

func (stubPoller) add(fd int, events api.Interest) error    { return errUnsupportedPlatform }
func (stubPoller) modify(fd int, events api.Interest) error { return errUnsupportedPlatform }
func (stubPoller) remove(fd int) error                      { return errUnsupportedPlatform }
func (stubPoller) wait(timeout time.Duration, dst []pollEvent) ([]pollEvent, error) {
	return dst, errUnsupportedPlatform
}
func (stubPoller) close() error { return nil }
