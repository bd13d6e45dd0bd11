//go:build !linux

// File: ioloop/waker_other.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package ioloop

type waker struct{}

func newWaker() (*waker, error) {
	return nil, errUnsupportedPlatform
}

func (w *waker) fd() int     { return -1 }
func (w *waker) wake()       {}
func (w *waker) consume()    {}
func (w *waker) close() error { return nil }
