//go:build linux

// File: ioloop/waker_linux.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Self-pipe waker used to interrupt a blocked epoll_wait from another
// goroutine, grounded on original_source's Waker class (fileno/wake/
// consume/close) and spec §3's Waker component.

package ioloop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type waker struct {
	readFD  int
	writeFD int
}

func newWaker() (*waker, error) {
	fds, err := unix.Pipe2(unix.O_NONBLOCK | unix.O_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("ioloop: pipe2: %w", err)
	}
	return &waker{readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *waker) fd() int {
	return w.readFD
}

// wake is safe to call from any goroutine, any number of times; extra
// wakeups coalesce because consume drains the whole pipe each time.
func (w *waker) wake() {
	var b [1]byte
	for {
		_, err := unix.Write(w.writeFD, b[:])
		if err == unix.EAGAIN {
			// Pipe buffer already has a pending byte; one wakeup suffices.
			return
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// consume drains every pending wakeup byte so the fd stops reporting
// readable until the next wake call.
func (w *waker) consume() {
	var buf [128]byte
	for {
		n, err := unix.Read(w.readFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *waker) close() error {
	err1 := unix.Close(w.readFD)
	err2 := unix.Close(w.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
