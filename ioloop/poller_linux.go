//go:build linux

// File: ioloop/poller_linux.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Linux epoll backend for the Reactor's readiness notifier. Grounded on
// reactor/epoll_reactor.go, standardized on golang.org/x/sys/unix (as
// internal/transport/transport_linux.go already is) instead of the raw
// syscall package the teacher's epoll_reactor.go uses.

package ioloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/httpcore/api"
)

const maxEpollEvents = 256

type epollPoller struct {
	epfd   int
	events [maxEpollEvents]unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("ioloop: epoll_create1: %w", err)
	}
	return &epollPoller{epfd: epfd}, nil
}

func toEpollEvents(i api.Interest) uint32 {
	var ev uint32
	if i.Read() {
		ev |= unix.EPOLLIN
	}
	if i.Write() {
		ev |= unix.EPOLLOUT
	}
	if i.Error() {
		ev |= unix.EPOLLERR | unix.EPOLLHUP
	}
	return ev
}

func fromEpollEvents(ev uint32) api.Interest {
	var i api.Interest
	if ev&unix.EPOLLIN != 0 {
		i |= api.InterestRead
	}
	if ev&unix.EPOLLOUT != 0 {
		i |= api.InterestWrite
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		i |= api.InterestError
	}
	return i
}

func (p *epollPoller) add(fd int, events api.Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("ioloop: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) modify(fd int, events api.Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("ioloop: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) remove(fd int) error {
	// EpollCtl DEL tolerates a nil event pointer on modern kernels; pass
	// an empty one for portability with older kernels some docs mention.
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{}); err != nil {
		return fmt.Errorf("ioloop: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// wait blocks up to timeout. A negative timeout blocks indefinitely,
// matching §4.1 step 6; an EINTR is surfaced as an empty, error-free
// result, so the caller (Reactor.Run) simply goes on to its next
// iteration.
func (p *epollPoller) wait(timeout time.Duration, dst []pollEvent) ([]pollEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, p.events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, fmt.Errorf("ioloop: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		dst = append(dst, pollEvent{
			fd:     int(p.events[i].Fd),
			events: fromEpollEvents(p.events[i].Events),
		})
	}
	return dst, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
