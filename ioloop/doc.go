// Package ioloop implements the single-reactor scheduling primitive
// described by §4.1/§5: one goroutine owns a readiness notifier (epoll on
// Linux), a min-heap of timers, and a cross-goroutine callback queue, and
// every socket handler, timer callback and deferred callback runs on that
// one goroutine.
//
// Grounded on the teacher's reactor/epoll_reactor.go (epoll syscalls) and
// on original_source/pluggdapps/.Attic/evserver/httpioloop.py (the
// Tornado-derived IOLoop this spec's Reactor is a faithful port of): the
// loop-iteration algorithm in Reactor.Run follows that file's start()
// method step for step (drain callbacks, fire due timers, clamp the poll
// timeout, wait, dispatch).
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package ioloop
