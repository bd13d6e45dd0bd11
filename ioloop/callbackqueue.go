// File: ioloop/callbackqueue.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// callbackQueue is the cross-goroutine deferred-work queue described by
// §3/§5: AddCallback is the only Reactor operation safe to call from a
// goroutine other than the reactor's own, so the queue itself needs a
// mutex even though eapache/queue's ring buffer is not otherwise
// synchronized. Grounded on internal/concurrency/executor.go's use of
// github.com/eapache/queue for task dispatch.

package ioloop

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/httpcore/api"
)

type callbackQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newCallbackQueue() *callbackQueue {
	return &callbackQueue{q: queue.New()}
}

// push enqueues cb and reports whether the queue transitioned from empty
// to non-empty, which the Reactor uses to decide whether a waker.wake is
// needed (it wakes on every empty-to-non-empty transition, whichever
// goroutine pushed).
func (c *callbackQueue) push(cb api.Callback) (becameNonEmpty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasEmpty := c.q.Length() == 0
	c.q.Add(cb)
	return wasEmpty
}

// drain atomically removes and returns every callback currently queued,
// matching the "atomically drain" step of the loop-iteration algorithm.
func (c *callbackQueue) drain() []api.Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]api.Callback, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.q.Peek().(api.Callback))
		c.q.Remove()
	}
	return out
}

func (c *callbackQueue) length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Length()
}
