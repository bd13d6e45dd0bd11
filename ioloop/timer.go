// File: ioloop/timer.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// TimerHeap: a min-heap of pending timeouts keyed by (deadline,
// monotonic id), with lazy deletion of cancelled entries, matching
// original_source's _Timeout/heapq usage and spec §3/§4.1.

package ioloop

import (
	"container/heap"
	"time"

	"github.com/momentics/httpcore/api"
)

// timerEntry is one scheduled timeout. Cancellation sets callback to nil;
// the entry remains in the heap until it bubbles to the root, at which
// point the loop discards it without running it.
type timerEntry struct {
	deadline time.Time
	id       uint64 // stable tiebreaker for equal deadlines
	callback api.Callback
	index    int // heap.Interface bookkeeping
}

func (t *timerEntry) Cancel() {
	t.callback = nil
}

// timerHeap implements container/heap.Interface ordered by
// (deadline, id), matching original_source's _Timeout.__lt__.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h timerHeap) peek() *timerEntry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

var _ = heap.Interface(&timerHeap{})
