package ioloop

import (
	"container/heap"
	"testing"
	"time"
)

func TestTimerHeapOrdersByDeadline(t *testing.T) {
	var h timerHeap
	base := time.Now()
	heap.Init(&h)
	heap.Push(&h, &timerEntry{deadline: base.Add(30 * time.Millisecond), id: 1, callback: func() {}})
	heap.Push(&h, &timerEntry{deadline: base.Add(10 * time.Millisecond), id: 2, callback: func() {}})
	heap.Push(&h, &timerEntry{deadline: base.Add(20 * time.Millisecond), id: 3, callback: func() {}})

	var ids []uint64
	for h.Len() > 0 {
		e := heap.Pop(&h).(*timerEntry)
		ids = append(ids, e.id)
	}
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 3 || ids[2] != 1 {
		t.Fatalf("unexpected pop order: %v", ids)
	}
}

func TestTimerHeapTiebreaksByInsertionID(t *testing.T) {
	var h timerHeap
	deadline := time.Now().Add(time.Second)
	heap.Init(&h)
	heap.Push(&h, &timerEntry{deadline: deadline, id: 5, callback: func() {}})
	heap.Push(&h, &timerEntry{deadline: deadline, id: 2, callback: func() {}})
	heap.Push(&h, &timerEntry{deadline: deadline, id: 3, callback: func() {}})

	first := heap.Pop(&h).(*timerEntry)
	if first.id != 2 {
		t.Fatalf("expected lowest id to pop first, got %d", first.id)
	}
}

func TestTimerEntryCancelClearsCallback(t *testing.T) {
	e := &timerEntry{deadline: time.Now(), id: 1, callback: func() {}}
	e.Cancel()
	if e.callback != nil {
		t.Fatal("Cancel did not clear callback")
	}
}

func TestTimerHeapPeekEmpty(t *testing.T) {
	var h timerHeap
	if h.peek() != nil {
		t.Fatal("peek on empty heap should return nil")
	}
}
