// Package bufpool provides the pooled byte-chunk allocator backing
// ByteStream's read and write buffers (§3, §4.2). Grounded on the
// teacher's pool/bufferpool_linux.go and pool/objpool.go, with the
// NUMA-node segmentation stripped: the spec's single-reactor-thread model
// has no concept of a preferred allocation node, so this module keeps one
// pool per size class instead of one pool per (size class, NUMA node)
// pair.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package bufpool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/httpcore/api"
)

// sizeClasses mirrors the teacher's single fixed 64KiB chunk size
// (pool/bufferpool_linux.go) but adds smaller classes so that small
// header reads don't round-trip a 64KiB allocation; chosen to bracket
// typical HTTP/1.1 header-block and chunk sizes.
var sizeClasses = []int{512, 4096, 16384, 65536}

// Pool is a size-classed sync.Pool-backed allocator implementing
// api.BufferPool.
type Pool struct {
	classes []*classPool
	stats   stats
}

type stats struct {
	alloc int64
	free  int64
	inUse int64
}

var _ api.BufferPool = (*Pool)(nil)
var _ api.Releaser = (*Pool)(nil)

// New constructs a Pool with the default size classes.
func New() *Pool {
	p := &Pool{}
	p.classes = make([]*classPool, len(sizeClasses))
	for i, sz := range sizeClasses {
		p.classes[i] = newClassPool(sz)
	}
	return p
}

// Get returns a Buffer whose Data has length size, backed by the
// smallest size class that fits (or an unpooled allocation if size
// exceeds every class).
func (p *Pool) Get(size int) api.Buffer {
	atomic.AddInt64(&p.stats.alloc, 1)
	atomic.AddInt64(&p.stats.inUse, 1)
	for _, cp := range p.classes {
		if size <= cp.size {
			return api.NewBuffer(cp.get()[:size], p)
		}
	}
	return api.NewBuffer(make([]byte, size), nil)
}

// Put implements api.Releaser. The chunk goes back to the size class
// whose size equals cap(b.Data), whichever Pool it came from; a chunk
// whose capacity matches no class is dropped instead of corrupting
// another class.
func (p *Pool) Put(b api.Buffer) {
	c := cap(b.Data)
	if c == 0 {
		return
	}
	atomic.AddInt64(&p.stats.free, 1)
	atomic.AddInt64(&p.stats.inUse, -1)
	for _, cp := range p.classes {
		if cp.size == c {
			cp.put(b.Data[:0:c])
			return
		}
	}
	// Not one of our classes (e.g. an oversize allocation) — let the GC
	// reclaim it.
}

// Stats returns a point-in-time snapshot of allocation counters.
func (p *Pool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: atomic.LoadInt64(&p.stats.alloc),
		TotalFree:  atomic.LoadInt64(&p.stats.free),
		InUse:      atomic.LoadInt64(&p.stats.inUse),
	}
}

type classPool struct {
	size int
	pool sync.Pool
}

func newClassPool(size int) *classPool {
	return &classPool{
		size: size,
		pool: sync.Pool{New: func() any { return make([]byte, size) }},
	}
}

func (cp *classPool) get() []byte {
	return cp.pool.Get().([]byte)
}

func (cp *classPool) put(b []byte) {
	cp.pool.Put(b) //nolint:staticcheck // intentional pool handoff
}
