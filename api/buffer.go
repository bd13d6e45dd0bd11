// File: api/buffer.go
// Package api defines Buffer and BufferPool, the pooled byte-chunk
// abstraction backing ByteStream's read/write buffers (§3, §4.2).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Buffer is a pooled byte-chunk handle. It is a struct rather than an
// interface so the common path (grab a chunk, fill it, release it) does
// not box through an interface.
type Buffer struct {
	Data []byte
	pool Releaser
}

// Releaser decouples Buffer from any one pool implementation.
type Releaser interface {
	Put(Buffer)
}

// NewBuffer constructs a Buffer backed by data and owned by pool (nil if
// the buffer is not pool-managed, e.g. a one-off allocation).
func NewBuffer(data []byte, pool Releaser) Buffer {
	return Buffer{Data: data, pool: pool}
}

// Bytes returns the full byte slice backing this Buffer.
func (b Buffer) Bytes() []byte { return b.Data }

// Slice returns a new Buffer view sharing the same underlying memory.
// The view shares no pool reference: only the original, full-size Buffer
// may be returned to the pool.
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 || to > len(b.Data) || from > to {
		panic("httpcore: buffer slice out of range")
	}
	return Buffer{Data: b.Data[from:to]}
}

// Release returns the buffer to its owning pool, if any.
func (b Buffer) Release() {
	if b.pool != nil {
		b.pool.Put(b)
	}
}

// Capacity returns the capacity of the underlying slice.
func (b Buffer) Capacity() int { return cap(b.Data) }

// BufferPool hands out and reclaims pooled byte chunks of a requested
// size. Implementations are free to round size up to a size class.
type BufferPool interface {
	Get(size int) Buffer
	Put(b Buffer)
	Stats() BufferPoolStats
}

// BufferPoolStats summarizes pool usage; exposed for metrics/debug probes.
type BufferPoolStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}
