// File: iostream/core.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// core holds the ReadOp state machine and read buffer shared by Plain and
// TLS, grounded on original_source's IOStream._read_from_buffer /
// _try_inline_read (renamed here to trySatisfy per the spec's glossary).
// Write buffering is transport-specific (plain sockets coalesce and trim
// partially-sent chunks; TLS hands whole chunks to crypto/tls and tracks
// completion by count, see tls.go) so it lives outside core.

package iostream

import (
	"bytes"
	"regexp"

	"github.com/momentics/httpcore/api"
)

type readOpKind int

const (
	readOpNone readOpKind = iota
	readOpUntilDelimiter
	readOpUntilRegex
	readOpExactBytes
	readOpUntilClose
)

type readOp struct {
	kind      readOpKind
	delim     []byte
	regex     *regexp.Regexp
	remaining int
	cb        api.ReadCallback
	streaming api.StreamingCallback
}

type core struct {
	log           api.Logger
	maxBufferSize int
	pool          api.BufferPool

	readBuf []byte
	op      readOp

	closeCb api.CloseCallback
	closed  bool
}

func newCore(log api.Logger, maxBufferSize int, pool api.BufferPool) core {
	return core{log: log, maxBufferSize: maxBufferSize, pool: pool}
}

// armRead registers op as the pending read, failing if one is already
// active (§3 invariant: at most one ReadOp active at a time).
func (c *core) armRead(op readOp) error {
	if c.closed {
		return api.ErrStreamClosed
	}
	if c.op.kind != readOpNone {
		return api.ErrReadOpActive
	}
	c.op = op
	return nil
}

// appendRead grows the read buffer with freshly received bytes, enforcing
// max_buffer_size. Returns false if the append would overflow the limit,
// in which case the buffer is left unmodified.
func (c *core) appendRead(data []byte) bool {
	if len(c.readBuf)+len(data) > c.maxBufferSize {
		return false
	}
	c.readBuf = append(c.readBuf, data...)
	return true
}

func (c *core) consumeRead(n int) {
	remaining := len(c.readBuf) - n
	copy(c.readBuf, c.readBuf[n:])
	c.readBuf = c.readBuf[:remaining]
}

// trySatisfy attempts to complete the active ReadOp from the buffered
// bytes, invoking its callback (and clearing the op) on success. It never
// blocks; a still-pending exact/streaming read emits the available
// prefix via the streaming callback and keeps the op armed.
func (c *core) trySatisfy() {
	switch c.op.kind {
	case readOpNone:
		return
	case readOpUntilDelimiter:
		idx := bytes.Index(c.readBuf, c.op.delim)
		if idx < 0 {
			return
		}
		end := idx + len(c.op.delim)
		data := append([]byte(nil), c.readBuf[:end]...)
		c.consumeRead(end)
		cb := c.op.cb
		c.op = readOp{}
		cb(data)
	case readOpUntilRegex:
		loc := c.op.regex.FindIndex(c.readBuf)
		if loc == nil {
			return
		}
		end := loc[1]
		data := append([]byte(nil), c.readBuf[:end]...)
		c.consumeRead(end)
		cb := c.op.cb
		c.op = readOp{}
		cb(data)
	case readOpExactBytes:
		if len(c.readBuf) >= c.op.remaining {
			data := append([]byte(nil), c.readBuf[:c.op.remaining]...)
			c.consumeRead(c.op.remaining)
			cb := c.op.cb
			c.op = readOp{}
			cb(data)
			return
		}
		if c.op.streaming != nil && len(c.readBuf) > 0 {
			chunk := append([]byte(nil), c.readBuf...)
			c.op.remaining -= len(chunk)
			c.consumeRead(len(chunk))
			c.op.streaming(chunk)
		}
	case readOpUntilClose:
		if c.op.streaming != nil && len(c.readBuf) > 0 {
			chunk := append([]byte(nil), c.readBuf...)
			c.consumeRead(len(chunk))
			c.op.streaming(chunk)
		}
	}
}

// completeOnEOF finishes an UntilClose read with whatever is left
// buffered once the peer has closed its write side.
func (c *core) completeOnEOF() {
	if c.op.kind != readOpUntilClose {
		return
	}
	data := append([]byte(nil), c.readBuf...)
	c.consumeRead(len(c.readBuf))
	cb := c.op.cb
	c.op = readOp{}
	if cb != nil {
		cb(data)
	}
}

// readPending reports whether READ interest should be asserted: a read
// is armed (any kind, including UntilClose).
func (c *core) readPending() bool {
	return c.op.kind != readOpNone
}
