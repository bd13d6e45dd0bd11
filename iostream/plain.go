// File: iostream/plain.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Plain is the non-TLS api.ByteStream: raw non-blocking socket I/O driven
// directly by reactor readiness, grounded on the teacher's
// internal/transport/transport_linux.go (unix.Read/Write usage) and
// original_source's IOStream.read_to_buffer / handle_write.

package iostream

import (
	"regexp"

	"golang.org/x/sys/unix"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/ioloop"
)

// maxCoalesce bounds how much of the write buffer Plain sends in one
// syscall, matching the spec's "coalesce chunks up to 128 KiB before
// sending to avoid OS-specific large-write issues."
const maxCoalesce = 128 * 1024

// Plain is a raw-socket api.ByteStream.
type Plain struct {
	core
	fd      int
	reactor *ioloop.Reactor

	writeChunks  [][]byte
	writeCb      api.WriteCallback
	pendingClose bool
}

var _ api.ByteStream = (*Plain)(nil)

// NewPlain registers fd with reactor and returns a Plain stream for it.
// The caller must have already set fd non-blocking. pool supplies the
// transient chunks handleRead fills from the socket; a nil pool falls back
// to a one-off allocation per read.
func NewPlain(reactor *ioloop.Reactor, fd int, log api.Logger, maxBufferSize int, pool api.BufferPool) (*Plain, error) {
	p := &Plain{core: newCore(log, maxBufferSize, pool), fd: fd, reactor: reactor}
	if err := reactor.AddHandler(fd, p.onEvent, 0); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plain) ReadUntil(delim []byte, cb api.ReadCallback) error {
	if err := p.armRead(readOp{kind: readOpUntilDelimiter, delim: delim, cb: cb}); err != nil {
		return err
	}
	p.trySatisfy()
	p.updateInterest()
	return nil
}

func (p *Plain) ReadUntilRegex(pattern *regexp.Regexp, cb api.ReadCallback) error {
	if err := p.armRead(readOp{kind: readOpUntilRegex, regex: pattern, cb: cb}); err != nil {
		return err
	}
	p.trySatisfy()
	p.updateInterest()
	return nil
}

func (p *Plain) ReadBytes(n int, cb api.ReadCallback, streaming api.StreamingCallback) error {
	if err := p.armRead(readOp{kind: readOpExactBytes, remaining: n, cb: cb, streaming: streaming}); err != nil {
		return err
	}
	p.trySatisfy()
	p.updateInterest()
	return nil
}

func (p *Plain) ReadUntilClose(cb api.ReadCallback, streaming api.StreamingCallback) error {
	if err := p.armRead(readOp{kind: readOpUntilClose, cb: cb, streaming: streaming}); err != nil {
		return err
	}
	p.trySatisfy()
	p.updateInterest()
	return nil
}

func (p *Plain) Write(data []byte, cb api.WriteCallback) error {
	if p.closed {
		return api.ErrStreamClosed
	}
	if len(data) > 0 {
		p.writeChunks = append(p.writeChunks, data)
	}
	p.writeCb = cb
	p.handleWrite()
	p.updateInterest()
	return nil
}

func (p *Plain) SetCloseCallback(cb api.CloseCallback) { p.closeCb = cb }

func (p *Plain) Closed() bool { return p.closed }

func (p *Plain) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.reactor.RemoveHandler(p.fd)
	err := unix.Close(p.fd)
	p.completeOnEOF()
	if p.closeCb != nil {
		cb := p.closeCb
		p.closeCb = nil
		cb()
	}
	return err
}

func (p *Plain) onEvent(fd int, events api.Interest) {
	if events.Read() {
		p.handleRead()
	}
	if !p.closed && events.Write() {
		p.handleWrite()
	}
	if events.Error() && !p.closed {
		// Deferred close so this round's pending read/write completions,
		// handled above, run before the connection tears down (§4.2:
		// "ERROR events schedule a deferred close").
		p.reactor.AddCallback(func() { p.Close() })
		return
	}
	if !p.closed {
		p.updateInterest()
	}
}

// readChunkSize is how much Plain asks its pool for per socket read.
const readChunkSize = 32 * 1024

func (p *Plain) handleRead() {
	for {
		buf := p.getReadChunk()
		n, err := unix.Read(p.fd, buf.Bytes())
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			buf.Release()
			break
		}
		if err == unix.EINTR {
			buf.Release()
			continue
		}
		if err != nil {
			buf.Release()
			p.reactor.AddCallback(func() { p.Close() })
			return
		}
		if n == 0 {
			buf.Release()
			p.trySatisfy()
			p.completeOnEOF()
			p.reactor.AddCallback(func() { p.Close() })
			return
		}
		ok := p.appendRead(buf.Bytes()[:n])
		buf.Release()
		if !ok {
			p.log.Error("iostream: read buffer overflow", api.F("fd", p.fd))
			p.reactor.AddCallback(func() { p.Close() })
			return
		}
		p.trySatisfy()
	}
}

// getReadChunk hands back a readChunkSize-byte pooled buffer, or a one-off
// allocation if this stream has no pool.
func (p *Plain) getReadChunk() api.Buffer {
	if p.pool == nil {
		return api.NewBuffer(make([]byte, readChunkSize), nil)
	}
	return p.pool.Get(readChunkSize)
}

func (p *Plain) handleWrite() {
	for len(p.writeChunks) > 0 {
		coalesced, consumed := coalesce(p.writeChunks, maxCoalesce)
		n, err := unix.Write(p.fd, coalesced)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			p.reactor.AddCallback(func() { p.Close() })
			return
		}
		p.trimWritten(n, consumed)
		if n < len(coalesced) {
			return // short write; wait for next WRITE readiness
		}
	}
	if p.writeCb != nil {
		cb := p.writeCb
		p.writeCb = nil
		cb()
	}
}

// coalesce concatenates leading chunks up to limit bytes, returning the
// merged slice and how many whole chunks it fully covers for trimWritten.
func coalesce(chunks [][]byte, limit int) ([]byte, int) {
	if len(chunks) == 1 && len(chunks[0]) <= limit {
		return chunks[0], 1
	}
	var out []byte
	n := 0
	for _, c := range chunks {
		if len(out)+len(c) > limit {
			break
		}
		out = append(out, c...)
		n++
	}
	if len(out) == 0 {
		// Single chunk larger than limit: send a prefix of it alone.
		out = append(out, chunks[0][:limit]...)
		n = 0
	}
	return out, n
}

// trimWritten removes sent bytes from the front of the write buffer.
// fullChunks is how many whole chunks coalesce had merged; sent may be
// less than their total length on a short write.
func (p *Plain) trimWritten(sent, fullChunks int) {
	for i := 0; i < fullChunks && sent > 0; i++ {
		c := p.writeChunks[0]
		if sent >= len(c) {
			sent -= len(c)
			p.writeChunks = p.writeChunks[1:]
			continue
		}
		p.writeChunks[0] = c[sent:]
		sent = 0
	}
	if sent > 0 && len(p.writeChunks) > 0 {
		p.writeChunks[0] = p.writeChunks[0][sent:]
	}
}

func (p *Plain) updateInterest() {
	if p.closed {
		return
	}
	var interest api.Interest
	if p.readPending() {
		interest |= api.InterestRead
	}
	if len(p.writeChunks) > 0 {
		interest |= api.InterestWrite
	}
	_ = p.reactor.UpdateHandler(p.fd, interest)
}
