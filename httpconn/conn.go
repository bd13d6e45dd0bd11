// File: httpconn/conn.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Conn is the HTTP/1.1 state machine of §4.3, driven by api.ByteStream
// read/write completions. Grounded on original_source's HTTPConnection:
// _on_headers / _on_request_body / chunk-line / chunk-data / trailers /
// write / finish / _finish_request / try_close.

package httpconn

import (
	"crypto/x509"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/ioloop"
)

type state int

const (
	stateAwaitingHead state = iota
	stateAwaitingBody
	stateAwaitingChunkLine
	stateAwaitingChunkData
	stateAwaitingTrailers
	stateDispatching
	stateWritingResponse
	stateClosing
)

// Conn is one accepted HTTP/1.1 connection's parser, dispatcher bridge,
// and response writer.
type Conn struct {
	stream     api.ByteStream
	dispatcher api.Dispatcher
	log        api.Logger
	reactor    *ioloop.Reactor

	maxBufferSize int
	noKeepAlive   bool
	connTimeout   time.Duration
	debug         bool
	idleTimer     api.TimeoutHandle

	// gen counts state transitions performed by awaitHead/closeConn. A
	// dispatch call can synchronously drive a Write completion callback
	// to tryClose/awaitHead before DoRequest returns; callers that would
	// otherwise re-advance state after the dispatch call compare gen
	// before and after to detect that and skip the redundant advance.
	gen uint64

	state state
	req   *api.RequestHead
	app   any

	chunkSize int
	chunkExt  string
	discard   bool

	firstFrameDispatched bool
	responseChunked      bool

	writeInFlight bool
	finishPending func()
	finishCb      func()
	closedCb      func()

	closed bool
}

// peerCertProvider is implemented by iostream.TLS; Plain streams simply
// don't satisfy it, so GetPeerCertificate returns nil for them.
type peerCertProvider interface {
	PeerCertificate() *x509.Certificate
}

var _ api.HttpConnection = (*Conn)(nil)

// Config bundles the per-connection tunables Conn needs from §6's
// settings surface.
type Config struct {
	MaxBufferSize     int
	NoKeepAlive       bool
	ConnectionTimeout time.Duration
	Debug             bool
}

// New constructs a Conn and arms its first AwaitingHead read.
func New(reactor *ioloop.Reactor, stream api.ByteStream, dispatcher api.Dispatcher, log api.Logger, cfg Config) *Conn {
	c := &Conn{
		stream:        stream,
		dispatcher:    dispatcher,
		log:           log,
		reactor:       reactor,
		maxBufferSize: cfg.MaxBufferSize,
		noKeepAlive:   cfg.NoKeepAlive,
		connTimeout:   cfg.ConnectionTimeout,
		debug:         cfg.Debug,
	}
	stream.SetCloseCallback(c.onStreamClosed)
	c.awaitHead()
	return c
}

// Write emits chunk as (part of) the current response; it refuses to run
// if no request is currently awaiting a response.
func (c *Conn) Write(chunk []byte, cb func()) error {
	return c.write(chunk, cb, false)
}

// EnableChunkedResponse switches response emission into chunked framing
// for the current request; it must be called before the first Write.
func (c *Conn) EnableChunkedResponse() { c.responseChunked = true }

// Finish completes the current response and applies keep-alive policy.
func (c *Conn) Finish(cb func()) {
	if c.writeInFlight {
		c.finishPending = func() { c.dofinish(cb) }
		return
	}
	c.dofinish(cb)
}

// SetFinishCallback registers a hook invoked every time a response
// finishes, independent of the one-shot cb passed to a given Finish call.
func (c *Conn) SetFinishCallback(cb func()) { c.finishCb = cb }

// SupportsHTTP11 always reports true: this engine implements only
// HTTP/1.1 (§4.3 rejects any other version at AwaitingHead).
func (c *Conn) SupportsHTTP11() bool { return true }

// Close unconditionally closes the underlying stream, ignoring any
// keep-alive policy. Used by the owning server on shutdown.
func (c *Conn) Close() { c.closeConn() }

// SetClosedCallback registers a hook run once the underlying stream has
// actually closed, whatever the cause (peer hangup, idle timeout, or an
// explicit Close); used by the owning server to drop bookkeeping for the
// connection.
func (c *Conn) SetClosedCallback(cb func()) { c.closedCb = cb }

// GetPeerCertificate returns the client's TLS certificate, or nil for a
// plain connection or an anonymous TLS handshake.
func (c *Conn) GetPeerCertificate() *x509.Certificate {
	if p, ok := c.stream.(peerCertProvider); ok {
		return p.PeerCertificate()
	}
	return nil
}

func (c *Conn) write(chunk []byte, userCb func(), force bool) error {
	if !force && c.req == nil {
		return api.Wrap(api.ErrCodeInternal, "httpconn: write with no active request", nil)
	}
	if c.stream.Closed() {
		c.log.Warn("httpconn: write after stream closed")
		return nil
	}
	out := chunk
	if c.responseChunked {
		out = buildChunkFrame(chunk)
	}
	c.writeInFlight = true
	c.state = stateWritingResponse
	return c.stream.Write(out, func() {
		c.writeInFlight = false
		if userCb != nil {
			userCb()
		}
		if c.finishPending != nil {
			fp := c.finishPending
			c.finishPending = nil
			fp()
		}
	})
}

func buildChunkFrame(chunk []byte) []byte {
	out := []byte(fmt.Sprintf("%x\r\n", len(chunk)))
	out = append(out, chunk...)
	out = append(out, '\r', '\n')
	return out
}

func (c *Conn) dofinish(cb func()) {
	if cb != nil {
		cb()
	}
	if c.finishCb != nil {
		c.finishCb()
	}
	c.tryClose(false)
}

// tryClose decides disconnect vs keep-alive per §4.3's try_close.
func (c *Conn) tryClose(disconnect bool) {
	if disconnect || c.noKeepAlive || c.req == nil {
		c.closeConn()
		return
	}
	req := c.req
	disc := false
	switch {
	case req.Headers.HasToken("Connection", "close"):
		disc = true
	case !c.SupportsHTTP11() &&
		(req.Headers.Has("Content-Length") || req.Method == "HEAD" || req.Method == "GET") &&
		!req.Headers.HasToken("Connection", "keep-alive"):
		disc = true
	}
	if disc {
		c.closeConn()
		return
	}
	c.awaitHead()
}

func (c *Conn) closeConn() {
	if c.closed {
		return
	}
	c.gen++
	c.state = stateClosing
	if c.idleTimer != nil {
		c.idleTimer.Cancel()
	}
	c.stream.Close()
}

func (c *Conn) onStreamClosed() {
	c.closed = true
	if c.idleTimer != nil {
		c.idleTimer.Cancel()
	}
	if c.closedCb != nil {
		c.closedCb()
	}
}

func (c *Conn) onIdleTimeout() {
	c.closeConn()
}

func (c *Conn) resetIdleTimer() {
	if c.idleTimer != nil {
		c.idleTimer.Cancel()
	}
	if c.connTimeout > 0 {
		c.idleTimer = c.reactor.AddTimeout(time.Now().Add(c.connTimeout), c.onIdleTimeout)
	}
}

// writeFixed sends one of the canned error bodies with force=true,
// optionally closing once it has flushed.
func (c *Conn) writeFixed(resp []byte, closeAfter bool) {
	if closeAfter {
		c.state = stateClosing
	}
	c.write(resp, func() {
		if closeAfter {
			c.closeConn()
		}
	}, true)
}

// awaitHead re-arms the head-line read and resets per-request state.
func (c *Conn) awaitHead() {
	c.gen++
	c.state = stateAwaitingHead
	c.req = nil
	c.app = nil
	c.firstFrameDispatched = false
	c.responseChunked = false
	c.resetIdleTimer()
	if err := c.stream.ReadUntil([]byte("\r\n\r\n"), c.onHeadComplete); err != nil {
		c.log.Error("httpconn: failed to arm head read", api.F("err", err))
	}
}

func (c *Conn) onHeadComplete(raw []byte) {
	if c.req != nil {
		c.log.Error("httpconn: new request started with one already in flight")
		c.writeFixed(response500, true)
		return
	}
	head, err := parseHeadBlock(raw)
	if err != nil {
		c.log.Warn("httpconn: malformed request", api.F("err", err))
		c.writeFixed(response400, true)
		return
	}
	if head.Version != "HTTP/1.1" {
		c.writeFixed(response400, true)
		return
	}
	head.Connection = c
	c.req = &head
	c.state = stateDispatching

	if head.Headers.HasToken("Transfer-Encoding", "chunked") {
		head.Headers.Del("Content-Length")
		c.state = stateAwaitingChunkLine
		c.armChunkLineRead()
		return
	}

	n, err := parseContentLength(head.Headers)
	if err != nil {
		c.writeFixed(response400, true)
		return
	}
	if n < 0 {
		c.dispatchNoBody()
		return
	}
	if n > c.maxBufferSize {
		c.write(response413, nil, true)
		c.discard = true
		c.state = stateAwaitingBody
		// Drop the discarded bytes as they stream in, so the oversize body
		// never has to fit in the stream's max_buffer_size read buffer.
		if err := c.stream.ReadBytes(n, c.onBodyComplete, func([]byte) {}); err != nil {
			c.log.Error("httpconn: failed to arm discard read", api.F("err", err))
		}
		return
	}
	if strings.EqualFold(head.Headers.Get("Expect"), "100-continue") {
		c.stream.Write([]byte("HTTP/1.1 100 (Continue)\r\n\r\n"), nil)
	}
	c.state = stateAwaitingBody
	if err := c.stream.ReadBytes(n, c.onBodyComplete, nil); err != nil {
		c.log.Error("httpconn: failed to arm body read", api.F("err", err))
	}
}

func (c *Conn) resolve() bool {
	app, err := c.dispatcher.Resolve(c.req.Target, c.req.Headers)
	if err != nil {
		c.writeFixed(response404, true)
		return false
	}
	c.app = app
	return true
}

// dispatchSafely runs fn, recovering a panicking handler so it can never
// take the connection (or the reactor goroutine) down with it. A caught
// panic is a genuine internal error: it is logged and answered with a
// forced 500, matching the original's on_request_headers reentrancy path
// for invariant violations.
func (c *Conn) dispatchSafely(fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fields := []api.Field{api.F("panic", r)}
		if c.debug {
			fields = append(fields, api.F("stack", string(debug.Stack())))
		}
		c.log.Error("httpconn: handler panic", fields...)
		c.writeFixed(response500, true)
	}()
	fn()
}

func (c *Conn) dispatchNoBody() {
	if !c.resolve() {
		return
	}
	gen := c.gen
	c.dispatchSafely(func() { c.dispatcher.DoRequest(c.app, c.req, nil) })
	if c.gen == gen {
		c.awaitHead()
	}
}

func (c *Conn) onBodyComplete(data []byte) {
	if c.discard {
		c.discard = false
		c.awaitHead()
		return
	}
	if !c.resolve() {
		return
	}
	gen := c.gen
	c.dispatchSafely(func() { c.dispatcher.DoRequest(c.app, c.req, data) })
	if c.gen == gen {
		c.awaitHead()
	}
}

func (c *Conn) armChunkLineRead() {
	if err := c.stream.ReadUntil([]byte("\r\n"), c.onChunkLine); err != nil {
		c.log.Error("httpconn: failed to arm chunk-line read", api.F("err", err))
	}
}

func (c *Conn) onChunkLine(raw []byte) {
	line := strings.TrimSuffix(string(raw), "\r\n")
	size, ext, err := parseChunkLine(line)
	if err != nil {
		c.writeFixed(response400, true)
		return
	}
	if size == 0 {
		if c.req.Headers.Has("Trailer") {
			c.state = stateAwaitingTrailers
			if err := c.stream.ReadUntil([]byte("\r\n\r\n"), c.onTrailers); err != nil {
				c.log.Error("httpconn: failed to arm trailers read", api.F("err", err))
			}
			return
		}
		if err := c.stream.ReadBytes(2, func([]byte) { c.onChunksDone(nil) }, nil); err != nil {
			c.log.Error("httpconn: failed to arm final CRLF read", api.F("err", err))
		}
		return
	}
	c.chunkSize = size
	c.chunkExt = ext
	c.state = stateAwaitingChunkData
	if err := c.stream.ReadBytes(size+2, c.onChunkData, nil); err != nil {
		c.log.Error("httpconn: failed to arm chunk-data read", api.F("err", err))
	}
}

func (c *Conn) onChunkData(data []byte) {
	body := data
	if len(body) >= 2 {
		body = body[:len(body)-2]
	}
	frame := api.ChunkFrame{Size: c.chunkSize, Extension: c.chunkExt, Data: body}
	gen := c.gen
	c.dispatchChunk(frame, nil)
	if c.gen != gen {
		return
	}
	c.state = stateAwaitingChunkLine
	c.armChunkLineRead()
}

func (c *Conn) onTrailers(raw []byte) {
	trailers, err := parseHeaderBlockOnly(raw)
	if err != nil {
		c.writeFixed(response400, true)
		return
	}
	c.onChunksDone(trailers)
}

func (c *Conn) onChunksDone(trailers api.Header) {
	terminal := api.ChunkFrame{Size: 0}
	gen := c.gen
	c.dispatchChunk(terminal, trailers)
	if c.gen == gen {
		c.awaitHead()
	}
}

func (c *Conn) dispatchChunk(frame api.ChunkFrame, trailers api.Header) {
	if !c.firstFrameDispatched {
		if !c.resolve() {
			return
		}
		c.firstFrameDispatched = true
		c.dispatchSafely(func() { c.dispatcher.DoRequest(c.app, c.req, frame.Data) })
		return
	}
	c.dispatchSafely(func() { c.dispatcher.DoRequestChunk(c.app, c.req, frame, trailers) })
}
