//go:build linux

package httpconn_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/applog"
	"github.com/momentics/httpcore/httpconn"
	"github.com/momentics/httpcore/ioloop"
)

// fakeStream is a minimal in-memory api.ByteStream double: writes are
// captured verbatim, and test code feeds bytes into the read buffer and
// calls deliver to trigger the pending read op's completion check.
type fakeStream struct {
	readBuf []byte
	op      struct {
		active    bool
		delim     []byte
		exact     int
		cb        api.ReadCallback
		streaming api.StreamingCallback
	}
	writes  [][]byte
	closed  bool
	closeCb api.CloseCallback
}

func (f *fakeStream) feed(data []byte) {
	f.readBuf = append(f.readBuf, data...)
	f.deliver()
}

func (f *fakeStream) deliver() {
	if !f.op.active {
		return
	}
	if f.op.delim != nil {
		idx := indexOf(f.readBuf, f.op.delim)
		if idx < 0 {
			return
		}
		end := idx + len(f.op.delim)
		data := append([]byte(nil), f.readBuf[:end]...)
		f.readBuf = f.readBuf[end:]
		cb := f.op.cb
		f.op.active = false
		cb(data)
		return
	}
	if len(f.readBuf) >= f.op.exact {
		data := append([]byte(nil), f.readBuf[:f.op.exact]...)
		f.readBuf = f.readBuf[f.op.exact:]
		cb := f.op.cb
		f.op.active = false
		cb(data)
	}
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func (f *fakeStream) ReadUntil(delim []byte, cb api.ReadCallback) error {
	if f.op.active {
		return api.ErrReadOpActive
	}
	f.op.active = true
	f.op.delim = delim
	f.op.exact = 0
	f.op.cb = cb
	f.deliver()
	return nil
}

func (f *fakeStream) ReadUntilRegex(pattern *regexp.Regexp, cb api.ReadCallback) error {
	return nil
}

func (f *fakeStream) ReadBytes(n int, cb api.ReadCallback, streaming api.StreamingCallback) error {
	if f.op.active {
		return api.ErrReadOpActive
	}
	f.op.active = true
	f.op.delim = nil
	f.op.exact = n
	f.op.cb = cb
	f.op.streaming = streaming
	f.deliver()
	return nil
}

func (f *fakeStream) ReadUntilClose(cb api.ReadCallback, streaming api.StreamingCallback) error {
	return nil
}

func (f *fakeStream) Write(data []byte, cb api.WriteCallback) error {
	f.writes = append(f.writes, data)
	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeStream) SetCloseCallback(cb api.CloseCallback) { f.closeCb = cb }
func (f *fakeStream) Closed() bool                          { return f.closed }
func (f *fakeStream) Close() error {
	f.closed = true
	if f.closeCb != nil {
		f.closeCb()
	}
	return nil
}

type fakeDispatcher struct {
	resolveErr  error
	requests    []string
	bodies      [][]byte
	chunks      []api.ChunkFrame
	lastTrailer api.Header
}

func (d *fakeDispatcher) Resolve(target string, headers api.Header) (any, error) {
	if d.resolveErr != nil {
		return nil, d.resolveErr
	}
	return target, nil
}

func (d *fakeDispatcher) DoRequest(app any, req *api.RequestHead, body []byte) {
	d.requests = append(d.requests, req.Target)
	d.bodies = append(d.bodies, body)
}

func (d *fakeDispatcher) DoRequestChunk(app any, req *api.RequestHead, chunk api.ChunkFrame, trailers api.Header) {
	d.chunks = append(d.chunks, chunk)
	if trailers != nil {
		d.lastTrailer = trailers
	}
}

func newReactor(t *testing.T) *ioloop.Reactor {
	t.Helper()
	r, err := ioloop.New(applog.Nop{}, time.Second)
	if err != nil {
		t.Fatalf("ioloop.New: %v", err)
	}
	return r
}

func TestSimpleGetNoBodyDispatches(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	disp := &fakeDispatcher{}
	httpconn.New(r, stream, disp, applog.Nop{}, httpconn.Config{MaxBufferSize: 1 << 20, ConnectionTimeout: time.Minute})

	stream.feed([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))

	if len(disp.requests) != 1 || disp.requests[0] != "/hello" {
		t.Fatalf("expected one dispatched request for /hello, got %v", disp.requests)
	}
	if disp.bodies[0] != nil {
		t.Fatalf("expected nil body for no-body GET, got %v", disp.bodies[0])
	}
}

func TestContentLengthBodyDispatches(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	disp := &fakeDispatcher{}
	httpconn.New(r, stream, disp, applog.Nop{}, httpconn.Config{MaxBufferSize: 1 << 20, ConnectionTimeout: time.Minute})

	stream.feed([]byte("POST /submit HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))

	if len(disp.bodies) != 1 || string(disp.bodies[0]) != "hello" {
		t.Fatalf("expected body %q, got %v", "hello", disp.bodies)
	}
}

func TestOversizeBodyWrites413AndDiscards(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	disp := &fakeDispatcher{}
	httpconn.New(r, stream, disp, applog.Nop{}, httpconn.Config{MaxBufferSize: 4, ConnectionTimeout: time.Minute})

	stream.feed([]byte("POST /big HTTP/1.1\r\nContent-Length: 10\r\n\r\n0123456789GET / HTTP/1.1\r\n\r\n"))

	if len(stream.writes) == 0 {
		t.Fatal("expected a 413 response to be written")
	}
	if stream.closed {
		t.Fatal("413 path must not close the connection")
	}
	// The discarded body must not reach the dispatcher, but the request
	// after it (re-armed AwaitingHead) should.
	if len(disp.requests) != 1 || disp.requests[0] != "/" {
		t.Fatalf("expected the request after discard to dispatch, got %v", disp.requests)
	}
}

func TestMalformedVersionWrites400AndCloses(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	disp := &fakeDispatcher{}
	httpconn.New(r, stream, disp, applog.Nop{}, httpconn.Config{MaxBufferSize: 1 << 20, ConnectionTimeout: time.Minute})

	stream.feed([]byte("GET / HTTP/1.0\r\n\r\n"))

	if !stream.closed {
		t.Fatal("expected connection to close after malformed version")
	}
	if len(disp.requests) != 0 {
		t.Fatal("dispatcher should not have been invoked")
	}
}

func TestResolveFailureWrites404AndCloses(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	disp := &fakeDispatcher{resolveErr: api.ErrInternal}
	httpconn.New(r, stream, disp, applog.Nop{}, httpconn.Config{MaxBufferSize: 1 << 20, ConnectionTimeout: time.Minute})

	stream.feed([]byte("GET /missing HTTP/1.1\r\n\r\n"))

	if !stream.closed {
		t.Fatal("expected connection to close after resolve failure")
	}
}

func TestChunkedRequestDispatchesFirstChunkThenTerminal(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	disp := &fakeDispatcher{}
	httpconn.New(r, stream, disp, applog.Nop{}, httpconn.Config{MaxBufferSize: 1 << 20, ConnectionTimeout: time.Minute})

	stream.feed([]byte("PUT /stream HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"))
	stream.feed([]byte("5\r\nhello\r\n"))
	stream.feed([]byte("0\r\n\r\n"))

	if len(disp.bodies) != 1 || string(disp.bodies[0]) != "hello" {
		t.Fatalf("expected first chunk dispatched via DoRequest with %q, got %v", "hello", disp.bodies)
	}
	if len(disp.chunks) != 1 || disp.chunks[0].Size != 0 {
		t.Fatalf("expected one terminal zero-size chunk via DoRequestChunk, got %v", disp.chunks)
	}
}

func TestGetWithoutConnectionHeaderStaysOpenOnHTTP11(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	disp := &fakeDispatcher{}
	httpconn.New(r, stream, disp, applog.Nop{}, httpconn.Config{MaxBufferSize: 1 << 20, ConnectionTimeout: time.Minute})

	stream.feed([]byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n"))

	if stream.closed {
		t.Fatal("a GET with no Connection header must stay open on an HTTP/1.1-only engine")
	}
	if len(disp.requests) != 1 || disp.requests[0] != "/x" {
		t.Fatalf("expected one dispatched request for /x, got %v", disp.requests)
	}
}

type panicDispatcher struct{}

func (d *panicDispatcher) Resolve(target string, headers api.Header) (any, error) {
	return target, nil
}

func (d *panicDispatcher) DoRequest(app any, req *api.RequestHead, body []byte) {
	panic("boom")
}

func (d *panicDispatcher) DoRequestChunk(app any, req *api.RequestHead, chunk api.ChunkFrame, trailers api.Header) {
}

func TestHandlerPanicWrites500AndCloses(t *testing.T) {
	r := newReactor(t)
	stream := &fakeStream{}
	httpconn.New(r, stream, &panicDispatcher{}, applog.Nop{}, httpconn.Config{MaxBufferSize: 1 << 20, ConnectionTimeout: time.Minute})

	stream.feed([]byte("GET /boom HTTP/1.1\r\nHost: x\r\n\r\n"))

	if !stream.closed {
		t.Fatal("expected connection to close after a handler panic")
	}
	if len(stream.writes) == 0 {
		t.Fatal("expected a 500 response to be written after a handler panic")
	}
}
