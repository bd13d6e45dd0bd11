//go:build linux

package httpserver_test

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/applog"
	"github.com/momentics/httpcore/httpserver"
	"github.com/momentics/httpcore/ioloop"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []string
}

func (d *recordingDispatcher) Resolve(target string, headers api.Header) (any, error) {
	return target, nil
}

func (d *recordingDispatcher) DoRequest(app any, req *api.RequestHead, body []byte) {
	d.mu.Lock()
	d.requests = append(d.requests, req.Target)
	d.mu.Unlock()
	req.Connection.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok"), nil)
	req.Connection.Finish(nil)
}

func (d *recordingDispatcher) DoRequestChunk(app any, req *api.RequestHead, chunk api.ChunkFrame, trailers api.Header) {
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServerAcceptsAndDispatchesOverLoopback(t *testing.T) {
	log := applog.Nop{}
	reactor, err := ioloop.New(log, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ioloop.New: %v", err)
	}
	disp := &recordingDispatcher{}
	port := freePort(t)
	cfg := httpserver.DefaultConfig()
	cfg.Settings.Scheme = api.SchemeHTTP
	cfg.Settings.Host = "127.0.0.1"
	cfg.Settings.Port = port
	srv, err := httpserver.NewServer(reactor, cfg, httpserver.WithDispatcher(disp), httpserver.WithLogger(log))
	if err != nil {
		t.Fatalf("httpserver.NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- reactor.Run() }()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading dispatcher response: %v", err)
	}
	_ = line

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		disp.mu.Lock()
		n := len(disp.requests)
		disp.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	disp.mu.Lock()
	defer disp.mu.Unlock()
	if len(disp.requests) != 1 || disp.requests[0] != "/ping" {
		t.Fatalf("expected one dispatched request for /ping, got %v", disp.requests)
	}

	srv.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
