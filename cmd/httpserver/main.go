// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Standalone demo server wiring the reactor, a plain-HTTP listener and a
// trivial echo Dispatcher together, grounded on the teacher's
// examples/reactor_echo/main.go shape (listen, register with reactor, run).

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/applog"
	"github.com/momentics/httpcore/httpserver"
	"github.com/momentics/httpcore/ioloop"
)

// echoDispatcher answers every request with its method and target (the
// body length is only logged), demonstrating the Dispatcher contract end
// to end.
type echoDispatcher struct {
	log api.Logger
}

func (d *echoDispatcher) Resolve(target string, headers api.Header) (any, error) {
	return target, nil
}

func (d *echoDispatcher) DoRequest(app any, req *api.RequestHead, body []byte) {
	d.log.Info("demo: request", api.F("method", req.Method), api.F("target", req.Target), api.F("bytes", len(body)))
	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s %s\n", len(req.Method)+len(req.Target)+2, req.Method, req.Target)
	req.Connection.Write([]byte(resp), nil)
	req.Connection.Finish(nil)
}

func (d *echoDispatcher) DoRequestChunk(app any, req *api.RequestHead, chunk api.ChunkFrame, trailers api.Header) {
	d.log.Info("demo: chunk", api.F("target", req.Target), api.F("size", chunk.Size))
}

func main() {
	log := applog.Default()

	reactor, err := ioloop.New(log, 250*time.Millisecond)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reactor error: %v\n", err)
		os.Exit(1)
	}

	cfg := httpserver.DefaultConfig()
	cfg.Settings.Scheme = api.SchemeHTTP
	cfg.Settings.Host = "0.0.0.0"
	cfg.Settings.Port = 9002

	srv, err := httpserver.NewServer(reactor, cfg,
		httpserver.WithDispatcher(&echoDispatcher{log: log}),
		httpserver.WithLogger(log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start error: %v\n", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("demo: shutting down")
		srv.Stop()
	}()

	if err := reactor.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "reactor run error: %v\n", err)
		os.Exit(1)
	}
}
