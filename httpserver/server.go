// File: httpserver/server.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Server binds listeners, drives one ioloop.Reactor, and tracks live
// HttpConnections so Stop can shut down in order: stop the reactor,
// close connections, then close the listening sockets.
// Grounded on the teacher's server/reactor_server.go lifecycle shape.

package httpserver

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/applog"
	"github.com/momentics/httpcore/bufpool"
	"github.com/momentics/httpcore/httpconn"
	"github.com/momentics/httpcore/ioloop"
	"github.com/momentics/httpcore/iostream"
)

// Server owns the reactor, the bound listeners, and every live Conn.
type Server struct {
	settings   api.Settings
	debug      bool
	dispatcher api.Dispatcher
	log        api.Logger
	tlsConfig  *tls.Config
	bufPool    api.BufferPool

	reactor   *ioloop.Reactor
	listeners []*Listener

	mu    sync.Mutex
	conns map[*httpconn.Conn]struct{}

	stopOnce sync.Once
}

// Config bundles the settings a Server needs at construction time: the
// connection-level Settings from §6, plus this module's own Debug switch
// (see SPEC_FULL.md's handler-exception-logging addition).
type Config struct {
	Settings api.Settings
	Debug    bool
}

// DefaultConfig returns a Config with every Settings field at its
// normalized default and Debug off.
func DefaultConfig() Config {
	return Config{Settings: normalize(api.Settings{})}
}

// ServerOption customizes a Server built by NewServer beyond what Config
// carries, mirroring the teacher's functional-options constructor shape.
type ServerOption func(*Server)

// WithDispatcher sets the Dispatcher the Server hands accepted requests
// to. Required: NewServer fails without one.
func WithDispatcher(d api.Dispatcher) ServerOption {
	return func(s *Server) { s.dispatcher = d }
}

// WithLogger overrides the Server's logger; the default is applog.Default().
func WithLogger(l api.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithBufferPool overrides the api.BufferPool backing accepted streams'
// read buffers; the default is a fresh bufpool.Pool.
func WithBufferPool(p api.BufferPool) ServerOption {
	return func(s *Server) { s.bufPool = p }
}

// NewServer constructs a Server bound to the given reactor from cfg and
// opts. Callers that want the server to own and run its own reactor
// should pass one built with ioloop.New and call reactor.Run() themselves
// after Start.
func NewServer(reactor *ioloop.Reactor, cfg Config, opts ...ServerOption) (*Server, error) {
	settings := normalize(cfg.Settings)
	tlsCfg, err := buildTLSConfig(settings)
	if err != nil {
		return nil, err
	}
	s := &Server{
		settings:  settings,
		debug:     cfg.Debug,
		log:       applog.Default(),
		tlsConfig: tlsCfg,
		bufPool:   bufpool.New(),
		reactor:   reactor,
		conns:     make(map[*httpconn.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		return nil, fmt.Errorf("httpserver: NewServer requires WithDispatcher")
	}
	reactor.SetPollThreshold(settings.PollThreshold)
	return s, nil
}

// New is the legacy positional constructor kept for callers that have not
// moved to NewServer's Config/ServerOption shape.
func New(reactor *ioloop.Reactor, settings api.Settings, dispatcher api.Dispatcher, log api.Logger) (*Server, error) {
	return NewServer(reactor, Config{Settings: settings}, WithDispatcher(dispatcher), WithLogger(log))
}

// Start binds and registers the listening socket(s) with the reactor.
// The reactor's own Run loop must be driven separately (the server does
// not assume ownership of it, matching the teacher's separation between
// building a reactor and running one).
func (s *Server) Start() error {
	fd, err := Bind(s.settings)
	if err != nil {
		return err
	}
	l, err := NewListener(s.reactor, fd, s.log, s.onAccept)
	if err != nil {
		unix.Close(fd)
		return err
	}
	s.listeners = append(s.listeners, l)
	s.log.Info("httpserver: listening",
		api.F("scheme", string(s.settings.Scheme)),
		api.F("host", s.settings.Host),
		api.F("port", s.settings.Port))
	return nil
}

func (s *Server) onAccept(fd int, peer net.Addr) {
	var stream api.ByteStream
	if s.settings.Scheme == api.SchemeHTTPS {
		stream = iostream.NewServerTLS(s.reactor, fd, s.tlsConfig, s.log, s.settings.MaxBufferSize, s.bufPool)
	} else {
		p, err := iostream.NewPlain(s.reactor, fd, s.log, s.settings.MaxBufferSize, s.bufPool)
		if err != nil {
			s.log.Error("httpserver: wrapping accepted socket failed", api.F("err", err))
			return
		}
		stream = p
	}

	c := httpconn.New(s.reactor, stream, s.dispatcher, s.log, connConfig(s.settings, s.debug))
	s.trackConn(c)
	c.SetClosedCallback(func() { s.untrackConn(c) })

	if s.settings.XHeaders {
		s.log.Info("httpserver: accepted connection", api.F("peer", peer.String()))
	}
}

func (s *Server) trackConn(c *httpconn.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrackConn(c *httpconn.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// Stop shuts the server down: it first stops the reactor, then closes
// every live connection, then closes every listener. Safe to call once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.reactor.Stop()
		s.mu.Lock()
		conns := make([]*httpconn.Conn, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
		for _, l := range s.listeners {
			if err := l.Close(); err != nil {
				s.log.Warn("httpserver: closing listener failed", api.F("err", err))
			}
		}
	})
}
