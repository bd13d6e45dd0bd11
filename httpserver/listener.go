// File: httpserver/listener.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Listener wraps one bound, listening socket and accepts connections
// off reactor READ readiness. Grounded on §4.4 and on the teacher's
// internal/transport/transport_linux.go for raw socket syscalls.

package httpserver

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/ioloop"
)

// Listener owns one bound, listening, non-blocking socket.
type Listener struct {
	fd      int
	reactor *ioloop.Reactor
	log     api.Logger
	onAccept func(fd int, peer net.Addr)
}

// Bind creates, binds and listens on a socket for s, per §4.4: applies
// SO_REUSEADDR, IPV6_V6ONLY=1 for AF_INET6, non-blocking mode, and the
// configured backlog.
func Bind(s api.Settings) (int, error) {
	family := resolveFamily(s)

	var fd int
	var err error
	switch family {
	case unix.AF_INET6:
		fd, err = bindInet6(s)
	default:
		fd, err = bindInet4(s)
	}
	if err != nil {
		return -1, fmt.Errorf("httpserver: bind: %w", err)
	}
	if err := unix.Listen(fd, s.Backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("httpserver: listen: %w", err)
	}
	return fd, nil
}

func resolveFamily(s api.Settings) int {
	switch s.Family {
	case api.FamilyInet6:
		return unix.AF_INET6
	case api.FamilyInet:
		return unix.AF_INET
	default:
		if s.Host != "" {
			if ip := net.ParseIP(s.Host); ip != nil && ip.To4() == nil {
				return unix.AF_INET6
			}
		}
		return unix.AF_INET
	}
}

func bindInet4(s api.Settings) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	addr := unix.SockaddrInet4{Port: s.Port}
	if s.Host != "" {
		ip := net.ParseIP(s.Host).To4()
		if ip == nil {
			unix.Close(fd)
			return -1, fmt.Errorf("invalid IPv4 host %q", s.Host)
		}
		copy(addr.Addr[:], ip)
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func bindInet6(s api.Settings) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	addr := unix.SockaddrInet6{Port: s.Port}
	if s.Host != "" {
		ip := net.ParseIP(s.Host).To16()
		if ip == nil {
			unix.Close(fd)
			return -1, fmt.Errorf("invalid IPv6 host %q", s.Host)
		}
		copy(addr.Addr[:], ip)
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// NewListener registers fd's READ readiness with reactor; onAccept is
// called once per accepted connection with its new fd and peer address.
func NewListener(reactor *ioloop.Reactor, fd int, log api.Logger, onAccept func(fd int, peer net.Addr)) (*Listener, error) {
	l := &Listener{fd: fd, reactor: reactor, log: log, onAccept: onAccept}
	if err := reactor.AddHandler(fd, l.onReadable, api.InterestRead); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Listener) onReadable(fd int, events api.Interest) {
	for {
		connFD, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			l.log.Error("httpserver: accept failed", api.F("err", err))
			return
		}
		if err := unix.SetsockoptInt(connFD, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			l.log.Warn("httpserver: TCP_NODELAY failed", api.F("err", err))
		}
		l.onAccept(connFD, sockaddrToNetAddr(sa))
	}
}

func sockaddrToNetAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}

// Close unregisters and closes the listening socket.
func (l *Listener) Close() error {
	l.reactor.RemoveHandler(l.fd)
	return unix.Close(l.fd)
}
