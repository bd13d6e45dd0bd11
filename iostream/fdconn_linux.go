//go:build linux

// File: iostream/fdconn_linux.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// fdConn adapts a non-blocking fd to net.Conn by blocking (via
// unix.Poll on just that one fd) whenever a syscall would otherwise
// return EAGAIN. crypto/tls.Conn requires a blocking net.Conn; this
// adapter is the bridge that lets the TLS variant reuse the stdlib TLS
// implementation instead of hand-rolling a TLS state machine. It is only
// ever driven from TLS's dedicated per-connection goroutines (see
// tls.go), never from the reactor goroutine, so blocking here cannot
// stall the reactor loop.

package iostream

import (
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

type fdConn struct {
	fd int
}

func newFDConn(fd int) *fdConn { return &fdConn{fd: fd} }

func (c *fdConn) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, b)
		if err == nil {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if werr := c.waitFD(unix.POLLIN); werr != nil {
				return 0, werr
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		return 0, err
	}
}

func (c *fdConn) Write(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := unix.Write(c.fd, b[total:])
		if err == nil {
			total += n
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if werr := c.waitFD(unix.POLLOUT); werr != nil {
				return total, werr
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		return total, err
	}
	return total, nil
}

func (c *fdConn) waitFD(events int16) error {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: events}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func (c *fdConn) Close() error                       { return unix.Close(c.fd) }
func (c *fdConn) LocalAddr() net.Addr                 { return fdAddr{} }
func (c *fdConn) RemoteAddr() net.Addr                { return fdAddr{} }
func (c *fdConn) SetDeadline(time.Time) error         { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error     { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error    { return nil }

var _ net.Conn = (*fdConn)(nil)

type fdAddr struct{}

func (fdAddr) Network() string { return "tcp" }
func (fdAddr) String() string  { return "fd-backed-conn" }
