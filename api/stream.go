// File: api/stream.go
// Package api defines the ByteStream contract shared by the plain and TLS
// transports (§4.2) and consumed by HttpConnection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "regexp"

// ReadCallback receives the bytes a completed read operation produced.
type ReadCallback func(data []byte)

// StreamingCallback receives an intermediate chunk of a still-pending
// ReadBytes or ReadUntilClose operation.
type StreamingCallback func(chunk []byte)

// WriteCallback fires once the write buffer has fully drained.
type WriteCallback func()

// CloseCallback fires once the stream's socket is known closed, after any
// pending user callbacks have had a chance to run.
type CloseCallback func()

// ByteStream is the non-blocking, buffered bytewise transport for one
// connection. At most one read operation may be pending at a time;
// registering a second while one is active returns ErrReadOpActive.
type ByteStream interface {
	ReadUntil(delim []byte, cb ReadCallback) error
	ReadUntilRegex(pattern *regexp.Regexp, cb ReadCallback) error
	ReadBytes(n int, cb ReadCallback, streaming StreamingCallback) error
	ReadUntilClose(cb ReadCallback, streaming StreamingCallback) error
	Write(data []byte, cb WriteCallback) error
	SetCloseCallback(cb CloseCallback)
	Close() error
	Closed() bool
}
