// File: api/settings.go
// Author: momentics <momentics@gmail.com>
//
// Settings is the configuration surface the core consumes, enumerated in
// full by §6. httpserver.Config embeds and normalizes these into runtime
// values (e.g. relative connection_timeout -> absolute deadlines); this
// type is the wire/collaborator-facing shape a settings reader populates.

package api

import "time"

// Family selects the address family used when binding a listener.
type Family string

const (
	FamilyInet   Family = "AF_INET"
	FamilyInet6  Family = "AF_INET6"
	FamilyUnspec Family = "AF_UNSPEC"
)

// Scheme selects which ByteStream variant a Listener wraps accepted
// sockets in.
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// Settings mirrors the configuration surface from §6 verbatim.
type Settings struct {
	Scheme Scheme
	Host   string
	Port   int
	Family Family
	Backlog int

	PollThreshold     int
	PollTimeout       time.Duration
	ConnectionTimeout time.Duration
	MaxBufferSize     int
	ReadChunkSize     int
	NoKeepAlive       bool

	SSLCertFile string
	SSLKeyFile  string
	SSLCACerts  string
	SSLCertReqs string

	XHeaders bool
}
