// File: httpserver/config.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Config normalizes an api.Settings value into the runtime knobs Server
// and Conn actually consume, grounded on the teacher's facade/options.go
// functional-options style but adapted to a plain normalization function
// since §6's Settings is already a flat struct, not a builder.

package httpserver

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/momentics/httpcore/api"
	"github.com/momentics/httpcore/httpconn"
)

const (
	defaultBacklog           = 128
	defaultPollTimeout       = 250 * time.Millisecond
	defaultConnectionTimeout = 2 * time.Minute
	defaultMaxBufferSize     = 100 * 1024 * 1024
	defaultReadChunkSize     = 64 * 1024
)

// normalize fills in defaults for any zero-valued field in s, mirroring
// original_source's HTTPServer.__init__ default assignments.
func normalize(s api.Settings) api.Settings {
	if s.Backlog <= 0 {
		s.Backlog = defaultBacklog
	}
	if s.PollTimeout <= 0 {
		s.PollTimeout = defaultPollTimeout
	}
	if s.ConnectionTimeout <= 0 {
		s.ConnectionTimeout = defaultConnectionTimeout
	}
	if s.MaxBufferSize <= 0 {
		s.MaxBufferSize = defaultMaxBufferSize
	}
	if s.ReadChunkSize <= 0 {
		s.ReadChunkSize = defaultReadChunkSize
	}
	if s.Scheme == "" {
		s.Scheme = api.SchemeHTTP
	}
	if s.Family == "" {
		s.Family = api.FamilyUnspec
	}
	return s
}

// connConfig derives the per-Conn config from normalized Settings and the
// Server's Debug switch.
func connConfig(s api.Settings, debug bool) httpconn.Config {
	return httpconn.Config{
		MaxBufferSize:     s.MaxBufferSize,
		NoKeepAlive:       s.NoKeepAlive,
		ConnectionTimeout: s.ConnectionTimeout,
		Debug:             debug,
	}
}

// buildTLSConfig loads the server certificate named by Settings for an
// "https" listener, per §6's SSLCertFile/SSLKeyFile/SSLCACerts fields.
func buildTLSConfig(s api.Settings) (*tls.Config, error) {
	if s.Scheme != api.SchemeHTTPS {
		return nil, nil
	}
	if s.SSLCertFile == "" || s.SSLKeyFile == "" {
		return nil, fmt.Errorf("httpserver: https scheme requires SSLCertFile and SSLKeyFile")
	}
	cert, err := tls.LoadX509KeyPair(s.SSLCertFile, s.SSLKeyFile)
	if err != nil {
		return nil, fmt.Errorf("httpserver: loading TLS keypair: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	switch s.SSLCertReqs {
	case "REQUIRED":
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	case "OPTIONAL":
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	if s.SSLCACerts != "" {
		pool, err := loadCertPool(s.SSLCACerts)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("httpserver: reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("httpserver: no certificates parsed from %s", path)
	}
	return pool, nil
}
