// Package applog adapts github.com/rs/zerolog to the api.Logger
// collaborator contract (§6). Grounded on the pack's
// joeycumines-go-utilpkg/logiface-zerolog binding, which wires the same
// library behind a logging facade; this module talks to zerolog directly
// since httpcore only ever needs one binding.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package applog

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/momentics/httpcore/api"
)

// Logger adapts a zerolog.Logger to api.Logger.
type Logger struct {
	z zerolog.Logger
}

var _ api.Logger = (*Logger)(nil)

// New builds a Logger writing to w in zerolog's console-friendly format
// when pretty is true, or newline-delimited JSON otherwise (the format
// production deployments want to ship to a log aggregator).
func New(w io.Writer, pretty bool) *Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	z := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{z: z}
}

// Default returns a Logger writing pretty console output to stderr,
// matching the "just works during development" expectation of the
// teacher's debug-oriented log helpers (control/debug.go).
func Default() *Logger {
	return New(os.Stderr, true)
}

func (l *Logger) Info(msg string, fields ...api.Field)  { l.log(l.z.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...api.Field)  { l.log(l.z.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...api.Field) { l.log(l.z.Error(), msg, fields) }

func (l *Logger) log(ev *zerolog.Event, msg string, fields []api.Field) {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

// Nop is a Logger that discards everything, for tests that don't care
// about log output but still need an api.Logger to satisfy a
// constructor.
type Nop struct{}

var _ api.Logger = Nop{}

func (Nop) Info(string, ...api.Field)  {}
func (Nop) Warn(string, ...api.Field)  {}
func (Nop) Error(string, ...api.Field) {}
