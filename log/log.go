// Copyright 2017 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ethereum.  If not, see <http://www.gnu.org/licenses/>.

// Package log provides a leveled, structured logger in the style used
// throughout the ccnsync engine: every call site attaches key/value
// context instead of formatting a sentence.
package log

import (
	"os"
	"time"

	"github.com/go-stack/stack"
)

// Lvl is a log level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

// Record is a single log event passed to a Handler.
type Record struct {
	Time  time.Time
	Lvl   Lvl
	Msg   string
	Ctx   []interface{}
	Call  stack.Call
	KeyVals map[string]interface{}
}

// Handler writes a Record somewhere.
type Handler interface {
	Log(r *Record) error
}

// Logger writes structured, leveled log events.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
	SetHandler(h Handler)
}

type logger struct {
	ctx []interface{}
	h   *swapHandler
}

type swapHandler struct {
	handler Handler
}

func (s *swapHandler) Log(r *Record) error {
	return s.handler.Log(r)
}

// Root returns the root logger. Call SetHandler on it to change where
// every derived logger writes.
func Root() Logger {
	return root
}

var root = &logger{h: &swapHandler{handler: StreamHandler(os.Stderr, TerminalFormat(termColorSupported(os.Stderr)))}}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  mergeCtx(l.ctx, ctx),
		Call: stack.Caller(2),
	}
	_ = l.h.Log(r)
}

func mergeCtx(base, extra []interface{}) []interface{} {
	if len(base) == 0 {
		return extra
	}
	if len(extra) == 0 {
		return base
	}
	out := make([]interface{}, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.write(LvlCrit, msg, ctx)
}

func (l *logger) New(ctx ...interface{}) Logger {
	return &logger{ctx: mergeCtx(l.ctx, ctx), h: l.h}
}

func (l *logger) SetHandler(h Handler) {
	l.h.handler = h
}

// New creates a new logger rooted under the package root logger.
func New(ctx ...interface{}) Logger {
	return root.New(ctx...)
}
