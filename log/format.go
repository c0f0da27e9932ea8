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

package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Format turns a Record into bytes.
type Format interface {
	Format(r *Record) []byte
}

type formatFunc func(*Record) []byte

func (f formatFunc) Format(r *Record) []byte { return f(r) }

var lvlColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// TerminalFormat renders a Record for human eyes, optionally colorized.
func TerminalFormat(colorize bool) Format {
	return formatFunc(func(r *Record) []byte {
		var buf bytes.Buffer
		lvl := r.Lvl.String()
		if colorize {
			if c, ok := lvlColor[r.Lvl]; ok {
				lvl = c.Sprint(lvl)
			}
		}
		fmt.Fprintf(&buf, "%s[%s] %s", r.Time.Format("2006-01-02T15:04:05-0700"), lvl, r.Msg)
		writeCtx(&buf, r.Ctx)
		if r.Call.Frame().Function != "" {
			fmt.Fprintf(&buf, " caller=%s:%d", r.Call.Frame().File, r.Call.Frame().Line)
		}
		buf.WriteByte('\n')
		return buf.Bytes()
	})
}

func writeCtx(buf *bytes.Buffer, ctx []interface{}) {
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(buf, " %v=%v", ctx[i], ctx[i+1])
	}
}

// LogfmtFormat renders a Record in logfmt (key=value) form, stable-sorted
// by key, for machine consumption.
func LogfmtFormat() Format {
	return formatFunc(func(r *Record) []byte {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "t=%s lvl=%s msg=%q", r.Time.Format(time3339()), r.Lvl, r.Msg)
		keys := make([]string, 0, len(ctx2map(r.Ctx)))
		m := ctx2map(r.Ctx)
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, m[k])
		}
		buf.WriteByte('\n')
		return buf.Bytes()
	})
}

func ctx2map(ctx []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		m[fmt.Sprint(ctx[i])] = ctx[i+1]
	}
	return m
}

func time3339() string { return "2006-01-02T15:04:05.000Z0700" }

// StreamHandler writes formatted records to w.
func StreamHandler(w io.Writer, fmtr Format) Handler {
	h := &streamHandler{w: w, fmtr: fmtr}
	return h
}

type streamHandler struct {
	mu   sync.Mutex
	w    io.Writer
	fmtr Format
}

func (h *streamHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(h.fmtr.Format(r))
	return err
}

// termColorSupported reports whether f is a terminal (including a
// Cygwin terminal). It does not wrap f; ColorableWriter does that.
func termColorSupported(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorableWriter wraps w so ANSI sequences render correctly on every
// platform the engine ships on.
func ColorableWriter(f *os.File) io.Writer {
	return colorable.NewColorable(f)
}
