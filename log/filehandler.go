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
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// FileHandlerConfig configures the rotating file handler used by
// long-running ccnsyncd processes.
type FileHandlerConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// RotatingFileHandler returns a Handler that writes logfmt records to a
// size- and age-rotated file.
func RotatingFileHandler(cfg FileHandlerConfig) Handler {
	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return StreamHandler(w, LogfmtFormat())
}

// MultiHandler fans a record out to several handlers, continuing past
// the first error so one broken sink never silences the others.
func MultiHandler(handlers ...Handler) Handler {
	return formatMultiHandler(handlers)
}

type formatMultiHandler []Handler

func (m formatMultiHandler) Log(r *Record) error {
	var firstErr error
	for _, h := range m {
		if err := h.Log(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
