// Copyright 2025 The tellerd Authors
// This file is part of the tellerd library.
//
// The tellerd library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The tellerd library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the tellerd library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides leveled key/value logging for the tellerd tree.
//
// The interface keeps the ergonomics of log15-style loggers (a Logger carries
// context pairs, children extend them) while the actual encoding, sinks and
// rotation are delegated to zap. Call Setup once from the process entry point;
// libraries just grab Root or New and log.
package log

import (
	"sync"

	"go.uber.org/zap"
)

// Logger writes leveled messages with an even-length list of key/value
// context arguments, e.g. log.Info("imported block", "number", n, "took", d).
type Logger interface {
	// New returns a child logger with ctx appended to its context.
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})

	// Crit logs and then terminates the process.
	Crit(msg string, ctx ...interface{})
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) New(ctx ...interface{}) Logger {
	return &zapLogger{s: l.s.With(ctx...)}
}

// Trace maps onto zap's debug level; zap has no finer one. Verbosity 5 makes
// the distinction at the sink instead.
func (l *zapLogger) Trace(msg string, ctx ...interface{}) { l.s.Debugw(msg, ctx...) }

func (l *zapLogger) Debug(msg string, ctx ...interface{}) { l.s.Debugw(msg, ctx...) }
func (l *zapLogger) Info(msg string, ctx ...interface{})  { l.s.Infow(msg, ctx...) }
func (l *zapLogger) Warn(msg string, ctx ...interface{})  { l.s.Warnw(msg, ctx...) }
func (l *zapLogger) Error(msg string, ctx ...interface{}) { l.s.Errorw(msg, ctx...) }
func (l *zapLogger) Crit(msg string, ctx ...interface{})  { l.s.Fatalw(msg, ctx...) }

var (
	rootMu sync.RWMutex
	root   Logger = &zapLogger{s: defaultZap().Sugar()}
)

// Root returns the process-wide logger. Before Setup it logs to stderr at
// info level.
func Root() Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

func setRoot(l Logger) {
	rootMu.Lock()
	root = l
	rootMu.Unlock()
}

// New returns a child of the root logger carrying the given context.
func New(ctx ...interface{}) Logger {
	return Root().New(ctx...)
}

// Trace logs on the root logger.
func Trace(msg string, ctx ...interface{}) { Root().Trace(msg, ctx...) }

// Debug logs on the root logger.
func Debug(msg string, ctx ...interface{}) { Root().Debug(msg, ctx...) }

// Info logs on the root logger.
func Info(msg string, ctx ...interface{}) { Root().Info(msg, ctx...) }

// Warn logs on the root logger.
func Warn(msg string, ctx ...interface{}) { Root().Warn(msg, ctx...) }

// Error logs on the root logger.
func Error(msg string, ctx ...interface{}) { Root().Error(msg, ctx...) }

// Crit logs on the root logger and exits.
func Crit(msg string, ctx ...interface{}) { Root().Crit(msg, ctx...) }
