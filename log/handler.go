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

package log

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the sinks and verbosity of the process logger.
type Config struct {
	// Verbosity picks the floor level: 0=crit, 1=error, 2=warn, 3=info,
	// 4=debug, 5=trace.
	Verbosity int

	// File, when set, duplicates all output into a size-rotated JSON file.
	File string

	// NoColor disables ANSI level coloring even on a terminal.
	NoColor bool
}

// Setup replaces the root logger according to cfg. It is meant to be called
// once, early, from the command line entry point; concurrent loggers obtained
// before Setup keep writing to the previous sinks.
func Setup(cfg Config) error {
	level := verbosityLevel(cfg.Verbosity)

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig(!cfg.NoColor && isatty.IsTerminal(os.Stderr.Fd()))),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		level,
	)
	cores := []zapcore.Core{console}

	if cfg.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     28, // days
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			sink,
			level,
		))
	}

	setRoot(&zapLogger{s: zap.New(zapcore.NewTee(cores...)).Sugar()})
	return nil
}

func verbosityLevel(v int) zapcore.Level {
	switch {
	case v >= 4:
		return zapcore.DebugLevel
	case v == 3:
		return zapcore.InfoLevel
	case v == 2:
		return zapcore.WarnLevel
	case v == 1:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

func consoleEncoderConfig(color bool) zapcore.EncoderConfig {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("01-02|15:04:05.000")
	if color {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return enc
}

// defaultZap is the pre-Setup logger: stderr, info level, no color guesswork.
func defaultZap() *zap.Logger {
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig(false)),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		zapcore.InfoLevel,
	))
}
