// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// The aitbc-coordinator library is distributed in the hope that it will be
// useful, but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU Lesser
// General Public License for more details.

// Package log provides the structured, per-module logger used throughout
// the coordinator. Every subsystem obtains its own logger via
// NewModuleLogger and logs with key/value pairs rather than formatted
// strings, so transition and error logs stay greppable.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the contextual, key/value logging interface used across the
// coordinator. ctx is an alternating key, value, key, value... list.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

var (
	root    *zap.SugaredLogger
	exitFn  = func() { os.Exit(1) }
	initLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stdout), initLvl)
	root = zap.New(core).Sugar()
}

// SetLevel adjusts the process-wide minimum log level ("trace", "debug",
// "info", "warn", "error", "crit").
func SetLevel(level string) {
	switch level {
	case "trace", "debug":
		initLvl.SetLevel(zapcore.DebugLevel)
	case "warn":
		initLvl.SetLevel(zapcore.WarnLevel)
	case "error", "crit":
		initLvl.SetLevel(zapcore.ErrorLevel)
	default:
		initLvl.SetLevel(zapcore.InfoLevel)
	}
}

// SetExitFunc overrides what Crit calls after logging; tests use this to
// assert a fatal condition was hit without killing the test binary.
func SetExitFunc(fn func()) { exitFn = fn }

type moduleLogger struct {
	z *zap.SugaredLogger
}

// NewModuleLogger returns a Logger tagged with the given module name,
// e.g. log.NewModuleLogger("jobqueue").
func NewModuleLogger(module string) Logger {
	return &moduleLogger{z: root.With("module", module)}
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) { l.z.Debugw(msg, ctx...) }
func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.z.Debugw(msg, ctx...) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.z.Infow(msg, ctx...) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.z.Warnw(msg, ctx...) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.z.Errorw(msg, ctx...) }
func (l *moduleLogger) Crit(msg string, ctx ...interface{}) {
	l.z.Errorw(msg, ctx...)
	exitFn()
}
func (l *moduleLogger) With(ctx ...interface{}) Logger {
	return &moduleLogger{z: l.z.With(ctx...)}
}
