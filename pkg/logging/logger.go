// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides the structured side-channel logger used to report
// diagnostics that must never reach instrumented code: export failures,
// protobuf decode errors and partial-success rejections from a collector.
//
// It is a thin wrapper around log/slog. Nothing in this package blocks on
// I/O beyond what slog's handlers already do, and nothing here ever panics.
package logging

import (
	"log/slog"
	"os"
)

// Level is the severity of a log line, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. The zero value logs Debug and above to
// stderr as text, with no service attribute.
type Config struct {
	// Level is the minimum level that is emitted.
	Level Level

	// Service is attached to every log line as the "service" attribute.
	Service string

	// JSON selects JSON output instead of human-readable text.
	JSON bool
}

// Logger wraps slog.Logger with the fixed service attribute and level
// filtering used throughout this module. Safe for concurrent use (slog's
// handlers already serialize writes).
type Logger struct {
	slog *slog.Logger
}

// New builds a Logger writing to stderr per config.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	return &Logger{slog: slog.New(handler)}
}

// Default returns the package's default logger: Info level, stderr, text.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "spanbridge"})
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child Logger carrying additional fixed attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}
