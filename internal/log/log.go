// Package log defines the pluggable logging interface used throughout
// relayq. The default implementation is backed by zerolog; callers may
// substitute their own Logger via Base.
package log

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Level represents a logging level.
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Base is the minimal logging interface relayq depends on. Users may
// supply their own implementation (e.g. to route logs into an existing
// structured logging pipeline).
type Base interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
}

// Logger wraps a Base implementation with a level filter.
type Logger struct {
	base  Base
	level Level
}

// NewLogger returns a Logger wrapping base. If base is nil, a zerolog
// console writer is used, matching this codebase's default logging
// backend.
func NewLogger(base Base) *Logger {
	if base == nil {
		base = newZerologBase()
	}
	return &Logger{base: base, level: InfoLevel}
}

// SetLevel sets the minimum level that will be forwarded to the underlying
// Base logger.
func (l *Logger) SetLevel(level Level) { l.level = level }

func (l *Logger) Debug(args ...interface{}) {
	if l.level <= DebugLevel {
		l.base.Debug(args...)
	}
}

func (l *Logger) Info(args ...interface{}) {
	if l.level <= InfoLevel {
		l.base.Info(args...)
	}
}

func (l *Logger) Warn(args ...interface{}) {
	if l.level <= WarnLevel {
		l.base.Warn(args...)
	}
}

func (l *Logger) Error(args ...interface{}) {
	if l.level <= ErrorLevel {
		l.base.Error(args...)
	}
}

func (l *Logger) Fatal(args ...interface{}) {
	l.base.Fatal(args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }

// zerologBase adapts zerolog.Logger to the Base interface.
type zerologBase struct {
	z zerolog.Logger
}

func newZerologBase() *zerologBase {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return &zerologBase{z: zerolog.New(writer).With().Timestamp().Logger()}
}

func (b *zerologBase) Debug(args ...interface{}) { b.z.Debug().Msg(fmt.Sprint(args...)) }
func (b *zerologBase) Info(args ...interface{})  { b.z.Info().Msg(fmt.Sprint(args...)) }
func (b *zerologBase) Warn(args ...interface{})  { b.z.Warn().Msg(fmt.Sprint(args...)) }
func (b *zerologBase) Error(args ...interface{}) { b.z.Error().Msg(fmt.Sprint(args...)) }
func (b *zerologBase) Fatal(args ...interface{}) { b.z.Fatal().Msg(fmt.Sprint(args...)) }
