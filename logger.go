package kvmirror

import (
	"context"
	"fmt"
	"log"
)

// Logger receives store diagnostics: persistence failures, restore
// results and, at debug level, accepted writes. Methods may be called from
// the write-behind goroutine, so implementations must be concurrency safe.
type Logger interface {
	Info(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
}

type discardLogger struct{}

func (discardLogger) Info(context.Context, string, ...interface{})  {}
func (discardLogger) Warn(context.Context, string, ...interface{})  {}
func (discardLogger) Error(context.Context, string, ...interface{}) {}
func (discardLogger) Debug(context.Context, string, ...interface{}) {}

// StdLogger adapts a *log.Logger. Debug messages are dropped unless
// Verbose is set.
type StdLogger struct {
	L       *log.Logger
	Verbose bool
}

// NewStdLogger wraps l, or the standard logger when l is nil.
func NewStdLogger(l *log.Logger) *StdLogger {
	if l == nil {
		l = log.Default()
	}
	return &StdLogger{L: l}
}

func (s *StdLogger) Info(ctx context.Context, format string, args ...interface{}) {
	s.print("INFO", format, args...)
}

func (s *StdLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	s.print("WARN", format, args...)
}

func (s *StdLogger) Error(ctx context.Context, format string, args ...interface{}) {
	s.print("ERROR", format, args...)
}

func (s *StdLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	if s.Verbose {
		s.print("DEBUG", format, args...)
	}
}

func (s *StdLogger) print(level, format string, args ...interface{}) {
	s.L.Printf("%s %s", level, fmt.Sprintf(format, args...))
}
