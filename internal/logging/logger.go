// Package logging provides structured logging for the exposerver client.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/exposerver/exposerver/internal/events"
)

// Logger wraps zerolog and optionally mirrors warnings and errors onto the
// event bus so the watch loop can surface them next to the progress panel.
type Logger struct {
	zlog     zerolog.Logger
	eventBus atomic.Pointer[events.EventBus]
	output   io.Writer
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
}

// NewLogger creates a logger writing to w. A nil eventBus disables mirroring.
func NewLogger(w io.Writer, eventBus *events.EventBus) *Logger {
	l := &Logger{
		zlog:   zerolog.New(consoleWriter(w)).With().Timestamp().Logger(),
		output: w,
	}
	l.eventBus.Store(eventBus)
	return l
}

// NewDefaultCLILogger creates a default CLI logger.
// Logs go to stderr; stdout carries command output such as links and metadata.
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stderr, nil)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput changes the output writer for the logger.
// Used to route log lines through the progress container so bars are not torn.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.zlog = zerolog.New(consoleWriter(w)).With().Timestamp().Logger()
}

// SetEventBus starts mirroring warnings and errors onto bus. Nil stops it.
func (l *Logger) SetEventBus(bus *events.EventBus) {
	l.eventBus.Store(bus)
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when debug/verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Warnf logs a warning message and mirrors it to the event bus.
func (l *Logger) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.zlog.Warn().Msg(msg)
	l.mirror(events.WarnLevel, msg)
}

// Errorf logs an error message and mirrors it to the event bus.
func (l *Logger) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.zlog.Error().Msg(msg)
	l.mirror(events.ErrorLevel, msg)
}

func (l *Logger) mirror(level events.LogLevel, msg string) {
	if bus := l.eventBus.Load(); bus != nil {
		bus.PublishLog(level, msg, "", nil)
	}
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(consoleWriter(os.Stderr))
}
