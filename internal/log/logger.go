// SPDX-License-Identifier: MIT

// Package log is the process-wide leveled logger. The level is held
// atomically so capture goroutines can log without coordination. Components
// log through a Named logger so every line carries its origin.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// --- Global Logger State ---

var currentLevel atomic.Uint32

// logger writes date and time with microseconds.
var logger = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output. The terminal meter sends logs to a file
// so they do not tear the display; tests capture them in a buffer.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func output(level LogLevel, msg string) {
	// INFO and WARN are padded so messages line up with DEBUG/ERROR.
	pad := " "
	if len(level.String()) == 4 {
		pad = "  "
	}
	logger.Print("[", level, "]", pad, msg)
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		output(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		output(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		output(LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		output(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	output(LevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// --- Named loggers ---

// Logger prefixes every message with a component name, for example
// "capture[microphone]: stream restarted".
type Logger struct {
	name string
}

// Named returns a Logger for the given component.
func Named(name string) Logger {
	return Logger{name: name}
}

// Name returns the component name.
func (l Logger) Name() string {
	return l.name
}

func (l Logger) prefix(format string) string {
	if l.name == "" {
		return format
	}
	return l.name + ": " + format
}

// Debugf logs at debug level with the component prefix.
func (l Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		output(LevelDebug, fmt.Sprintf(l.prefix(format), v...))
	}
}

// Infof logs at info level with the component prefix.
func (l Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		output(LevelInfo, fmt.Sprintf(l.prefix(format), v...))
	}
}

// Warnf logs at warn level with the component prefix.
func (l Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		output(LevelWarn, fmt.Sprintf(l.prefix(format), v...))
	}
}

// Errorf logs at error level with the component prefix.
func (l Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		output(LevelError, fmt.Sprintf(l.prefix(format), v...))
	}
}
