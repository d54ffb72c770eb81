// Package logging implements the leveled logger every driver process
// in this repository uses, satisfying internal/interfaces.Logger.
//
// Adapted from the teacher's internal/logging/logger.go: the
// level-gated log.Logger wrapper and global-default-with-RWMutex
// pattern are kept, but the key-value "args ...any" formatting is
// dropped (nothing in this repository logs structured fields) and
// every message can be tagged with the driver unit it came from
// instead (WithUnit), useful once cmd/sdblockd is logging several
// partitions through one process.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level selects which messages a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger wraps a stdlib *log.Logger with level filtering and a
// per-instance unit tag (e.g. "ttyd", "sdblockd", "part1").
type Logger struct {
	mu    sync.Mutex
	out   *log.Logger
	level Level
	unit  string
}

// Config configures a new Logger.
type Config struct {
	Level  Level
	Output io.Writer
	Unit   string
}

// DefaultConfig logs at Info level to stderr with no unit tag.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// New creates a Logger from cfg.
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		out:   log.New(output, "", log.LstdFlags|log.Lmicroseconds),
		level: cfg.Level,
		unit:  cfg.Unit,
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Default returns the process-wide default logger, creating one at
// LevelInfo/stderr on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

func (l *Logger) prefix(level Level) string {
	switch level {
	case LevelDebug:
		return "[DEBUG]"
	case LevelWarn:
		return "[WARN]"
	case LevelError:
		return "[ERROR]"
	default:
		return "[INFO]"
	}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if l.unit != "" {
		l.out.Printf("%s [%s] %s", l.prefix(level), l.unit, msg)
	} else {
		l.out.Printf("%s %s", l.prefix(level), msg)
	}
}

// Debugf implements internal/interfaces.Logger.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs at LevelInfo.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs at LevelError.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Printf implements internal/interfaces.Logger, logging at LevelInfo
// for compatibility with code that only knows about Printf.
func (l *Logger) Printf(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// WithUnit returns a copy of l tagged with a different unit name.
func (l *Logger) WithUnit(unit string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{out: l.out, level: l.level, unit: unit}
}
