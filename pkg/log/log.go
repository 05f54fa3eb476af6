// Package log provides named, leveled loggers on top of the standard library
// logger. Every line carries a "[name>]" prefix so output from the API,
// history and provider services can be told apart with grep.
//
//	l := log.ForService("history")
//	l.Infof("loaded %d entries", n)
//	l.Debugf("raw: %s", body) // printed only when debug is on for "history"
//
// Debug output can be enabled globally (SetGlobalDebug) or per service
// (EnableDebugFor). All functions are safe for concurrent use.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// Level names.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelDebug = "DEBUG"
)

// Logger is a named logger.
type Logger struct {
	name string
	std  *log.Logger
}

// writerHolder keeps atomic.Value storing a single concrete type.
type writerHolder struct {
	w io.Writer
}

var (
	globalDebug  atomic.Bool
	serviceDebug sync.Map // map[string]*atomic.Bool
	loggers      sync.Map // map[string]*Logger
	outputWriter atomic.Value
)

func init() {
	outputWriter.Store(writerHolder{w: os.Stderr})
}

// ForService returns the memoized logger for name.
func ForService(name string) *Logger {
	if name == "" {
		name = "unknown"
	}
	if l, ok := loggers.Load(name); ok {
		return l.(*Logger)
	}
	w := outputWriter.Load().(writerHolder).w
	l := &Logger{name: name, std: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
	actual, _ := loggers.LoadOrStore(name, l)
	return actual.(*Logger)
}

// SetGlobalDebug enables or disables debug output for every service.
func SetGlobalDebug(enabled bool) {
	globalDebug.Store(enabled)
}

// GlobalDebug reports whether global debug output is enabled.
func GlobalDebug() bool {
	return globalDebug.Load()
}

// EnableDebugFor enables debug output for a single service.
func EnableDebugFor(name string) {
	if name == "" {
		return
	}
	v, _ := serviceDebug.LoadOrStore(name, &atomic.Bool{})
	v.(*atomic.Bool).Store(true)
}

// DisableDebugFor disables debug output for a single service.
func DisableDebugFor(name string) {
	if v, ok := serviceDebug.Load(name); ok {
		v.(*atomic.Bool).Store(false)
	}
}

// DebugEnabledFor reports whether debug output is on for name.
func DebugEnabledFor(name string) bool {
	if globalDebug.Load() {
		return true
	}
	if v, ok := serviceDebug.Load(name); ok {
		return v.(*atomic.Bool).Load()
	}
	return false
}

// SetOutput redirects all existing and future loggers to w.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	outputWriter.Store(writerHolder{w: w})
	loggers.Range(func(_, v any) bool {
		v.(*Logger).std.SetOutput(w)
		return true
	})
}

// Name returns the service name of the logger.
func (l *Logger) Name() string {
	return l.name
}

func (l *Logger) output(level, msg string) {
	l.std.Println(level + " [" + l.name + ">] " + msg)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.output(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	l.output(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.output(LevelError, fmt.Sprintf(format, args...))
}

// Debugf logs at debug level when debug is enabled for this service.
func (l *Logger) Debugf(format string, args ...any) {
	if !DebugEnabledFor(l.name) {
		return
	}
	l.output(LevelDebug, fmt.Sprintf(format, args...))
}
