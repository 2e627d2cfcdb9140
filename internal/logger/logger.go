package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes leveled lines to any number of file sinks. A session attaches
// its own session.log for the duration of a job and detaches it afterwards.
type Logger struct {
	mu            sync.Mutex
	sinks         map[string]*sink
	level         Level
	includeStdout bool
}

type sink struct {
	logger *log.Logger
	closer io.Closer
}

// New creates a logger. filePath may be empty for stdout-only logging.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	l := &Logger{
		sinks:         make(map[string]*sink),
		level:         level,
		includeStdout: includeStdout,
	}
	if filePath != "" {
		if err := l.AttachFile(filePath); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// AttachFile adds a log file sink. Attaching the same path twice is a no-op.
func (l *Logger) AttachFile(filePath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sinks[filePath]; ok {
		return nil
	}
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.sinks[filePath] = &sink{logger: log.New(f, "", 0), closer: f}
	return nil
}

// DetachFile removes and closes a previously attached sink.
func (l *Logger) DetachFile(filePath string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sinks[filePath]; ok {
		_ = s.closer.Close()
		delete(l.sinks, filePath)
	}
}

// Close closes every sink.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, s := range l.sinks {
		_ = s.closer.Close()
		delete(l.sinks, path)
	}
}

func (l *Logger) log(lvl Level, prefix string, format string, v ...any) {
	if lvl < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	fullMsg := fmt.Sprintf("%s [%s] %s", timestamp, prefix, msg)

	l.mu.Lock()
	for _, s := range l.sinks {
		s.logger.Println(fullMsg)
	}
	stdout := l.includeStdout
	l.mu.Unlock()

	// Debug spam stays out of the console so it doesn't fight the progress bar.
	if stdout && lvl >= LevelInfo {
		fmt.Fprintln(os.Stderr, fullMsg)
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL", f, v...); os.Exit(1) }

// Discard returns a logger with no sinks and no stdout echo, for tests.
func Discard() *Logger {
	return &Logger{sinks: make(map[string]*sink), level: LevelFatal}
}
