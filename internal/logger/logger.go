// Package logger is the engine's thread-safe line logger: every line
// goes to stdout and to this process's file under log/<timestamp>/,
// guarded by a single mutex the way spec.md's "global mutex serializes
// lines" calls for.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Level selects which lines are emitted. Error is always on.
type Level int

const (
	Error Level = iota
	Info
	Debug
)

// Logger writes to stdout and a per-rank file, one mutex serializing
// both targets. Build exactly one per process with New and share it.
type Logger struct {
	mu    sync.Mutex
	out   *log.Logger
	level Level
	file  *os.File
}

// New opens log/<timestamp>/proc-<rank>_output.log (creating the
// directory if needed) and returns a Logger writing to it and stdout.
func New(timestamp int64, rank int, level Level) (*Logger, error) {
	dir := filepath.Join("log", fmt.Sprintf("%d", timestamp))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("proc-%d_output.log", rank))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	mw := io.MultiWriter(os.Stdout, f)
	return &Logger{
		out:   log.New(mw, fmt.Sprintf("[rank %d] ", rank), log.LstdFlags),
		level: level,
		file:  f,
	}, nil
}

func (l *Logger) line(level Level, prefix, format string, args ...any) {
	if level > l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Printf(prefix+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) { l.line(Error, "ERROR ", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.line(Info, "INFO  ", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.line(Debug, "DEBUG ", format, args...) }

// Close releases the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
