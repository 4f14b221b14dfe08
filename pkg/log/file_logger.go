package log

import (
	"fmt"
	"os"
	"sync"
)

// FileLogger writes protocol events to a file in CBOR format.
// It is safe for concurrent use from multiple goroutines.
//
// When MaxBytes is set the file is rotated once it grows past the limit:
// the current file is renamed to <path>.1 (replacing any previous one) and
// a fresh file is started.
type FileLogger struct {
	mu       sync.Mutex
	path     string
	maxBytes int64

	file    *os.File
	written int64
	closed  bool
}

// rotatedSuffix names the previous file of a rotated capture.
const rotatedSuffix = ".1"

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithMaxBytes enables size based rotation.
func WithMaxBytes(n int64) FileOption {
	return func(l *FileLogger) { l.maxBytes = n }
}

// NewFileLogger creates a new FileLogger that appends to the specified path.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	l := &FileLogger{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening protocol log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("opening protocol log: %w", err)
	}
	l.file = f
	l.written = info.Size()
	return nil
}

// Path returns the path of the active log file.
func (l *FileLogger) Path() string {
	return l.path
}

// Log writes an event to the log file.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	data, err := EncodeEvent(event)
	if err != nil {
		return
	}
	// Write errors are dropped: logging must not disrupt bus replies.
	n, _ := l.file.Write(data)
	l.written += int64(n)

	if l.maxBytes > 0 && l.written >= l.maxBytes {
		l.rotate()
	}
}

func (l *FileLogger) rotate() {
	_ = l.file.Close()
	_ = os.Rename(l.path, l.path+rotatedSuffix)
	if err := l.open(); err != nil {
		l.closed = true
	}
}

// Close closes the log file.
// It is safe to call Close multiple times.
// After Close is called, subsequent Log calls are silently ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	return l.file.Close()
}

// Compile-time interface satisfaction check.
var _ Logger = (*FileLogger)(nil)
