package log

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	logFile *os.File
	buffer  *bufio.Writer
)

// syncWriter serializes writes into the shared buffer; the buffer is also
// flushed from FlushLog on other goroutines.
type syncWriter struct{}

func (syncWriter) Write(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	if buffer == nil {
		return len(p), nil
	}
	return buffer.Write(p)
}

// NewLogger logs to stdout and to <dir>/<name>-<timestamp>.txt. An empty name
// defaults to "raidbot".
func NewLogger(debug bool, dir, name string) (*slog.Logger, error) {
	if name == "" {
		name = "raidbot"
	}
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}

	fileName := fmt.Sprintf("%s-%s.txt", name, time.Now().Format("2006-01-02-15-04-05"))
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	mu.Lock()
	if buffer != nil {
		buffer.Flush()
		logFile.Close()
	}
	logFile = f
	buffer = bufio.NewWriterSize(f, 32*1024)
	mu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.TimeOnly))
			}
			return a
		},
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, syncWriter{}), opts)
	return slog.New(handler), nil
}

// FlushLog writes buffered records to disk.
func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	if buffer != nil {
		buffer.Flush()
	}
}

func FlushAndClose() {
	mu.Lock()
	defer mu.Unlock()
	if buffer == nil {
		return
	}
	buffer.Flush()
	logFile.Close()
	buffer = nil
	logFile = nil
}
