// Package utils provides small path, file, formatting and logging helpers
// shared across the SaveBox daemon.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	// maxPendingLine caps how much of an unterminated line is buffered
	// before it is flushed as its own line.
	maxPendingLine = 1024 * 1024 // 1MB
)

// LogInterceptor is an io.Writer that numbers and timestamps every line
// written through it. Partial writes are buffered until a newline arrives,
// so each line in the target carries exactly one prefix.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending []byte
}

// NewLogInterceptor returns an interceptor that prefixes every complete
// line with a sequence number and timestamp before writing it to target.
func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target}
}

// Write implements io.Writer. Complete lines are written to the target
// with their prefix; a trailing partial line stays buffered until the
// next write or Close.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending = append(i.pending, p...)
	for {
		nl := bytes.IndexByte(i.pending, '\n')
		if nl < 0 {
			break
		}
		line := bytes.TrimSuffix(i.pending[:nl], []byte{'\r'})
		err := i.writeLine(line)
		i.pending = i.pending[nl+1:]
		if err != nil {
			return len(p), err
		}
	}

	// a runaway unterminated line flushes rather than growing unbounded
	if len(i.pending) > maxPendingLine {
		err := i.writeLine(i.pending)
		i.pending = i.pending[:0]
		if err != nil {
			return len(p), err
		}
	}

	return len(p), nil
}

// Close flushes any buffered partial line to the target.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.pending) == 0 {
		return nil
	}
	err := i.writeLine(i.pending)
	i.pending = nil
	return err
}

// writeLine emits one prefixed line as a single write so concurrent
// writers cannot interleave mid-line.
func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	prefix := slog.Uint64("line", i.seq).String() + " " +
		slog.String("time", time.Now().Format(time.RFC3339)).String() + " "

	buf := make([]byte, 0, len(prefix)+len(line)+1)
	buf = append(buf, prefix...)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := i.target.Write(buf)
	return err
}
