// Package output serializes every result-file write through one goroutine,
// so records from ensembles merging concurrently never interleave.
package output

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var ErrClosed = errors.New("output: writer closed")

type request struct {
	file     string
	lines    []string
	truncate bool
	ack      chan error
}

// Writer appends tab-separated records to files under one directory. All
// writes run on a single goroutine; each opens the file, writes, syncs and
// closes it before acknowledging.
type Writer struct {
	dir  string
	reqs chan request
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWriter creates the output directory and starts the writer goroutine.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	w := &Writer{
		dir:  dir,
		reqs: make(chan request, 64),
		done: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

func (w *Writer) loop() {
	defer close(w.done)
	for req := range w.reqs {
		err := w.write(req)
		if err != nil {
			slog.Error("output write failed", "file", req.file, "error", err)
		}
		req.ack <- err
	}
}

func (w *Writer) write(req request) (err error) {
	if req.file == "" || filepath.Base(req.file) != req.file || req.file == ".." {
		return fmt.Errorf("invalid output file name %q", req.file)
	}
	path := filepath.Join(w.dir, req.file)

	flags := os.O_CREATE | os.O_WRONLY
	if req.truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	buf := bufio.NewWriter(f)
	for _, line := range req.lines {
		if _, err := buf.WriteString(line); err != nil {
			return err
		}
		if err := buf.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Writer) submit(ctx context.Context, req request) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	select {
	case w.reqs <- req:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-req.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Append adds one line to file, creating it if needed.
func (w *Writer) Append(ctx context.Context, file, line string) error {
	return w.submit(ctx, request{file: file, lines: []string{line}, ack: make(chan error, 1)})
}

// WriteFile replaces file with lines.
func (w *Writer) WriteFile(ctx context.Context, file string, lines []string) error {
	return w.submit(ctx, request{file: file, lines: lines, truncate: true, ack: make(chan error, 1)})
}

// Close waits for queued writes to finish and stops the writer. It is safe
// to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.reqs)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}
