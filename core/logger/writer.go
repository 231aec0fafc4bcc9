package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

type logLine struct {
	data   []byte
	severe bool
}

// lineWriter writes formatted lines from a single goroutine. Every line
// goes to out; severe lines are copied to severe when it is set. Buffers
// are flushed whenever the backlog drains.
type lineWriter struct {
	lines chan logLine
	flush chan chan error
	done  chan struct{}

	out    *bufio.Writer
	severe *bufio.Writer

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newLineWriter(out, severe io.Writer, backlog int) *lineWriter {
	if backlog <= 0 {
		backlog = 256
	}
	w := &lineWriter{
		lines: make(chan logLine, backlog),
		flush: make(chan chan error),
		done:  make(chan struct{}),
	}
	if out != nil {
		w.out = bufio.NewWriter(out)
	}
	if severe != nil {
		w.severe = bufio.NewWriter(severe)
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for {
		select {
		case l, ok := <-w.lines:
			if !ok {
				w.fail(w.sync())
				return
			}
			w.fail(w.write(l))
			if len(w.lines) == 0 {
				w.fail(w.sync())
			}
		case ack := <-w.flush:
			ack <- w.sync()
		}
	}
}

func (w *lineWriter) write(l logLine) error {
	var errs []error
	if w.out != nil {
		if _, err := w.out.Write(l.data); err != nil {
			errs = append(errs, err)
		}
	}
	if l.severe && w.severe != nil {
		if _, err := w.severe.Write(l.data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) sync() error {
	var errs []error
	for _, b := range []*bufio.Writer{w.out, w.severe} {
		if b == nil {
			continue
		}
		if err := b.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) fail(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

// Write queues a copy of p. It blocks while the backlog is full so no line is dropped.
func (w *lineWriter) Write(p []byte, severe bool) error {
	if len(p) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.Err(); err != nil {
		return err
	}
	w.lines <- logLine{data: append([]byte(nil), p...), severe: severe}
	return nil
}

// Flush waits until every queued line reached the sinks.
func (w *lineWriter) Flush() error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.Err()
	}
	ack := make(chan error, 1)
	w.flush <- ack
	w.mu.RUnlock()
	return <-ack
}

// Close drains the backlog and stops the writer.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.Err()
}

// Err returns the first write error.
func (w *lineWriter) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
