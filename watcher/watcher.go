// Package watcher follows a process's diagnostic stream line by line and
// reports when a readiness marker shows up, when the stream ends, or when
// it goes quiet for too long.
package watcher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ScanResult says why a scan stopped.
type ScanResult int

const (
	// MarkerFound: a line containing the marker was read.
	MarkerFound ScanResult = iota

	// StreamClosed: the stream reached end of file (or failed) first.
	StreamClosed

	// TimedOut: no line arrived within the inactivity deadline.
	TimedOut

	// Canceled: the context was cancelled while waiting for a line.
	Canceled
)

func (r ScanResult) String() string {
	switch r {
	case MarkerFound:
		return "marker-found"
	case StreamClosed:
		return "stream-closed"
	case TimedOut:
		return "timed-out"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithTee copies every line read, newline included, to w.
func WithTee(w io.Writer) Option {
	return func(wt *Watcher) {
		wt.tee = w
	}
}

// WithLineFunc calls fn for every line read, from the reader goroutine.
func WithLineFunc(fn func(line string)) Option {
	return func(wt *Watcher) {
		wt.onLine = fn
	}
}

// Watcher reads a stream on its own goroutine so that waiting for the next
// line can be bounded by a deadline. Lines are consumed by at most one
// caller at a time: ScanForMarker, then Drain.
type Watcher struct {
	r      io.Reader
	tee    io.Writer
	onLine func(string)

	lines   chan string
	done    chan struct{}
	discard chan struct{}

	closeOnce   sync.Once
	discardOnce sync.Once

	count  atomic.Int64
	errMu  sync.Mutex
	err    error
	closed bool // lines channel drained to the end; consumer side only
}

// New starts watching r.
func New(r io.Reader, opts ...Option) *Watcher {
	w := &Watcher{
		r:       r,
		lines:   make(chan string),
		done:    make(chan struct{}),
		discard: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.read()

	return w
}

func (w *Watcher) read() {
	defer close(w.lines)

	br := bufio.NewReader(w.r)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			w.count.Add(1)
			line := strings.TrimRight(raw, "\r\n")
			if w.tee != nil {
				io.WriteString(w.tee, line+"\n")
			}
			if w.onLine != nil {
				w.onLine(line)
			}

			select {
			case w.lines <- line:
			case <-w.discard:
			case <-w.done:
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				w.errMu.Lock()
				w.err = err
				w.errMu.Unlock()
			}
			return
		}
	}
}

type nextResult int

const (
	gotLine nextResult = iota
	gotEOF
	gotTimeout
	gotCancel
)

func (w *Watcher) next(ctx context.Context, inactivity time.Duration) (string, nextResult) {
	if w.closed {
		return "", gotEOF
	}

	var timeout <-chan time.Time
	if inactivity > 0 {
		timer := time.NewTimer(inactivity)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case line, ok := <-w.lines:
		if !ok {
			w.closed = true
			return "", gotEOF
		}
		return line, gotLine
	case <-timeout:
		return "", gotTimeout
	case <-ctx.Done():
		return "", gotCancel
	}
}

// ScanForMarker reads lines until one contains marker. The inactivity
// deadline restarts with every line; inactivity <= 0 waits forever.
func (w *Watcher) ScanForMarker(ctx context.Context, marker string, inactivity time.Duration) ScanResult {
	for {
		line, res := w.next(ctx, inactivity)
		switch res {
		case gotLine:
			if strings.Contains(line, marker) {
				return MarkerFound
			}
		case gotEOF:
			return StreamClosed
		case gotTimeout:
			return TimedOut
		default:
			return Canceled
		}
	}
}

// Drain reads and discards lines until the stream ends. It returns
// StreamClosed, TimedOut when a single wait for the next line exceeded
// inactivity, or Canceled.
func (w *Watcher) Drain(ctx context.Context, inactivity time.Duration) ScanResult {
	for {
		_, res := w.next(ctx, inactivity)
		switch res {
		case gotLine:
			continue
		case gotEOF:
			return StreamClosed
		case gotTimeout:
			return TimedOut
		default:
			return Canceled
		}
	}
}

// Discard lets the reader goroutine keep consuming the stream without a
// caller. Tee and line callbacks still see every line. Use it when nobody
// will scan any more but the writer must not block on a full pipe.
func (w *Watcher) Discard() {
	w.discardOnce.Do(func() {
		close(w.discard)
	})
}

// Lines returns the number of lines read so far.
func (w *Watcher) Lines() int {
	return int(w.count.Load())
}

// Err returns the read error that ended the stream, if it was not a plain
// end of file.
func (w *Watcher) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Close stops the reader goroutine. When the stream is an io.Closer it is
// closed too, which unblocks a pending read.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if c, ok := w.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
