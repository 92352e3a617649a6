package session

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"syscall"
	"time"
)

const readRetryDelay = 50 * time.Millisecond

// stream is a bounded queue of output chunks for one child stream. When the
// queue is full the oldest chunk is dropped so the reader, and therefore the
// child, never blocks on a slow consumer.
type stream struct {
	ch chan string
}

func newStream(capacity int) *stream {
	if capacity <= 0 {
		capacity = 1
	}
	return &stream{ch: make(chan string, capacity)}
}

// push enqueues chunk. Only the stream's reader goroutine calls it.
func (s *stream) push(chunk string) {
	for {
		select {
		case s.ch <- chunk:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// drain discards queued chunks and returns them joined.
func (s *stream) drain() string {
	var out []byte
	for {
		select {
		case c := <-s.ch:
			out = append(out, c...)
		default:
			return string(out)
		}
	}
}

// pump copies r into s until EOF or until stop is closed. Transient read
// errors are logged and retried.
func pump(tool, name string, r io.Reader, s *stream, stop <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.push(string(buf[:n]))
		}
		if err == nil {
			continue
		}
		if isClosed(err) {
			return
		}
		slog.Debug("Session reader error, retrying", "tool", tool, "stream", name, "error", err)
		select {
		case <-stop:
			return
		case <-time.After(readRetryDelay):
		}
	}
}

// isClosed reports read errors that mean the stream has ended. A pty master
// returns EIO once the child side is gone.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, fs.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EIO)
}
