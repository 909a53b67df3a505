package worker

import (
	"bytes"
	"sync"
)

// responseWriter buffers the child's stdout and signals once the first complete line arrived.
type responseWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int
	overflow bool
	ready    chan struct{}
	signaled bool
}

func newResponseWriter(limit int) *responseWriter {
	return &responseWriter{limit: limit, ready: make(chan struct{})}
}

func (w *responseWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.overflow {
		room := w.limit - w.buf.Len()
		if len(p) > room {
			w.buf.Write(p[:room])
			w.overflow = true
		} else {
			w.buf.Write(p)
		}
	}
	if !w.signaled && (bytes.IndexByte(w.buf.Bytes(), '\n') >= 0 || w.overflow) {
		w.signaled = true
		close(w.ready)
	}
	// Always report success so the child never blocks on a full pipe.
	return len(p), nil
}

func (w *responseWriter) Ready() <-chan struct{} {
	return w.ready
}

// FirstLine returns the bytes up to the first newline, or everything when no newline was written.
func (w *responseWriter) FirstLine() ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := w.buf.Bytes()
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, w.overflow
}

// boundedBuffer keeps the first limit bytes of stderr.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
	} else {
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	if b.truncated {
		s += "...(truncated)"
	}
	return s
}
