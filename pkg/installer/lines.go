package installer

import (
	"bytes"
	"strings"
	"sync"
)

// lineWriter calls fn for every complete line written to it.
type lineWriter struct {
	lock    sync.Mutex
	pending bytes.Buffer
	fn      func(string)
}

func newLineWriter(fn func(string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.pending.Write(p)
	for {
		data := w.pending.Bytes()
		pos := bytes.IndexAny(data, "\r\n")
		if pos < 0 {
			break
		}

		line := string(data[:pos])
		w.pending.Next(pos + 1)
		if line != "" {
			w.fn(line)
		}
	}

	return len(p), nil
}

// Flush passes a trailing line without newline to fn.
func (w *lineWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.pending.Len() > 0 {
		w.fn(w.pending.String())
		w.pending.Reset()
	}
}

// tailWriter keeps the last n lines.
type tailWriter struct {
	lines []string
	size  int
}

func newTailWriter(size int) *tailWriter {
	return &tailWriter{size: size}
}

func (t *tailWriter) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.size {
		t.lines = t.lines[len(t.lines)-t.size:]
	}
}

func (t *tailWriter) String() string {
	return strings.Join(t.lines, "\n")
}
