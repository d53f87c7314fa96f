// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger provides the structured logger that is carried in a context
// and a buffer of recent log lines that can be followed over HTTP.
package logger

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Streamer is an [io.Writer] that keeps the most recent complete lines
// written to it and lets readers follow new ones.
//
// As an [http.Handler] it writes the kept lines and then follows new lines
// until the client goes away. The "follow=false" query parameter stops after
// the kept lines. Clients sending "Accept: text/event-stream" get server-sent
// events.
type Streamer interface {
	io.Writer
	http.Handler

	// Lines returns the kept lines, oldest first, without newlines.
	Lines() []string

	// Stream returns a channel receiving lines written from now on, and a
	// function that stops the stream. A reader that falls behind misses
	// lines.
	Stream() (<-chan string, func())
}

// NewStreamer returns a Streamer that keeps up to size lines.
func NewStreamer(size int) Streamer {
	return &lineBuffer{
		lines:   make([]string, 0, size),
		size:    size,
		streams: make(map[chan string]struct{}),
	}
}

type lineBuffer struct {
	mu      sync.Mutex
	lines   []string // ring once len(lines) == size
	size    int
	next    int    // oldest line once the ring is full
	partial string // unterminated tail of the last write
	streams map[chan string]struct{}
}

func (b *lineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := b.partial + string(p)
	for {
		line, rest, ok := strings.Cut(text, "\n")
		if !ok {
			break
		}
		b.add(line)
		text = rest
	}
	b.partial = text
	return len(p), nil
}

func (b *lineBuffer) add(line string) {
	if b.size <= 0 {
		return
	}
	if len(b.lines) < b.size {
		b.lines = append(b.lines, line)
	} else {
		b.lines[b.next] = line
		b.next = (b.next + 1) % b.size
	}
	for stream := range b.streams {
		select {
		case stream <- line:
		default:
		}
	}
}

func (b *lineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *lineBuffer) snapshot() []string {
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	return append(out, b.lines[:b.next]...)
}

func (b *lineBuffer) Stream() (<-chan string, func()) {
	_, stream, stop := b.follow()
	return stream, stop
}

// follow returns the kept lines and a stream of the following ones. No line
// is lost or repeated between the two.
func (b *lineBuffer) follow() ([]string, <-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stream := make(chan string, b.size+1)
	b.streams[stream] = struct{}{}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.streams, stream)
			close(stream)
		})
	}
	return b.snapshot(), stream, stop
}

func (b *lineBuffer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	sse := strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	follow := true
	if s := r.URL.Query().Get("follow"); s != "" {
		if v, err := strconv.ParseBool(s); err == nil {
			follow = v
		}
	}

	write := func(line string) {
		if sse {
			fmt.Fprintf(w, "event: logline\ndata: %s\n\n", line)
		} else {
			fmt.Fprintln(w, line)
		}
	}
	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	if !follow {
		for _, line := range b.Lines() {
			write(line)
		}
		return
	}

	history, stream, stop := b.follow()
	defer stop()
	for _, line := range history {
		write(line)
	}
	flush()

	for {
		select {
		case line := <-stream:
			write(line)
			flush()
		case <-r.Context().Done():
			return
		}
	}
}
