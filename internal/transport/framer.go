package transport

import (
	"bytes"
	"encoding/json"
)

// messageBoundary separates back-to-back messages on a byte stream.
var messageBoundary = []byte("}\n{")

// Framer cuts a byte stream into JSON messages.
//
// Messages are expected to be newline terminated. Reads may split or
// merge them arbitrarily, so partial data is buffered until it forms a
// complete object:
//   - "}\n{" separates two messages (the "}" ends the first);
//   - a remaining tail is complete when, trimmed, it ends in "}" and is
//     either valid JSON or was newline terminated;
//   - whitespace-only data is discarded.
//
// A Framer belongs to one client and is not safe for concurrent use.
type Framer struct {
	buf []byte
	max int
}

// NewFramer returns a Framer that rejects unterminated messages longer
// than max bytes. max <= 0 selects DefaultMaxBufferSize.
func NewFramer(max int) *Framer {
	if max <= 0 {
		max = DefaultMaxBufferSize
	}
	return &Framer{max: max}
}

// Feed appends data and returns every message it completes.
//
// ErrBufferOverflow is returned (together with any messages completed
// before the overflow) when the pending tail exceeds the limit; the
// buffer is discarded and the caller should terminate the client.
func (f *Framer) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)

	var frames [][]byte
	for {
		i := bytes.Index(f.buf, messageBoundary)
		if i < 0 {
			break
		}
		if frame := bytes.TrimSpace(f.buf[:i+1]); len(frame) > 0 {
			frames = append(frames, clone(frame))
		}
		f.buf = f.buf[i+2:]
	}

	tail := bytes.TrimSpace(f.buf)
	switch {
	case len(tail) == 0:
		f.buf = f.buf[:0]
	case tail[len(tail)-1] == '}' && (json.Valid(tail) || f.buf[len(f.buf)-1] == '\n'):
		frames = append(frames, clone(tail))
		f.buf = f.buf[:0]
	case len(f.buf) > f.max:
		f.buf = nil
		return frames, ErrBufferOverflow
	}
	return frames, nil
}

// Buffered returns the number of bytes waiting for a message boundary.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards buffered data.
func (f *Framer) Reset() {
	f.buf = nil
}

// EncodeLine returns data terminated by a single newline, the framing
// used on byte-stream transports.
func EncodeLine(data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, data...)
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
