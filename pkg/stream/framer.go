package stream

import "strings"

const dataPrefix = "data:"

// DoneSentinel is the payload that terminates an OpenAI-style stream.
const DoneSentinel = "[DONE]"

// Framer splits a byte stream into "data:" frames. Lines may be terminated
// by CR, LF, or CRLF; the trailing incomplete line is carried over to the
// next Push. A Framer is not safe for concurrent use.
type Framer struct {
	buf []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Push appends chunk to the carry-over buffer and returns the complete
// frames it produced, in order. Frames are trimmed and start with "data:".
func (f *Framer) Push(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var frames []string
	start := 0
	for i, b := range f.buf {
		if b != '\n' && b != '\r' {
			continue
		}
		if frame, ok := frameOf(f.buf[start:i]); ok {
			frames = append(frames, frame)
		}
		start = i + 1
	}

	// Keep the incomplete tail. Copy so the backing array does not grow
	// without bound on long streams.
	rest := f.buf[start:]
	f.buf = append(f.buf[:0:0], rest...)
	return frames
}

// Flush returns the buffered remainder as a final frame candidate and
// resets the Framer. It is called once the upstream body hits EOF.
func (f *Framer) Flush() []string {
	rest := f.buf
	f.buf = nil
	if frame, ok := frameOf(rest); ok {
		return []string{frame}
	}
	return nil
}

// Buffered returns the number of carried-over bytes.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func frameOf(line []byte) (string, bool) {
	s := strings.TrimSpace(string(line))
	if !strings.HasPrefix(s, dataPrefix) {
		return "", false
	}
	return s, true
}

// Payload strips the "data:" prefix from a frame and trims whitespace.
func Payload(frame string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(frame), dataPrefix))
}

// Frames is a convenience that frames a complete body in one call.
func Frames(body []byte) []string {
	f := NewFramer()
	return append(f.Push(body), f.Flush()...)
}
