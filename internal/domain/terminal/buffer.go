package terminal

import "strings"

// LineBuffer retains the most recent tail of an output stream, bounded by a
// line count and a byte size. Lines keep their trailing newline so the
// retained text is an exact suffix of everything appended. The last line may
// be partial; the next chunk continues it. Not safe for concurrent use.
type LineBuffer struct {
	lines    []string
	size     int
	maxLines int
	maxBytes int
}

// NewLineBuffer creates a buffer with the given caps
func NewLineBuffer(maxLines, maxBytes int) *LineBuffer {
	return &LineBuffer{maxLines: maxLines, maxBytes: maxBytes}
}

// Append adds a chunk and trims from the front. Reports whether anything was
// discarded.
func (b *LineBuffer) Append(chunk string) bool {
	if chunk == "" {
		return false
	}

	parts := strings.SplitAfter(chunk, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}

	if n := len(b.lines); n > 0 && !strings.HasSuffix(b.lines[n-1], "\n") {
		b.lines[n-1] += parts[0]
		b.size += len(parts[0])
		parts = parts[1:]
	}
	for _, p := range parts {
		b.lines = append(b.lines, p)
		b.size += len(p)
	}

	return b.trim()
}

func (b *LineBuffer) trim() bool {
	drop := 0
	if excess := len(b.lines) - b.maxLines; excess > 0 {
		for _, l := range b.lines[:excess] {
			b.size -= len(l)
		}
		drop = excess
	}
	for drop < len(b.lines) && b.size > b.maxBytes {
		b.size -= len(b.lines[drop])
		drop++
	}
	if drop == 0 {
		return false
	}

	// Copy so the dropped prefix can be collected
	b.lines = append([]string(nil), b.lines[drop:]...)
	return true
}

// String joins the retained lines
func (b *LineBuffer) String() string {
	return strings.Join(b.lines, "")
}

// Len returns the number of retained lines
func (b *LineBuffer) Len() int {
	return len(b.lines)
}

// Size returns the retained byte count
func (b *LineBuffer) Size() int {
	return b.size
}

// Reset empties the buffer
func (b *LineBuffer) Reset() {
	b.lines = nil
	b.size = 0
}
