package terminal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineBufferAppend(t *testing.T) {
	b := NewLineBuffer(100, 1024)

	assert.False(t, b.Append("hel"))
	assert.False(t, b.Append("lo\nwor"))
	assert.False(t, b.Append("ld\n"))

	assert.Equal(t, "hello\nworld\n", b.String())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, len("hello\nworld\n"), b.Size())

	assert.False(t, b.Append(""))
}

func TestLineBufferLineCap(t *testing.T) {
	b := NewLineBuffer(3, 1024)

	for _, l := range []string{"1\n", "2\n", "3\n"} {
		assert.False(t, b.Append(l))
	}
	assert.True(t, b.Append("4\n5\n"))

	assert.Equal(t, "3\n4\n5\n", b.String())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 6, b.Size())
}

func TestLineBufferByteCap(t *testing.T) {
	b := NewLineBuffer(1000, 10)

	b.Append("aaaa\n")
	b.Append("bbbb\n")
	assert.True(t, b.Append("cc\n"))

	assert.Equal(t, "bbbb\ncc\n", b.String())
	assert.LessOrEqual(t, b.Size(), 10)
}

func TestLineBufferSuffixInvariant(t *testing.T) {
	b := NewLineBuffer(50, 400)
	var all strings.Builder

	chunks := []string{"prompt$ ", "ls\r\n", "a b c\n", "partial", " line\n"}
	for i := 0; i < 200; i++ {
		c := chunks[i%len(chunks)]
		all.WriteString(c)
		b.Append(c)

		assert.True(t, strings.HasSuffix(all.String(), b.String()))
		assert.LessOrEqual(t, b.Len(), 50)
		assert.LessOrEqual(t, b.Size(), 400)
	}
}

func TestLineBufferReset(t *testing.T) {
	b := NewLineBuffer(10, 100)
	b.Append("x\ny\n")
	b.Reset()

	assert.Equal(t, "", b.String())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Size())
}
