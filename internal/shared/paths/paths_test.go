package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/.termctl/sessions.db", filepath.Join(home, ".termctl", "sessions.db")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		got, err := Expand(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := Abs("~/proj/../proj")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "proj"), got)

	got, err = Abs("sub")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestDisplay(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, "~", Display(home))
	assert.Equal(t, "~/proj", Display(filepath.Join(home, "proj")))
	assert.Equal(t, "/elsewhere", Display("/elsewhere"))
	assert.Equal(t, home+"x", Display(home+"x"))
}
