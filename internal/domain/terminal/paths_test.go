package terminal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProjectPath(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "work", "app")
	require.NoError(t, os.MkdirAll(project, 0o755))
	file := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := ValidateProjectPath(project+"/", nil)
	require.NoError(t, err)
	assert.Equal(t, project, got)

	_, err = ValidateProjectPath("work/app", nil)
	assert.ErrorIs(t, err, ErrInvalidProjectPath)

	_, err = ValidateProjectPath(file, nil)
	assert.ErrorIs(t, err, ErrInvalidProjectPath)

	_, err = ValidateProjectPath(filepath.Join(root, "missing"), nil)
	assert.ErrorIs(t, err, ErrInvalidProjectPath)
}

func TestValidateProjectPathAllowedRoots(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "work", "app")
	outside := filepath.Join(root, "other")
	require.NoError(t, os.MkdirAll(inside, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))

	allowed := []string{filepath.Join(root, "work", "**")}

	_, err := ValidateProjectPath(inside, allowed)
	assert.NoError(t, err)

	_, err = ValidateProjectPath(outside, allowed)
	assert.ErrorIs(t, err, ErrInvalidProjectPath)
}
