package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mdsweep/internal/fsutil"
)

func TestFindFilesByExtension_SingleFilePassesThrough(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.hcl")
	require.NoError(t, os.WriteFile(path, []byte("sweep {}"), 0o644))

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestFindFilesByExtension_WrongExtensionYieldsNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFindFilesByExtension_DirectoryWalksRecursivelySorted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	for _, name := range []string{"b.hcl", "a.hcl", "skip.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.hcl"), []byte("x"), 0o644))

	files, err := fsutil.FindFilesByExtension(dir, ".hcl")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.hcl"),
		filepath.Join(dir, "b.hcl"),
		filepath.Join(sub, "c.hcl"),
	}, files)
}

func TestFindFilesByExtension_MissingPathErrors(t *testing.T) {
	t.Parallel()

	_, err := fsutil.FindFilesByExtension(filepath.Join(t.TempDir(), "nope"), ".hcl")
	assert.Error(t, err)
}
