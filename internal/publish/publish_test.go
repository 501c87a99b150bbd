package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "out", "hello.tar.gz.annul")
	s, err := Create(dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(dest), filepath.Dir(s.Name()))
	assert.Equal(t, dest, s.Dest())

	_, err = s.Write([]byte("container"))
	require.NoError(t, err)
	require.NoError(t, s.Publish())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "container", string(got))

	_, err = os.Stat(s.Name())
	assert.True(t, os.IsNotExist(err), "scratch file should be gone")

	// Second Publish and Discard are no-ops.
	require.NoError(t, s.Publish())
	require.NoError(t, s.Discard())
}

func TestPublish_NoClobber(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "x.annul")
	s, err := Create(dest)
	require.NoError(t, err)
	_, err = s.Write([]byte("new"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o600))

	err = s.Publish()
	require.ErrorIs(t, err, ErrExists)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "scratch file should be removed")
}

func TestLinkNoReplace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp")
	dest := filepath.Join(dir, "dest")
	require.NoError(t, os.WriteFile(tmp, []byte("a"), 0o600))
	require.NoError(t, linkNoReplace(tmp, dest))
	_, err := os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(tmp, []byte("b"), 0o600))
	require.ErrorIs(t, linkNoReplace(tmp, dest), os.ErrExist)
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "x.annul")
	s, err := Create(dest)
	require.NoError(t, err)
	require.NoError(t, s.Discard())

	_, err = os.Stat(s.Name())
	assert.True(t, os.IsNotExist(err))
	ok, err := Exists(dest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ok, err := Exists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	ok, err = Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)
}
