package annul

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/annul/internal/testutil"
)

func archiveFixture(t *testing.T, f fixture, opts ...Option) *FileResult {
	t.Helper()
	path := testutil.WriteFile(t, t.TempDir(), f.name, f.data)
	a, err := New(opts...)
	require.NoError(t, err)
	res, err := a.ArchiveFile(context.Background(), path, t.TempDir())
	require.NoError(t, err)
	return res
}

func TestInspect(t *testing.T) {
	t.Parallel()

	res := archiveFixture(t, debianFixture(t))

	var paths []string
	got, err := Inspect(context.Background(), res.Path, func(h *FrameHeader) error {
		paths = append(paths, h.DisplayPath())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"hello_1.0-1.debian.tar",
		"hello_1.0-1.debian.tar//debian/",
		"hello_1.0-1.debian.tar//debian/control",
		"hello_1.0-1.debian.tar//debian/rules",
	}, paths)
	assert.Equal(t, res.Frames, got.Frames)
	assert.Equal(t, 1, got.ByStatus[StatusSuccess])
	assert.Equal(t, 1, got.ByStatus[StatusUnnecessary])
	assert.Equal(t, 2, got.ByStatus[StatusUnrecognised])
	assert.Equal(t, 1, got.ByContent[ContentAbsent])
}

func TestInspect_CallbackError(t *testing.T) {
	t.Parallel()

	res := archiveFixture(t, origFixture(t))
	stop := errors.New("stop")

	got, err := Inspect(context.Background(), res.Path, func(*FrameHeader) error { return stop })
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, got.Frames)
}

func TestContainerReader_Content(t *testing.T) {
	t.Parallel()

	res := archiveFixture(t, origFixture(t))
	c, err := OpenContainer(res.Path)
	require.NoError(t, err)
	defer c.Close()

	contents := make(map[string]string)
	for {
		h, err := c.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(c)
		require.NoError(t, err)
		contents[h.DisplayPath()] = string(data)
	}

	assert.Equal(t, 3, c.Frames())
	assert.Equal(t, "hello world\n", contents["hello_1.0.orig.tar//hello-1.0/README"])
	assert.Equal(t, "int main(void) { return 0; }\n", contents["hello_1.0.orig.tar//hello-1.0/hello.c"])
}

func TestInspect_CustomDictionary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	custom := bytes.Repeat([]byte("int main(void) { return 0; }\nhello world\n"), 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orig.zstd-dictionary"), custom, 0o600))

	res := archiveFixture(t, origFixture(t), WithDictionaryDir(dir))

	got, err := Inspect(context.Background(), res.Path, nil, ReadWithDictionaryDir(dir))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Frames)
}

func TestInspect_Corrupt(t *testing.T) {
	t.Parallel()

	// A frame whose meta length is below the minimum.
	var raw []byte
	raw = binary.LittleEndian.AppendUint64(raw, 9)
	raw = binary.LittleEndian.AppendUint64(raw, 1)
	raw = append(raw, 0)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	require.NoError(t, err)
	compressed := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())

	path := testutil.WriteFile(t, t.TempDir(), "bad.annul", compressed)
	_, err = Inspect(context.Background(), path, nil)
	require.ErrorIs(t, err, ErrCorruptFrame)
}

func TestInspect_Truncated(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	_, err := Encode(context.Background(), &stream, sampleTree(t))
	require.NoError(t, err)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	require.NoError(t, err)
	compressed := enc.EncodeAll(stream.Bytes()[:stream.Len()-2], nil)
	require.NoError(t, enc.Close())

	path := testutil.WriteFile(t, t.TempDir(), "short.annul", compressed)
	_, err = Inspect(context.Background(), path, nil)
	require.ErrorIs(t, err, ErrCorruptFrame)
}

func TestInspect_Canceled(t *testing.T) {
	t.Parallel()

	res := archiveFixture(t, origFixture(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Inspect(ctx, res.Path, nil)
	require.ErrorIs(t, err, context.Canceled)
}
