package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
)

func writeContainer(t *testing.T, data []byte) Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hello_2.10.orig.tar.gz.annul")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return Artifact{
		Path:       path,
		Name:       "hello_2.10.orig.tar.gz",
		Dictionary: "orig",
		Digest:     digest.FromBytes(data),
		Size:       int64(len(data)),
	}
}

func TestPush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.New()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p, err := NewPusher("example.com/sources", WithTarget(store), withClock(func() time.Time { return created }))
	require.NoError(t, err)

	data := []byte("container bytes")
	a := writeContainer(t, data)
	desc, err := p.Push(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, ocispec.MediaTypeImageManifest, desc.MediaType)

	resolved, err := store.Resolve(ctx, "hello_2.10.orig.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, desc.Digest, resolved.Digest)

	raw, err := content.FetchAll(ctx, store, desc)
	require.NoError(t, err)
	var manifest ocispec.Manifest
	require.NoError(t, json.Unmarshal(raw, &manifest))

	assert.Equal(t, ArtifactType, manifest.ArtifactType)
	assert.Equal(t, ocispec.MediaTypeEmptyJSON, manifest.Config.MediaType)
	assert.Equal(t, "2026-01-02T03:04:05Z", manifest.Annotations[ocispec.AnnotationCreated])
	assert.Equal(t, "orig", manifest.Annotations[AnnotationDictionary])
	assert.Equal(t, a.Name, manifest.Annotations[AnnotationSource])
	require.Len(t, manifest.Layers, 1)

	layer := manifest.Layers[0]
	assert.Equal(t, MediaTypeFrames, layer.MediaType)
	assert.Equal(t, a.Digest, layer.Digest)
	assert.Equal(t, "hello_2.10.orig.tar.gz.annul", layer.Annotations[ocispec.AnnotationTitle])

	got, err := content.FetchAll(ctx, store, layer)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPush_LayerAlreadyPresent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memory.New()
	p, err := NewPusher("example.com/sources", WithTarget(store))
	require.NoError(t, err)

	a := writeContainer(t, []byte("same bytes"))
	_, err = p.Push(ctx, a)
	require.NoError(t, err)

	require.NoError(t, os.Remove(a.Path))
	_, err = p.Push(ctx, a)
	require.NoError(t, err)
}

func TestPush_DigestMismatch(t *testing.T) {
	t.Parallel()

	p, err := NewPusher("example.com/sources", WithTarget(memory.New()))
	require.NoError(t, err)

	a := writeContainer(t, []byte("actual"))
	a.Digest = digest.FromString("expected")
	_, err = p.Push(context.Background(), a)
	require.Error(t, err)
}

func TestPush_InvalidArtifact(t *testing.T) {
	t.Parallel()

	p, err := NewPusher("example.com/sources", WithTarget(memory.New()))
	require.NoError(t, err)

	_, err = p.Push(context.Background(), Artifact{Path: "x", Name: "y", Digest: "nope"})
	require.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = p.Push(context.Background(), Artifact{Digest: digest.FromString("x")})
	require.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestNewPusher_InvalidReference(t *testing.T) {
	t.Parallel()

	_, err := NewPusher("Not A Reference")
	require.ErrorIs(t, err, ErrInvalidReference)

	p, err := NewPusher("localhost:5000/sources", WithPlainHTTP(true), WithUserAgent("test"))
	require.NoError(t, err)
	assert.NotNil(t, p.target)
}

func TestTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{name: "hello_2.10.orig.tar.gz", want: "hello_2.10.orig.tar.gz"},
		{name: "foo_1.0+dfsg-1.debian.tar.xz", want: "foo_1.0_dfsg-1.debian.tar.xz"},
		{name: ".hidden", want: "_hidden"},
		{name: "-dash", want: "_dash"},
		{name: "", want: "_"},
		{name: "a b~c", want: "a_b_c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tag(tt.name), tt.name)
	}

	long := Tag(string(make([]byte, 300)))
	assert.Len(t, long, maxTagLen)
}
