package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const (
	defaultUserAgent = "annul"
	maxTagLen        = 128
)

// Artifact describes a published container to upload.
type Artifact struct {
	// Path is the container file on disk.
	Path string

	// Name is the source file name. It becomes the tag.
	Name string

	// Dictionary is the dictionary kind the container was compressed with.
	Dictionary string

	// Digest and Size describe the container file.
	Digest digest.Digest
	Size   int64
}

// Pusher uploads containers to one repository.
type Pusher struct {
	repository string
	plainHTTP  bool
	userAgent  string
	credStore  credentials.Store
	target     oras.Target
	logger     *slog.Logger
	now        func() time.Time
}

// NewPusher creates a Pusher for repository, for example
// "registry.example.com/archive/sources".
func NewPusher(repository string, opts ...Option) (*Pusher, error) {
	p := &Pusher{
		repository: repository,
		userAgent:  defaultUserAgent,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.target != nil {
		return p, nil
	}

	repo, err := remote.NewRepository(repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	repo.PlainHTTP = p.plainHTTP
	repo.Client = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if p.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return p.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{p.userAgent},
		},
	}
	p.target = repo
	return p, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Pusher) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Push uploads the container described by a and tags its manifest with
// Tag(a.Name). Layers already present in the repository are not uploaded
// again. The returned descriptor is the manifest's.
func (p *Pusher) Push(ctx context.Context, a Artifact) (ocispec.Descriptor, error) {
	if a.Path == "" || a.Name == "" {
		return ocispec.Descriptor{}, fmt.Errorf("%w: path and name are required", ErrInvalidArtifact)
	}
	if err := a.Digest.Validate(); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	layer := ocispec.Descriptor{
		MediaType: MediaTypeFrames,
		Digest:    a.Digest,
		Size:      a.Size,
		Annotations: map[string]string{
			ocispec.AnnotationTitle: a.Name + ".annul",
		},
	}
	if err := p.pushLayer(ctx, a.Path, layer); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push layer: %w", mapError(err))
	}

	annotations := map[string]string{
		ocispec.AnnotationCreated: p.now().UTC().Format(time.RFC3339),
		AnnotationSource:          a.Name,
	}
	if a.Dictionary != "" {
		annotations[AnnotationDictionary] = a.Dictionary
	}
	manifest, err := oras.PackManifest(ctx, p.target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers:              []ocispec.Descriptor{layer},
		ManifestAnnotations: annotations,
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push manifest: %w", mapError(err))
	}

	tag := Tag(a.Name)
	if err := p.target.Tag(ctx, manifest, tag); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("tag %s: %w", tag, mapError(err))
	}

	p.log().Info("container pushed",
		slog.String("repository", p.repository),
		slog.String("tag", tag),
		slog.String("manifest", manifest.Digest.String()))
	return manifest, nil
}

func (p *Pusher) pushLayer(ctx context.Context, path string, desc ocispec.Descriptor) error {
	exists, err := p.target.Exists(ctx, desc)
	if err != nil {
		return err
	}
	if exists {
		p.log().Debug("layer exists", slog.String("digest", desc.Digest.String()))
		return nil
	}

	f, err := os.Open(path) //nolint:gosec // path is a container we published
	if err != nil {
		return err
	}
	defer f.Close()

	err = p.target.Push(ctx, desc, f)
	if errors.Is(err, errdef.ErrAlreadyExists) {
		return nil
	}
	return err
}

// Tag converts a source file name to a valid OCI tag. Characters outside
// [A-Za-z0-9._-] become '_', a leading '.' or '-' is replaced, and the
// result is cut to 128 characters.
func Tag(name string) string {
	var b strings.Builder
	for i, r := range name {
		if b.Len() >= maxTagLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case (r == '.' || r == '-') && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
