package annul

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"go.uber.org/multierr"

	"github.com/meigma/annul/internal/dict"
	"github.com/meigma/annul/internal/dsc"
	"github.com/meigma/annul/internal/fetch"
	"github.com/meigma/annul/internal/iox"
	"github.com/meigma/annul/internal/metrics"
	"github.com/meigma/annul/internal/publish"
	"github.com/meigma/annul/internal/unpack"
	"github.com/meigma/annul/registry"
)

// DefaultCompressionLevel is the default zstd level of containers.
const DefaultCompressionLevel = 8

// FileResult is the outcome of archiving one source file.
type FileResult struct {
	// Name is the source file name.
	Name string

	// Path is the container path, whether or not it was written by this run.
	Path string

	// Digest is the digest of the published container. Empty when skipped
	// or failed.
	Digest digest.Digest

	// Size is the published container size in bytes.
	Size int64

	// Frames is the number of frames in the published container.
	Frames int

	// Skipped reports that the container already existed.
	Skipped bool

	// Dictionary names the dictionary the container was compressed with.
	Dictionary string

	// Err is the failure, as a *FileError, or nil.
	Err error
}

// Archiver fetches source files, unpacks them recursively and writes one
// container per file.
type Archiver struct {
	logger    *slog.Logger
	fetcher   Fetcher
	level     int
	dictDir   string
	dicts     *dict.Set
	maxDepth  int
	maxBytes  int64
	chunkSize int
	progress  ProgressFunc
	recorder  Recorder
	pusher    Pusher
	unpacker  *unpack.Unpacker
}

// New creates an Archiver.
func New(opts ...Option) (*Archiver, error) {
	a := &Archiver{
		level:     DefaultCompressionLevel,
		maxDepth:  unpack.DefaultMaxDepth,
		maxBytes:  unpack.DefaultMaxBytes,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.level < 1 || a.level > 22 {
		return nil, fmt.Errorf("compression level %d: want 1 to 22", a.level)
	}
	if a.maxDepth < 1 {
		return nil, fmt.Errorf("max depth %d: want at least 1", a.maxDepth)
	}
	dicts, err := dict.Load(a.dictDir)
	if err != nil {
		return nil, err
	}
	a.dicts = dicts

	if a.fetcher == nil {
		a.fetcher = fetch.New(fetch.WithLogger(a.log()))
	}
	if a.recorder == nil {
		a.recorder = (*metrics.Collector)(nil)
	}
	a.unpacker = unpack.New(
		unpack.WithMaxDepth(a.maxDepth),
		unpack.WithMaxBytes(a.maxBytes),
		unpack.WithLogger(a.log()),
	)
	return a, nil
}

// log returns the configured logger or a discard logger if none was set.
func (a *Archiver) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.DiscardHandler)
}

func (a *Archiver) emit(ev ProgressEvent) {
	if a.progress != nil {
		a.progress(ev)
	}
}

// source is one file to archive.
type source struct {
	name   string
	url    string
	local  string
	digest digest.Digest

	// size is the listed length, checked when sized is set.
	size  int64
	sized bool
}

// Archive archives the source at rawURL into destDir.
//
// A URL whose file name ends in ".dsc" names a Debian source package: the
// manifest is fetched and every file it lists is archived in turn, each
// resolved relative to the manifest URL and verified against its listed
// SHA-256 digest. A failed file does not stop the others; the returned
// error combines every failure and the results report each file.
//
// Any other URL is archived as a single file.
func (a *Archiver) Archive(ctx context.Context, rawURL, destDir string) ([]*FileResult, error) {
	name, err := fetch.Name(rawURL)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(name, ".dsc") {
		return a.archivePackage(ctx, rawURL, destDir)
	}
	res := a.archive(ctx, source{name: name, url: rawURL}, destDir)
	return []*FileResult{res}, res.Err
}

// ArchiveURL archives the single file at rawURL into destDir.
func (a *Archiver) ArchiveURL(ctx context.Context, rawURL, destDir string) (*FileResult, error) {
	name, err := fetch.Name(rawURL)
	if err != nil {
		return nil, err
	}
	res := a.archive(ctx, source{name: name, url: rawURL}, destDir)
	return res, res.Err
}

// ArchiveFile archives the local file src into destDir.
func (a *Archiver) ArchiveFile(ctx context.Context, src, destDir string) (*FileResult, error) {
	res := a.archive(ctx, source{name: filepath.Base(src), local: src}, destDir)
	return res, res.Err
}

func (a *Archiver) archivePackage(ctx context.Context, rawURL, destDir string) ([]*FileResult, error) {
	log := a.log().With(slog.String("manifest", rawURL))

	var buf bytes.Buffer
	if _, err := a.fetcher.Fetch(ctx, rawURL, &buf); err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	m, err := dsc.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", rawURL, err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNoFiles)
	}
	log.Info("archiving package",
		slog.String("source", m.Source),
		slog.String("version", m.Version),
		slog.Int("files", len(m.Files)))

	var (
		results []*FileResult
		errs    error
	)
	for _, f := range m.Files {
		u, err := fetch.Resolve(rawURL, f.Name)
		if err != nil {
			fe := &FileError{File: f.Name, Err: err}
			log.Error("archiving failed", slog.String("file", f.Name), slog.String("error", err.Error()))
			a.recorder.ObserveFile(metrics.ResultFailed, 0)
			results = append(results, &FileResult{Name: f.Name, Err: fe})
			errs = multierr.Append(errs, fe)
			continue
		}
		src := source{name: f.Name, url: u, digest: f.Digest, size: f.Size, sized: true}
		res := a.archive(ctx, src, destDir)
		results = append(results, res)
		if res.Err != nil {
			log.Error("archiving failed", slog.String("file", f.Name), slog.String("error", res.Err.Error()))
			errs = multierr.Append(errs, res.Err)
		}
	}
	return results, errs
}

// archive processes one source file on an isolated worker and records the
// outcome.
func (a *Archiver) archive(ctx context.Context, src source, destDir string) *FileResult {
	start := time.Now()
	res := &FileResult{
		Name: src.name,
		Path: filepath.Join(destDir, src.name+ContainerSuffix),
	}
	log := a.log().With(slog.String("file", src.name))

	err := isolate(src.name, func() error {
		return a.process(ctx, src, res, log)
	})

	result := metrics.ResultPublished
	switch {
	case err != nil:
		result = metrics.ResultFailed
		res.Err = &FileError{File: src.name, Err: err}
	case res.Skipped:
		result = metrics.ResultSkipped
	}
	a.recorder.ObserveFile(result, time.Since(start))
	return res
}

func (a *Archiver) process(ctx context.Context, src source, res *FileResult, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exists, err := publish.Exists(res.Path)
	if err != nil {
		return err
	}
	if exists {
		res.Skipped = true
		log.Info("skipped", slog.String("path", res.Path))
		return nil
	}

	dir := filepath.Dir(res.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	local := src.local
	if local == "" {
		tmp, err := os.CreateTemp(dir, ".fetch-*")
		if err != nil {
			return fmt.Errorf("create download file: %w", err)
		}
		defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		if err := a.fetchSource(ctx, src, tmp); err != nil {
			return err
		}
		local = tmp.Name()
	}

	log.Info("archiving")
	return a.build(ctx, src.name, local, res, log)
}

// fetchSource downloads src into tmp and closes it, verifying the digest
// when one is known.
func (a *Archiver) fetchSource(ctx context.Context, src source, tmp *os.File) error {
	a.emit(ProgressEvent{Stage: StageFetching, File: src.name})

	var w io.Writer = tmp
	var digester digest.Digester
	if src.digest != "" {
		if err := src.digest.Validate(); err != nil {
			_ = tmp.Close() //nolint:errcheck // cleaning up
			return err
		}
		digester = src.digest.Algorithm().Digester()
		w = io.MultiWriter(tmp, digester.Hash())
	}

	n, err := a.fetcher.Fetch(ctx, src.url, w)
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if closeErr != nil {
		return closeErr
	}
	if src.sized && n != src.size {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrSizeMismatch, src.size, n)
	}
	if digester != nil && digester.Digest() != src.digest {
		return fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, src.digest, digester.Digest())
	}

	a.emit(ProgressEvent{Stage: StageFetching, File: src.name, BytesDone: uint64(n)}) //nolint:gosec // n is non-negative
	return nil
}

// build unpacks local, encodes its entries into a compressed container and
// publishes it at res.Path.
func (a *Archiver) build(ctx context.Context, name, local string, res *FileResult, log *slog.Logger) error {
	a.emit(ProgressEvent{Stage: StageUnpacking, File: name})
	tr, err := a.unpacker.UnpackAs(ctx, local, name, filepath.Dir(res.Path))
	if err != nil {
		return fmt.Errorf("unpacking failed: %w", err)
	}
	defer tr.Close()

	if st := tr.Root.Status; st.Kind != StatusSuccess {
		if st.Err != nil {
			return fmt.Errorf("%w, not %s: %w", ErrNotArchive, st.Kind, st.Err)
		}
		return fmt.Errorf("%w, not %s", ErrNotArchive, st.Kind)
	}

	d := a.dicts.ForName(name)
	res.Dictionary = d.Kind.String()
	log.Debug("dictionary selected", slog.String("dictionary", res.Dictionary), slog.Bool("raw", d.Raw))

	scratch, err := publish.Create(res.Path)
	if err != nil {
		return err
	}
	defer scratch.Discard() //nolint:errcheck // no-op after Publish

	digester := digest.SHA256.Digester()
	cw := &iox.CountingWriter{W: io.MultiWriter(scratch, digester.Hash())}
	enc, err := zstd.NewWriter(cw,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(a.level)),
		zstd.WithEncoderConcurrency(1),
		d.EncoderOption(),
	)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}

	var (
		frames int
		framed uint64
	)
	stats, err := Encode(ctx, enc, tr.Root.Status.Children,
		EncodeWithChunkSize(a.chunkSize),
		EncodeWithRelease(true),
		EncodeWithLogger(log),
		EncodeWithFrameFunc(func(fi FrameInfo) {
			frames++
			framed += fi.DataLen
			a.recorder.AddFrame(fi.OriginalLen, fi.DataLen)
			a.emit(ProgressEvent{
				Stage:      StageEncoding,
				File:       name,
				Path:       displayPath(fi.Path),
				FramesDone: frames,
				BytesDone:  framed,
			})
		}),
	)
	if err != nil {
		_ = enc.Close() //nolint:errcheck // output is discarded
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish compressor: %w", err)
	}

	a.emit(ProgressEvent{Stage: StagePublishing, File: name, FramesDone: stats.Frames, BytesDone: framed})
	if err := scratch.Publish(); err != nil {
		if errors.Is(err, publish.ErrExists) {
			return fmt.Errorf("%s: %w", res.Path, ErrDestinationExists)
		}
		return err
	}

	res.Digest = digester.Digest()
	res.Size = int64(cw.N) //nolint:gosec // container sizes fit in int64
	res.Frames = stats.Frames
	a.recorder.AddPublished(res.Size)
	log.Info("published",
		slog.String("path", res.Path),
		slog.String("digest", res.Digest.String()),
		slog.String("size", humanize.IBytes(cw.N)),
		slog.Int("frames", stats.Frames),
		slog.String("sanitized", humanize.IBytes(stats.SanitizedBytes)))

	if a.pusher == nil {
		return nil
	}
	a.emit(ProgressEvent{Stage: StagePushing, File: name, FramesDone: stats.Frames})
	desc, err := a.pusher.Push(ctx, registry.Artifact{
		Path:       res.Path,
		Name:       name,
		Dictionary: res.Dictionary,
		Digest:     res.Digest,
		Size:       res.Size,
	})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	log.Info("pushed", slog.String("digest", desc.Digest.String()))
	return nil
}
