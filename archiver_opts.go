package annul

import (
	"context"
	"io"
	"log/slog"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/meigma/annul/registry"
)

// Fetcher retrieves a source file by URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Pusher uploads a published container.
type Pusher interface {
	Push(ctx context.Context, a registry.Artifact) (ocispec.Descriptor, error)
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveFile(result string, d time.Duration)
	AddFrame(originalBytes, sanitizedBytes uint64)
	AddPublished(n int64)
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger for archiving operations.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

// WithFetcher sets how source files are retrieved. The default fetches
// over HTTP(S) with retries and reads file URLs and plain paths from disk.
func WithFetcher(f Fetcher) Option {
	return func(a *Archiver) {
		a.fetcher = f
	}
}

// WithCompressionLevel sets the zstd compression level (default: 8).
func WithCompressionLevel(level int) Option {
	return func(a *Archiver) {
		a.level = level
	}
}

// WithDictionaryDir loads dictionaries from dir, replacing the embedded
// dictionaries they correspond to.
func WithDictionaryDir(dir string) Option {
	return func(a *Archiver) {
		a.dictDir = dir
	}
}

// WithMaxDepth sets how many levels of nested archives are expanded.
func WithMaxDepth(n int) Option {
	return func(a *Archiver) {
		a.maxDepth = n
	}
}

// WithMaxBytes sets the per-file budget of bytes extracted to scratch
// storage.
func WithMaxBytes(n int64) Option {
	return func(a *Archiver) {
		a.maxBytes = n
	}
}

// WithChunkSize sets the read size used when sanitizing content.
func WithChunkSize(n int) Option {
	return func(a *Archiver) {
		a.chunkSize = n
	}
}

// WithProgress sets a callback for progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Archiver) {
		a.progress = fn
	}
}

// WithRecorder sets where run metrics are recorded.
func WithRecorder(r Recorder) Option {
	return func(a *Archiver) {
		a.recorder = r
	}
}

// WithPusher pushes every newly published container.
func WithPusher(p Pusher) Option {
	return func(a *Archiver) {
		a.pusher = p
	}
}
