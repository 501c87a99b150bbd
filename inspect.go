package annul

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/annul/internal/dict"
	"github.com/meigma/annul/internal/frame"
)

type readConfig struct {
	dictDir string
}

// ReadOption configures container reading.
type ReadOption func(*readConfig)

// ReadWithDictionaryDir loads dictionaries from dir in addition to the
// embedded ones, for containers written with WithDictionaryDir.
func ReadWithDictionaryDir(dir string) ReadOption {
	return func(c *readConfig) {
		c.dictDir = dir
	}
}

// ContainerReader reads the frames of a container sequentially.
//
// Call Next to advance to the next frame, then Read to consume its content.
type ContainerReader struct {
	dec    *zstd.Decoder
	fr     *frame.Reader
	closer io.Closer
}

// NewContainerReader returns a reader over the compressed container r.
func NewContainerReader(r io.Reader, opts ...ReadOption) (*ContainerReader, error) {
	var cfg readConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	dicts, err := dict.Load(cfg.dictDir)
	if err != nil {
		return nil, err
	}

	dopts := append([]zstd.DOption{zstd.WithDecoderConcurrency(1)}, dicts.DecoderOptions()...)
	dec, err := zstd.NewReader(r, dopts...)
	if err != nil {
		return nil, err
	}
	return &ContainerReader{dec: dec, fr: frame.NewReader(dec)}, nil
}

// OpenContainer opens the container file at path.
func OpenContainer(path string, opts ...ReadOption) (*ContainerReader, error) {
	f, err := os.Open(path) //nolint:gosec // caller-supplied container path
	if err != nil {
		return nil, err
	}
	c, err := NewContainerReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// Next advances to the next frame. It returns io.EOF after the last frame.
func (c *ContainerReader) Next() (*FrameHeader, error) {
	return c.fr.Next()
}

// Read reads the current frame's content.
func (c *ContainerReader) Read(p []byte) (int, error) {
	return c.fr.Read(p)
}

// Frames returns the number of frames read so far.
func (c *ContainerReader) Frames() int {
	return c.fr.Frames()
}

// Close releases the decoder and any file opened by OpenContainer.
func (c *ContainerReader) Close() error {
	c.dec.Close()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// InspectResult summarizes a container.
type InspectResult struct {
	Frames       int
	ContentBytes uint64
	ByStatus     map[StatusKind]int
	ByContent    map[ContentTag]int
}

// Inspect reads every frame of the container at path, calling fn with each
// header when fn is non-nil, and validates the frame structure. ctx is
// checked between frames.
func Inspect(ctx context.Context, path string, fn func(*FrameHeader) error, opts ...ReadOption) (*InspectResult, error) {
	c, err := OpenContainer(path, opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	res := &InspectResult{
		ByStatus:  make(map[StatusKind]int),
		ByContent: make(map[ContentTag]int),
	}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		h, err := c.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.Frames++
		res.ContentBytes += h.DataLen
		res.ByStatus[h.Status.Kind()]++
		res.ByContent[h.Content]++
		if fn != nil {
			if err := fn(h); err != nil {
				return res, err
			}
		}
	}
}
