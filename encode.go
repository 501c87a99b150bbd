package annul

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/meigma/annul/internal/frame"
	"github.com/meigma/annul/internal/iox"
	"github.com/meigma/annul/internal/sanitize"
)

// DefaultChunkSize is the read size used when sanitizing entry content.
const DefaultChunkSize = 16 << 10

// EncodeStats summarizes an Encode call.
type EncodeStats struct {
	// Frames is the number of frames written.
	Frames int

	// OriginalBytes is the total content length before sanitizing.
	OriginalBytes uint64

	// SanitizedBytes is the total content length written to frames.
	SanitizedBytes uint64
}

// FrameInfo describes one written frame.
type FrameInfo struct {
	Path        []byte
	Content     ContentTag
	Status      StatusTag
	OriginalLen uint64
	DataLen     uint64
}

type encodeConfig struct {
	chunkSize  int
	scratchDir string
	release    bool
	onFrame    func(FrameInfo)
	logger     *slog.Logger
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeConfig)

// EncodeWithChunkSize sets the read size used when sanitizing content
// (default: 16 KiB). The output does not depend on it.
func EncodeWithChunkSize(n int) EncodeOption {
	return func(c *encodeConfig) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// EncodeWithScratchDir sets where sanitized content is staged. By default
// it is staged next to each entry's backing file.
func EncodeWithScratchDir(dir string) EncodeOption {
	return func(c *encodeConfig) {
		c.scratchDir = dir
	}
}

// EncodeWithRelease releases each entry's backing file once the entry and
// all its descendants have been framed.
func EncodeWithRelease(release bool) EncodeOption {
	return func(c *encodeConfig) {
		c.release = release
	}
}

// EncodeWithFrameFunc registers a function called after each frame is
// written.
func EncodeWithFrameFunc(fn func(FrameInfo)) EncodeOption {
	return func(c *encodeConfig) {
		c.onFrame = fn
	}
}

// EncodeWithLogger sets the logger for per-frame debug output.
func EncodeWithLogger(logger *slog.Logger) EncodeOption {
	return func(c *encodeConfig) {
		c.logger = logger
	}
}

// Encode writes one frame per entry in entries and all their descendants
// to w.
//
// Siblings are visited in ascending byte order of their paths. Each entry's
// frame carries its full path from the top of the tree, ancestors joined by
// NUL, and the entry's children follow its frame before any of its later
// siblings. Content is sanitized before it is written.
//
// Any error aborts the whole stream; w then holds a truncated stream that
// must be discarded. ctx is checked between entries.
func Encode(ctx context.Context, w io.Writer, entries []*Entry, opts ...EncodeOption) (EncodeStats, error) {
	cfg := encodeConfig{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	e := &encoder{
		ctx: ctx,
		w:   w,
		cfg: &cfg,
		buf: make([]byte, cfg.chunkSize),
	}
	err := e.walk(entries, nil)
	return e.stats, err
}

type encoder struct {
	ctx   context.Context
	w     io.Writer
	cfg   *encodeConfig
	buf   []byte
	stats EncodeStats
}

func (e *encoder) walk(entries []*Entry, prefix []byte) error {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b *Entry) int {
		return bytes.Compare(a.Path, b.Path)
	})

	for _, ent := range sorted {
		if err := e.ctx.Err(); err != nil {
			return err
		}
		if bytes.IndexByte(ent.Path, 0) >= 0 {
			return fmt.Errorf("%q: %w", ent.Path, ErrInvalidPath)
		}

		full := make([]byte, 0, len(prefix)+len(ent.Path)+1)
		full = append(full, prefix...)
		full = append(full, ent.Path...)

		if err := e.frame(ent, full); err != nil {
			return fmt.Errorf("frame %s: %w", displayPath(full), err)
		}

		if ent.Status.Kind == StatusSuccess {
			if err := e.walk(ent.Status.Children, append(full, 0)); err != nil {
				return err
			}
		}

		if e.cfg.release {
			if err := ent.Release(); err != nil {
				return fmt.Errorf("release %s: %w", displayPath(full), err)
			}
		}
	}
	return nil
}

// frame writes the frame of one entry.
func (e *encoder) frame(ent *Entry, path []byte) error {
	status, err := frame.StatusTagFor(ent.Status.Kind)
	if err != nil {
		return err
	}

	info := FrameInfo{Path: path, Content: frame.ContentAbsent, Status: status}
	if ent.HasContent() {
		if err := e.writeContent(ent, &info); err != nil {
			return err
		}
	} else if err := frame.WriteHeader(e.w, frame.Meta(info.Content, status, path), 0); err != nil {
		return err
	}

	e.stats.Frames++
	e.stats.OriginalBytes += info.OriginalLen
	e.stats.SanitizedBytes += info.DataLen
	e.cfg.logger.Debug("frame written",
		slog.String("path", displayPath(path)),
		slog.String("content", info.Content.String()),
		slog.String("status", status.String()),
		slog.Uint64("data_len", info.DataLen))
	if e.cfg.onFrame != nil {
		e.cfg.onFrame(info)
	}
	return nil
}

// writeContent sanitizes the entry's content into a staging file to learn
// its length, then writes the frame header followed by the staged content.
func (e *encoder) writeContent(ent *Entry, info *FrameInfo) error {
	src, err := ent.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dir := e.cfg.scratchDir
	if dir == "" {
		dir = filepath.Dir(ent.Backing)
	}
	staged, err := os.CreateTemp(dir, ".sanitized-*")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		_ = staged.Close()           //nolint:errcheck // cleaning up
		_ = os.Remove(staged.Name()) //nolint:errcheck // best-effort cleanup
	}()

	bw := bufio.NewWriterSize(staged, len(e.buf))
	s := sanitize.New(bw)
	// Hide WriterTo so reads happen in chunks of len(e.buf).
	if _, err := io.CopyBuffer(s, struct{ io.Reader }{src}, e.buf); err != nil {
		return fmt.Errorf("sanitize: %w", err)
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("sanitize: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("sanitize: %w", err)
	}

	info.OriginalLen = uint64(s.InputBytes()) //nolint:gosec // counts are non-negative
	info.DataLen = uint64(s.OutputBytes())    //nolint:gosec // counts are non-negative
	info.Content = frame.ContentTagFor(info.OriginalLen, info.DataLen)

	if err := frame.WriteHeader(e.w, frame.Meta(info.Content, info.Status, info.Path), info.DataLen); err != nil {
		return err
	}

	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return err
	}
	cw := &iox.CountingWriter{W: e.w}
	if _, err := io.CopyBuffer(cw, struct{ io.Reader }{staged}, e.buf); err != nil {
		return err
	}
	if cw.N != info.DataLen {
		return fmt.Errorf("%w: expected %d content bytes, wrote %d", ErrShortWrite, info.DataLen, cw.N)
	}
	return nil
}

// displayPath renders a frame path with NUL separators shown as "//".
func displayPath(path []byte) string {
	return string(bytes.ReplaceAll(path, []byte{0}, []byte("//")))
}
