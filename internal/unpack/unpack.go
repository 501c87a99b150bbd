// Package unpack recursively expands archives and compressed streams into
// scratch storage, producing an entry tree.
//
// Supported formats are gzip, bzip2, xz, zstd, tar and zip. ar, 7z, rar and
// lzip are recognised but reported as unsupported.
package unpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/annul/internal/iox"
	"github.com/meigma/annul/internal/tree"
)

const (
	// DefaultMaxDepth is the default nesting limit.
	DefaultMaxDepth = 16

	// DefaultMaxBytes is the default budget of bytes written to scratch
	// storage per unpacked file.
	DefaultMaxBytes int64 = 8 << 30

	copyBufferSize = 32 << 10
)

// Errors.
var (
	// ErrBudgetExceeded is recorded on an entry whose expansion would exceed
	// the remaining scratch byte budget.
	ErrBudgetExceeded = errors.New("unpack byte budget exceeded")

	// ErrNotRegular is returned by Unpack for a source that is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
)

// Unpacker expands files into entry trees. It is safe for concurrent use;
// every call to Unpack keeps its own state.
type Unpacker struct {
	maxDepth int
	maxBytes int64
	logger   *slog.Logger
}

// Option configures an Unpacker.
type Option func(*Unpacker)

// WithMaxDepth sets how many levels of nesting are expanded before entries
// are reported as too nested. The top-level file counts as the first level.
func WithMaxDepth(n int) Option {
	return func(u *Unpacker) {
		u.maxDepth = n
	}
}

// WithMaxBytes sets the scratch byte budget for one Unpack call.
func WithMaxBytes(n int64) Option {
	return func(u *Unpacker) {
		u.maxBytes = n
	}
}

// WithLogger sets the logger for unpack operations.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Unpacker) {
		u.logger = logger
	}
}

// New creates an Unpacker.
func New(opts ...Option) *Unpacker {
	u := &Unpacker{
		maxDepth: DefaultMaxDepth,
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// log returns the configured logger or a discard logger if none was set.
func (u *Unpacker) log() *slog.Logger {
	if u.logger != nil {
		return u.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Tree is the result of unpacking one file.
//
// Root is backed by the source file itself, which Close leaves in place.
// Every other backing file lives under Dir and is removed by Close.
type Tree struct {
	Root *tree.Entry

	dir     string
	written int64
}

// Dir returns the scratch directory holding extracted content.
func (t *Tree) Dir() string {
	return t.dir
}

// Written returns the number of bytes extracted into scratch storage.
func (t *Tree) Written() int64 {
	return t.written
}

// Close removes all scratch storage.
func (t *Tree) Close() error {
	if t.dir == "" {
		return nil
	}
	dir := t.dir
	t.dir = ""
	return os.RemoveAll(dir)
}

// Unpack expands src into a fresh scratch directory created under dir. The
// root entry is named after src.
func (u *Unpacker) Unpack(ctx context.Context, src, dir string) (*Tree, error) {
	return u.UnpackAs(ctx, src, filepath.Base(src), dir)
}

// UnpackAs is like Unpack but names the root entry name, for a src whose own
// file name is not meaningful, such as a download staged in a temp file.
// Member names of single-stream compressed roots derive from name.
//
// Failures to expand nested entries are recorded in the tree as statuses.
// Unpack itself fails only when src cannot be read, scratch storage cannot
// be created, or ctx is done; ctx is checked between entries.
func (u *Unpacker) UnpackAs(ctx context.Context, src, name, dir string) (*Tree, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", src, ErrNotRegular)
	}

	scratch, err := os.MkdirTemp(dir, ".annul-unpack-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	r := &run{
		ctx:    ctx,
		u:      u,
		log:    u.log(),
		dir:    scratch,
		budget: u.maxBytes,
	}
	root := &tree.Entry{Path: []byte(name), Backing: src}
	root.Status = r.expand(root, 0)

	t := &Tree{Root: root, dir: scratch, written: u.maxBytes - r.budget}
	if r.err != nil {
		_ = t.Close() //nolint:errcheck // best-effort cleanup
		return nil, r.err
	}
	return t, nil
}

// run holds the state of one Unpack call.
type run struct {
	ctx    context.Context
	u      *Unpacker
	log    *slog.Logger
	dir    string
	budget int64
	seq    int
	err    error
}

// expand determines the status of e, extracting and expanding its children
// when e is a supported container.
func (r *run) expand(e *tree.Entry, depth int) tree.Status {
	if r.err != nil {
		return tree.Failed(r.err)
	}
	if err := r.ctx.Err(); err != nil {
		r.err = err
		return tree.Failed(err)
	}

	f, err := e.Open()
	if err != nil {
		return r.failed(e, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return r.failed(e, err)
	}
	if info.Size() == 0 {
		return tree.Unnecessary()
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return r.failed(e, err)
	}
	fmtKind := detect(head[:n])

	switch {
	case fmtKind == formatNone:
		return tree.Unrecognised()
	case !fmtKind.supported():
		return tree.Unsupported(fmtKind.String())
	case depth >= r.u.maxDepth:
		return tree.TooNested()
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return r.failed(e, err)
	}

	children, err := r.extract(fmtKind, f, info.Size(), e)
	if err != nil {
		_ = tree.ReleaseAll(children) //nolint:errcheck // scratch is removed with the tree
		return r.failed(e, fmt.Errorf("%s: %w", fmtKind, err))
	}

	for _, child := range children {
		if child.HasContent() {
			child.Status = r.expand(child, depth+1)
		}
	}
	r.log.Debug("entry unpacked",
		slog.String("path", string(e.Path)),
		slog.String("format", fmtKind.String()),
		slog.Int("children", len(children)))
	return tree.Success(children)
}

func (r *run) failed(e *tree.Entry, err error) tree.Status {
	r.log.Warn("entry expansion failed",
		slog.String("path", string(e.Path)),
		slog.String("error", err.Error()))
	return tree.Failed(err)
}

func (r *run) extract(f format, src *os.File, size int64, parent *tree.Entry) ([]*tree.Entry, error) {
	switch {
	case f.stream():
		child, err := r.extractStream(f, src, parent)
		if err != nil {
			return nil, err
		}
		return []*tree.Entry{child}, nil
	case f == formatTar:
		return r.extractTar(src)
	case f == formatZip:
		return r.extractZip(src, size)
	default:
		return nil, fmt.Errorf("no extractor for %s", f)
	}
}

// store copies src into a new scratch file and returns its path. The bytes
// written are charged against the run's budget.
func (r *run) store(src io.Reader) (string, error) {
	r.seq++
	path := filepath.Join(r.dir, fmt.Sprintf("%08d", r.seq))
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path is inside our scratch dir
	if err != nil {
		return "", err
	}

	lw := &iox.LimitWriter{W: out, Remaining: r.budget, Err: ErrBudgetExceeded}
	_, copyErr := io.CopyBuffer(lw, src, make([]byte, copyBufferSize))
	r.budget = lw.Remaining
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path) //nolint:errcheck // best-effort cleanup
		return "", err
	}
	return path, nil
}
