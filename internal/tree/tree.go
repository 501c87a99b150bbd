// Package tree defines the entry tree produced by unpacking a source file
// and consumed by the frame encoder.
package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// StatusKind identifies how an entry's children were, or were not, produced.
type StatusKind uint8

// Status kinds. Exactly one holds per entry.
const (
	// StatusUnnecessary means expansion was not attempted because it was not needed.
	StatusUnnecessary StatusKind = iota + 1

	// StatusUnrecognised means the entry's format was not identified.
	StatusUnrecognised

	// StatusTooNested means the recursion-depth guard tripped.
	StatusTooNested

	// StatusUnsupported means the format was identified but cannot be expanded.
	StatusUnsupported

	// StatusError means expansion was attempted and failed.
	StatusError

	// StatusSuccess means expansion succeeded; the entry carries children.
	StatusSuccess
)

// String returns the string representation of the kind.
func (k StatusKind) String() string {
	switch k {
	case StatusUnnecessary:
		return "unnecessary"
	case StatusUnrecognised:
		return "unrecognised"
	case StatusTooNested:
		return "too nested"
	case StatusUnsupported:
		return "unsupported"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Status is the terminal expansion outcome of an entry.
//
// Children is only populated for StatusSuccess. Err carries the cause for
// StatusUnsupported and StatusError and is informational only.
type Status struct {
	Kind     StatusKind
	Children []*Entry
	Err      error
}

// Unnecessary returns a StatusUnnecessary status.
func Unnecessary() Status { return Status{Kind: StatusUnnecessary} }

// Unrecognised returns a StatusUnrecognised status.
func Unrecognised() Status { return Status{Kind: StatusUnrecognised} }

// TooNested returns a StatusTooNested status.
func TooNested() Status { return Status{Kind: StatusTooNested} }

// Unsupported returns a StatusUnsupported status for the named format.
func Unsupported(format string) Status {
	return Status{Kind: StatusUnsupported, Err: fmt.Errorf("%s: %w", format, ErrUnsupportedFormat)}
}

// Failed returns a StatusError status carrying err.
func Failed(err error) Status { return Status{Kind: StatusError, Err: err} }

// Success returns a StatusSuccess status owning children.
func Success(children []*Entry) Status { return Status{Kind: StatusSuccess, Children: children} }

// ErrUnsupportedFormat is wrapped by Unsupported statuses.
var ErrUnsupportedFormat = errors.New("format recognised but not supported")

// Entry is one node of an unpacked archive tree.
//
// Path is the raw member path relative to the parent and is not required to
// be valid UTF-8. Backing is the scratch file holding the entry's bytes, or
// empty when the entry has no content (directories, links, or released
// entries).
type Entry struct {
	Path    []byte
	Backing string
	Status  Status
}

// HasContent reports whether the entry is backed by a file.
func (e *Entry) HasContent() bool {
	return e.Backing != ""
}

// Open opens the entry's backing file for reading.
func (e *Entry) Open() (*os.File, error) {
	if e.Backing == "" {
		return nil, &fs.PathError{Op: "open", Path: string(e.Path), Err: fs.ErrNotExist}
	}
	return os.Open(e.Backing)
}

// Release removes the entry's backing file. It is safe to call more than once.
func (e *Entry) Release() error {
	if e.Backing == "" {
		return nil
	}
	path := e.Backing
	e.Backing = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReleaseAll releases every entry in entries and their descendants.
func ReleaseAll(entries []*Entry) error {
	var first error
	for _, e := range entries {
		if err := e.Release(); err != nil && first == nil {
			first = err
		}
		if err := ReleaseAll(e.Status.Children); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Count returns the number of entries in entries and all their descendants.
func Count(entries []*Entry) int {
	n := len(entries)
	for _, e := range entries {
		n += Count(e.Status.Children)
	}
	return n
}
