package annul

import (
	"errors"
	"fmt"

	"github.com/meigma/annul/internal/frame"
	"github.com/meigma/annul/internal/tree"
)

// Errors.
var (
	// ErrNotArchive is returned when the top-level source file does not
	// expand into entries.
	ErrNotArchive = errors.New("expecting top level archive")

	// ErrShortWrite is returned when fewer content bytes were written to a
	// frame than its header declares.
	ErrShortWrite = errors.New("short write")

	// ErrDestinationExists is returned when the destination appeared while
	// the container was being written.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrChecksumMismatch is returned when a fetched file does not match the
	// digest listed in its package manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSizeMismatch is returned when a fetched file does not have the
	// size listed in its package manifest.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrNoFiles is returned for a package manifest that lists no files.
	ErrNoFiles = errors.New("manifest lists no files")

	// ErrInvalidPath is returned for an entry path containing a NUL byte.
	ErrInvalidPath = errors.New("entry path contains NUL")
)

// Errors re-exported from internal packages.
var (
	// ErrCorruptFrame is returned when reading a malformed container.
	ErrCorruptFrame = frame.ErrCorruptFrame

	// ErrUnknownStatus is returned when encoding an entry with an invalid status.
	ErrUnknownStatus = frame.ErrUnknownStatus

	// ErrUnsupportedFormat is carried by Unsupported statuses.
	ErrUnsupportedFormat = tree.ErrUnsupportedFormat
)

// FileError reports a failure to archive one source file.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("processing %s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// PanicError is an unexpected fault raised while archiving one file,
// recovered and reported as an ordinary error.
type PanicError struct {
	File  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic while processing %s: %v", e.File, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error) //nolint:errcheck // type assertion
	return err
}
