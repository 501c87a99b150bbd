// Package publish writes files through a scratch file that is moved into
// place only if the destination does not already exist.
package publish

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrExists is returned by Publish when the destination appeared after the
// scratch file was created.
var ErrExists = errors.New("destination already exists")

// Scratch is a temporary file in the destination's directory.
//
// Write to it, then call Publish to move it into place or Discard to drop
// it. Exactly one of Publish or Discard takes effect; later calls are no-ops
// that return nil.
type Scratch struct {
	dest string
	file *os.File
	done bool
}

// Create creates a scratch file next to dest. The destination directory is
// created if needed.
func Create(dest string) (*Scratch, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".annul-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	return &Scratch{dest: dest, file: f}, nil
}

// Write implements io.Writer.
func (s *Scratch) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Name returns the scratch file path.
func (s *Scratch) Name() string {
	return s.file.Name()
}

// Dest returns the destination path.
func (s *Scratch) Dest() string {
	return s.dest
}

// Publish syncs and closes the scratch file, then moves it to the
// destination without replacing an existing file. If the destination
// exists the scratch file is removed and ErrExists is returned.
func (s *Scratch) Publish() error {
	if s.done {
		return nil
	}
	s.done = true
	tmp := s.file.Name()

	if err := s.file.Sync(); err != nil {
		_ = s.file.Close() //nolint:errcheck // cleaning up
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("sync scratch file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close scratch file: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil { //nolint:gosec // published containers are world-readable
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("chmod: %w", err)
	}

	if err := renameNoReplace(tmp, s.dest); err != nil {
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("publish %s: %w", s.dest, ErrExists)
		}
		return fmt.Errorf("publish %s: %w", s.dest, err)
	}
	return nil
}

// Discard closes and removes the scratch file.
func (s *Scratch) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	_ = s.file.Close() //nolint:errcheck // we're cleaning up
	if err := os.Remove(s.file.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path names an existing file.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// linkNoReplace publishes by hard-linking tmp to dest, which fails if dest
// exists, then removing tmp.
func linkNoReplace(tmp, dest string) error {
	if err := os.Link(tmp, dest); err != nil {
		return err
	}
	return os.Remove(tmp)
}
