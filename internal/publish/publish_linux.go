//go:build linux

package publish

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func renameNoReplace(tmp, dest string) error {
	err := unix.Renameat2(unix.AT_FDCWD, tmp, unix.AT_FDCWD, dest, unix.RENAME_NOREPLACE)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		// Kernel or filesystem without RENAME_NOREPLACE.
		return linkNoReplace(tmp, dest)
	}
	if err != nil {
		return &os.LinkError{Op: "renameat2", Old: tmp, New: dest, Err: err}
	}
	return nil
}
