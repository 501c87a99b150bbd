//go:build !linux

package publish

func renameNoReplace(tmp, dest string) error {
	return linkNoReplace(tmp, dest)
}
