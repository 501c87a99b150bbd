package unpack

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/meigma/annul/internal/tree"
)

// extractStream decompresses a single-stream file into one child entry.
func (r *run) extractStream(f format, src io.Reader, parent *tree.Entry) (*tree.Entry, error) {
	name := streamName(f, path.Base(string(parent.Path)))

	var rd io.Reader
	switch f {
	case formatGzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		if hn := path.Base(zr.Name); zr.Name != "" && hn != "." && hn != "/" {
			name = hn
		}
		rd = zr
	case formatBzip2:
		rd = bzip2.NewReader(src)
	case formatXz:
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, err
		}
		rd = xr
	case formatZstd:
		zr, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		rd = zr
	default:
		return nil, fmt.Errorf("%s is not a stream format", f)
	}

	backing, err := r.store(rd)
	if err != nil {
		return nil, err
	}
	return &tree.Entry{Path: []byte(name), Backing: backing}, nil
}

// members collects archive members, keeping the last occurrence of a
// duplicated path.
type members struct {
	list  []*tree.Entry
	index map[string]int
}

func (m *members) add(e *tree.Entry) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[string(e.Path)]; ok {
		_ = m.list[i].Release() //nolint:errcheck // scratch is removed with the tree
		m.list[i] = e
		return
	}
	m.index[string(e.Path)] = len(m.list)
	m.list = append(m.list, e)
}

// validName reports whether an archive member name can be used as an
// entry path.
func validName(name string) bool {
	return name != "" && !strings.ContainsRune(name, 0)
}

// extractTar extracts every member of a tar archive. Regular files become
// entries with content; every other member type becomes an entry without
// content.
func (r *run) extractTar(src io.Reader) ([]*tree.Entry, error) {
	var m members
	tr := tar.NewReader(src)
	for {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return m.list, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return m.list, nil
		}
		if err != nil {
			return m.list, err
		}
		if !validName(hdr.Name) {
			r.log.Debug("skipping tar member with unusable name")
			continue
		}

		e := &tree.Entry{Path: []byte(hdr.Name)}
		if hdr.Typeflag == tar.TypeReg {
			backing, err := r.store(tr)
			if err != nil {
				return m.list, fmt.Errorf("%s: %w", hdr.Name, err)
			}
			e.Backing = backing
		} else {
			e.Status = tree.Unnecessary()
		}
		m.add(e)
	}
}

// extractZip extracts every member of a zip archive. Regular files become
// entries with content; directories and other members become entries
// without content.
func (r *run) extractZip(src *os.File, size int64) ([]*tree.Entry, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, err
	}

	var m members
	for _, zf := range zr.File {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return m.list, err
		}
		if !validName(zf.Name) {
			r.log.Debug("skipping zip member with unusable name")
			continue
		}

		e := &tree.Entry{Path: []byte(zf.Name)}
		if zf.Mode().IsRegular() {
			backing, err := r.storeZip(zf)
			if err != nil {
				return m.list, fmt.Errorf("%s: %w", zf.Name, err)
			}
			e.Backing = backing
		} else {
			e.Status = tree.Unnecessary()
		}
		m.add(e)
	}
	return m.list, nil
}

func (r *run) storeZip(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return r.store(rc)
}
