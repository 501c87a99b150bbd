// Package testutil builds archive fixtures in memory for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Member describes one archive member.
type Member struct {
	Name string
	Body []byte

	// Type is the tar type flag; zero means a regular file. Ignored by Zip
	// except for tar.TypeDir.
	Type     byte
	Linkname string
}

// File returns a regular-file member.
func File(name, body string) Member {
	return Member{Name: name, Body: []byte(body)}
}

// Dir returns a directory member.
func Dir(name string) Member {
	return Member{Name: name, Type: tar.TypeDir}
}

// Symlink returns a symbolic link member.
func Symlink(name, target string) Member {
	return Member{Name: name, Type: tar.TypeSymlink, Linkname: target}
}

// Tar returns a tar archive holding members in the given order.
func Tar(tb testing.TB, members ...Member) []byte {
	tb.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		typ := m.Type
		if typ == 0 {
			typ = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     m.Name,
			Typeflag: typ,
			Linkname: m.Linkname,
			Mode:     0o644,
			Format:   tar.FormatPAX,
		}
		if typ == tar.TypeReg {
			hdr.Size = int64(len(m.Body))
		}
		if typ == tar.TypeDir {
			hdr.Mode = 0o755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			tb.Fatalf("tar header %s: %v", m.Name, err)
		}
		if typ == tar.TypeReg {
			if _, err := tw.Write(m.Body); err != nil {
				tb.Fatalf("tar body %s: %v", m.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		tb.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// Zip returns a zip archive holding members in the given order.
func Zip(tb testing.TB, members ...Member) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		name := m.Name
		if m.Type == tar.TypeDir && name[len(name)-1] != '/' {
			name += "/"
		}
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if m.Type != tar.TypeDir {
			if _, err := w.Write(m.Body); err != nil {
				tb.Fatalf("zip write %s: %v", name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Gzip compresses data, recording name in the gzip header when non-empty.
func Gzip(tb testing.TB, name string, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = name
	if _, err := zw.Write(data); err != nil {
		tb.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// Xz compresses data with xz.
func Xz(tb testing.TB, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		tb.Fatalf("xz writer: %v", err)
	}
	if _, err := xw.Write(data); err != nil {
		tb.Fatalf("xz write: %v", err)
	}
	if err := xw.Close(); err != nil {
		tb.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// Zstd compresses data with zstd.
func Zstd(tb testing.TB, data []byte) []byte {
	tb.Helper()

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		tb.Fatalf("zstd writer: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

// Bzip2Hello is a bzip2 stream of "hello from bzip2\n". The standard
// library only decompresses bzip2.
var Bzip2Hello = []byte("\x42\x5a\x68\x39\x31\x41\x59\x26\x53\x59\x55\xe9\xaf\xe5\x00\x00" +
	"\x03\xd9\x80\x00\x10\x40\x00\x10\x00\x13\x66\xd0\x10\x20\x00\x22" +
	"\x9a\x32\x69\xe9\x1f\xa8\x40\x00\x0d\x2a\xf4\x26\xe0\xbf\x2c\x01" +
	"\x62\xee\x48\xa7\x0a\x12\x0a\xbd\x35\xfc\xa0")

// WriteFile writes data to dir/name and returns the path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
