package unpack

import (
	"bytes"
	"strings"
)

// format is a container or compression format identified by its signature.
type format uint8

const (
	formatNone format = iota
	formatGzip
	formatBzip2
	formatXz
	formatZstd
	formatTar
	formatZip
	formatAr
	format7z
	formatRar
	formatLzip
)

// String returns the string representation of the format.
func (f format) String() string {
	switch f {
	case formatGzip:
		return "gzip"
	case formatBzip2:
		return "bzip2"
	case formatXz:
		return "xz"
	case formatZstd:
		return "zstd"
	case formatTar:
		return "tar"
	case formatZip:
		return "zip"
	case formatAr:
		return "ar"
	case format7z:
		return "7z"
	case formatRar:
		return "rar"
	case formatLzip:
		return "lzip"
	default:
		return "none"
	}
}

// supported reports whether the format can be expanded.
func (f format) supported() bool {
	switch f {
	case formatGzip, formatBzip2, formatXz, formatZstd, formatTar, formatZip:
		return true
	default:
		return false
	}
}

// stream reports whether the format wraps a single compressed stream.
func (f format) stream() bool {
	switch f {
	case formatGzip, formatBzip2, formatXz, formatZstd:
		return true
	default:
		return false
	}
}

// sniffLen is the number of leading bytes detect needs.
const sniffLen = 512

var signatures = []struct {
	format format
	offset int
	magic  []byte
}{
	{formatGzip, 0, []byte{0x1f, 0x8b}},
	{formatBzip2, 0, []byte("BZh")},
	{formatXz, 0, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{formatZstd, 0, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{formatZip, 0, []byte("PK\x03\x04")},
	{formatZip, 0, []byte("PK\x05\x06")},
	{formatAr, 0, []byte("!<arch>\n")},
	{format7z, 0, []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}},
	{formatRar, 0, []byte("Rar!\x1a\x07")},
	{formatLzip, 0, []byte("LZIP")},
	{formatTar, 257, []byte("ustar")},
}

// detect identifies the format of a file from its leading bytes.
func detect(head []byte) format {
	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if len(head) >= end && bytes.Equal(head[sig.offset:end], sig.magic) {
			return sig.format
		}
	}
	return formatNone
}

// suffixes maps compression suffixes to the suffix left after decompression.
var suffixes = map[format][][2]string{
	formatGzip:  {{".tgz", ".tar"}, {".gz", ""}, {".z", ""}},
	formatBzip2: {{".tbz2", ".tar"}, {".tbz", ".tar"}, {".bz2", ""}},
	formatXz:    {{".txz", ".tar"}, {".xz", ""}},
	formatZstd:  {{".tzst", ".tar"}, {".zstd", ""}, {".zst", ""}},
}

// streamName derives the name of the single member of a compressed stream
// from the name of the stream itself.
func streamName(f format, parent string) string {
	lower := strings.ToLower(parent)
	for _, s := range suffixes[f] {
		if strings.HasSuffix(lower, s[0]) && len(parent) > len(s[0]) {
			return parent[:len(parent)-len(s[0])] + s[1]
		}
	}
	return "data"
}
