// Package frame implements the length-framed record format used inside an
// annul container.
//
// Each frame is:
//
//	u64 LE total length (8 + meta length + data length)
//	u64 LE meta length
//	meta: content tag (u8), status tag (u8), path bytes, 0x00
//	data: sanitized content, absent when the content tag is ContentAbsent
//
// Frames are concatenated with no stream header or trailer.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/annul/internal/tree"
)

// ContentTag records whether an entry had content and whether sanitizing
// changed its length.
type ContentTag byte

// Content tags.
const (
	// ContentVerbatim means the sanitized length equals the original length.
	ContentVerbatim ContentTag = 0

	// ContentReduced means sanitizing changed the content length.
	ContentReduced ContentTag = 1

	// ContentAbsent means the entry has no backing content.
	ContentAbsent ContentTag = 2
)

// String returns the string representation of the tag.
func (t ContentTag) String() string {
	switch t {
	case ContentVerbatim:
		return "verbatim"
	case ContentReduced:
		return "reduced"
	case ContentAbsent:
		return "absent"
	default:
		return fmt.Sprintf("content(%d)", byte(t))
	}
}

// StatusTag is the serialized form of an entry's expansion status.
type StatusTag byte

// Status tags, one per tree.StatusKind.
const (
	StatusUnnecessary  StatusTag = 3
	StatusUnrecognised StatusTag = 4
	StatusTooNested    StatusTag = 5
	StatusUnsupported  StatusTag = 6
	StatusError        StatusTag = 7
	StatusSuccess      StatusTag = 8
)

// Kind returns the status kind the tag stands for, or 0 if the tag is invalid.
func (t StatusTag) Kind() tree.StatusKind {
	if t < StatusUnnecessary || t > StatusSuccess {
		return 0
	}
	return tree.StatusKind(t-StatusUnnecessary) + tree.StatusUnnecessary
}

// String returns the string representation of the tag.
func (t StatusTag) String() string {
	if k := t.Kind(); k != 0 {
		return k.String()
	}
	return fmt.Sprintf("status(%d)", byte(t))
}

const (
	// HeaderSize is the size of the two length fields.
	HeaderSize = 16

	// lengthFieldSize is the size of the meta length field counted in the
	// total length.
	lengthFieldSize = 8

	// minMetaLen is two tags plus the terminating NUL.
	minMetaLen = 3

	// MaxMetaLen bounds the metadata block accepted by Reader.
	MaxMetaLen = 16 << 20
)

// Errors.
var (
	// ErrCorruptFrame is returned by Reader for a malformed frame.
	ErrCorruptFrame = errors.New("corrupt frame")

	// ErrUnknownStatus is returned for a status kind with no tag.
	ErrUnknownStatus = errors.New("unknown entry status")
)

// StatusTagFor maps a status kind to its fixed tag.
func StatusTagFor(k tree.StatusKind) (StatusTag, error) {
	switch k {
	case tree.StatusUnnecessary:
		return StatusUnnecessary, nil
	case tree.StatusUnrecognised:
		return StatusUnrecognised, nil
	case tree.StatusTooNested:
		return StatusTooNested, nil
	case tree.StatusUnsupported:
		return StatusUnsupported, nil
	case tree.StatusError:
		return StatusError, nil
	case tree.StatusSuccess:
		return StatusSuccess, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownStatus, k)
	}
}

// ContentTagFor returns the content tag for an entry with content whose
// original and sanitized lengths are given.
func ContentTagFor(originalLen, sanitizedLen uint64) ContentTag {
	if originalLen == sanitizedLen {
		return ContentVerbatim
	}
	return ContentReduced
}

// Meta builds a metadata block.
func Meta(content ContentTag, status StatusTag, path []byte) []byte {
	meta := make([]byte, 0, minMetaLen+len(path))
	meta = append(meta, byte(content), byte(status))
	meta = append(meta, path...)
	return append(meta, 0)
}

// WriteHeader writes the length fields and the metadata block of a frame
// whose content is dataLen bytes long. The caller writes the content.
func WriteHeader(w io.Writer, meta []byte, dataLen uint64) error {
	metaLen := uint64(len(meta))
	total := lengthFieldSize + metaLen + dataLen
	if total < dataLen {
		return fmt.Errorf("frame length overflow: data length %d", dataLen)
	}

	buf := make([]byte, 0, HeaderSize+len(meta))
	buf = binary.LittleEndian.AppendUint64(buf, total)
	buf = binary.LittleEndian.AppendUint64(buf, metaLen)
	buf = append(buf, meta...)

	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// Header is a decoded frame header.
type Header struct {
	Content  ContentTag
	Status   StatusTag
	Path     []byte
	TotalLen uint64
	MetaLen  uint64
	DataLen  uint64
}

// Segments splits Path at its NUL separators, outermost archive first.
func (h *Header) Segments() [][]byte {
	return bytes.Split(h.Path, []byte{0})
}

// DisplayPath renders Path with NUL separators shown as "//".
func (h *Header) DisplayPath() string {
	return string(bytes.ReplaceAll(h.Path, []byte{0}, []byte("//")))
}

func decodeMeta(meta []byte, h *Header) error {
	if meta[len(meta)-1] != 0 {
		return fmt.Errorf("%w: metadata not NUL terminated", ErrCorruptFrame)
	}
	h.Content = ContentTag(meta[0])
	h.Status = StatusTag(meta[1])
	if h.Content > ContentAbsent {
		return fmt.Errorf("%w: content tag %d", ErrCorruptFrame, meta[0])
	}
	if h.Status.Kind() == 0 {
		return fmt.Errorf("%w: status tag %d", ErrCorruptFrame, meta[1])
	}
	if h.Content == ContentAbsent && h.DataLen != 0 {
		return fmt.Errorf("%w: %d data bytes on entry without content", ErrCorruptFrame, h.DataLen)
	}
	h.Path = meta[2 : len(meta)-1]
	return nil
}
