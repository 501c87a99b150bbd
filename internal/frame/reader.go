package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reader reads frames sequentially from a frame stream.
//
// Call Next to advance to the next frame, then Read to consume its content.
// Unread content is skipped by the following call to Next.
type Reader struct {
	r       io.Reader
	content io.LimitedReader
	hdr     [HeaderSize]byte
	frames  int
}

// NewReader returns a Reader over the uncompressed frame stream r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next advances to the next frame and returns its header. It returns io.EOF
// when the stream ends cleanly on a frame boundary.
func (r *Reader) Next() (*Header, error) {
	if r.content.N > 0 {
		if _, err := io.Copy(io.Discard, &r.content); err != nil {
			return nil, err
		}
		if r.content.N > 0 {
			return nil, r.truncated()
		}
	}

	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.truncated()
		}
		return nil, err
	}

	h := &Header{
		TotalLen: binary.LittleEndian.Uint64(r.hdr[0:8]),
		MetaLen:  binary.LittleEndian.Uint64(r.hdr[8:16]),
	}
	if h.MetaLen < minMetaLen || h.MetaLen > MaxMetaLen {
		return nil, fmt.Errorf("%w: frame %d: meta length %d", ErrCorruptFrame, r.frames, h.MetaLen)
	}
	if h.TotalLen < lengthFieldSize+h.MetaLen {
		return nil, fmt.Errorf("%w: frame %d: total length %d shorter than meta length %d", ErrCorruptFrame, r.frames, h.TotalLen, h.MetaLen)
	}
	h.DataLen = h.TotalLen - lengthFieldSize - h.MetaLen

	meta := make([]byte, h.MetaLen)
	if _, err := io.ReadFull(r.r, meta); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.truncated()
		}
		return nil, err
	}
	if err := decodeMeta(meta, h); err != nil {
		return nil, fmt.Errorf("frame %d: %w", r.frames, err)
	}

	r.content = io.LimitedReader{R: r.r, N: int64(min(h.DataLen, uint64(1<<63-1)))} //nolint:gosec // clamped
	r.frames++
	return h, nil
}

// Read reads content of the current frame. It returns io.EOF at the end of
// the frame's content.
func (r *Reader) Read(p []byte) (int, error) {
	if r.content.N <= 0 {
		return 0, io.EOF
	}
	n, err := r.content.Read(p)
	if errors.Is(err, io.EOF) && r.content.N > 0 {
		return n, r.truncated()
	}
	return n, err
}

// Frames returns the number of frames read so far.
func (r *Reader) Frames() int {
	return r.frames
}

func (r *Reader) truncated() error {
	return fmt.Errorf("%w: frame %d: unexpected end of stream", ErrCorruptFrame, r.frames)
}
