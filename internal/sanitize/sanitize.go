// Package sanitize reduces a byte stream to its printable runs so that the
// result stays useful to grep and similar string-based tools.
//
// Printable units are ASCII bytes from 0x20 to 0x7E, tab, LF, CR and
// well-formed UTF-8 sequences of two to four bytes. Everything else is a
// binary byte. Up to two consecutive binary bytes are kept inline; a third
// ends the current run, which is written followed by a NUL separator when it
// holds more than three bytes and dropped otherwise.
package sanitize

import "io"

const (
	// maxTolerated is the number of consecutive binary bytes kept inline.
	maxTolerated = 2

	// minRun is the longest run dropped at a binary boundary.
	minRun = 3

	// flushThreshold is the run length above which a size-bound flush happens.
	flushThreshold = 255

	// flushSize is the number of bytes written by a size-bound flush.
	flushSize = 250

	// maxUnit is the longest multi-byte unit.
	maxUnit = 4
)

// Sanitizer is an incremental sanitizer writing its output to an underlying
// writer. It is not safe for concurrent use.
//
// Feed input with Write in chunks of any size, then call Close to flush the
// remaining run and any undecided look-ahead. Output does not depend on how
// the input was split.
type Sanitizer struct {
	w io.Writer

	pending  [maxUnit]byte
	npending int

	run      []byte
	binaries int

	in  int64
	out int64
	err error
}

// New returns a Sanitizer writing to w.
func New(w io.Writer) *Sanitizer {
	return &Sanitizer{
		w:   w,
		run: make([]byte, 0, flushThreshold+maxUnit),
	}
}

// Write consumes p. It always reports len(p) consumed unless the underlying
// writer failed, in which case the error is sticky.
func (s *Sanitizer) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	for i, b := range p {
		s.pending[s.npending] = b
		s.npending++
		s.in++
		if err := s.drain(); err != nil {
			s.err = err
			return i + 1, err
		}
	}
	return len(p), nil
}

// Close flushes the current run as-is, then any incomplete trailing
// multi-byte sequence verbatim. It does not close the underlying writer.
func (s *Sanitizer) Close() error {
	if s.err != nil {
		return s.err
	}
	if err := s.emit(s.run); err != nil {
		s.err = err
		return err
	}
	s.run = s.run[:0]
	s.binaries = 0
	if err := s.emit(s.pending[:s.npending]); err != nil {
		s.err = err
		return err
	}
	s.npending = 0
	return nil
}

// InputBytes returns the number of bytes consumed so far.
func (s *Sanitizer) InputBytes() int64 { return s.in }

// OutputBytes returns the number of bytes written so far.
func (s *Sanitizer) OutputBytes() int64 { return s.out }

// drain classifies buffered look-ahead until it runs out or needs more input.
func (s *Sanitizer) drain() error {
	for s.npending > 0 {
		n, printable, decided := classify(s.pending[:s.npending])
		if !decided {
			return nil
		}
		var err error
		if printable {
			err = s.printable(s.pending[:n])
		} else {
			err = s.binary(s.pending[0])
		}
		if err != nil {
			return err
		}
		copy(s.pending[:], s.pending[n:s.npending])
		s.npending -= n
	}
	return nil
}

func (s *Sanitizer) printable(unit []byte) error {
	if s.binaries == len(s.run) {
		s.run = s.run[:0]
	}
	s.run = append(s.run, unit...)
	s.binaries = 0
	return s.flushLong()
}

func (s *Sanitizer) binary(b byte) error {
	if s.binaries < maxTolerated {
		s.binaries++
		s.run = append(s.run, b)
		return s.flushLong()
	}

	s.run = s.run[:len(s.run)-s.binaries]
	var err error
	if len(s.run) > minRun {
		if err = s.emit(s.run); err == nil {
			err = s.emit([]byte{0})
		}
	}
	s.run = s.run[:0]
	s.binaries = 0
	return err
}

// flushLong bounds the run buffer. The flushed prefix carries no separator.
func (s *Sanitizer) flushLong() error {
	if len(s.run) <= flushThreshold {
		return nil
	}
	if err := s.emit(s.run[:flushSize]); err != nil {
		return err
	}
	n := copy(s.run, s.run[flushSize:])
	s.run = s.run[:n]
	return nil
}

func (s *Sanitizer) emit(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := s.w.Write(p)
	s.out += int64(n)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// classify inspects the unit starting at buf[0]. It returns the unit length,
// whether it is printable, and whether a decision could be made with the
// bytes available. A rejected multi-byte candidate is always length 1 so
// scanning resumes at the byte after the lead.
func classify(buf []byte) (n int, printable, decided bool) {
	b := buf[0]
	if b < ' ' && b != '\t' && b != '\n' && b != '\r' {
		return 1, false, true
	}
	if b < 0x7f {
		return 1, true, true
	}

	need := leadLen(b)
	if need == 0 {
		return 1, false, true
	}
	for i := 1; i < len(buf) && i < need; i++ {
		if !continuation(buf[i]) {
			return 1, false, true
		}
	}
	if len(buf) < need {
		return 0, false, false
	}
	return need, true, true
}

// leadLen returns the sequence length announced by a UTF-8 lead byte, or 0.
func leadLen(b byte) int {
	switch {
	case b&0b1110_0000 == 0b1100_0000:
		return 2
	case b&0b1111_0000 == 0b1110_0000:
		return 3
	case b&0b1111_1000 == 0b1111_0000:
		return 4
	default:
		return 0
	}
}

func continuation(b byte) bool {
	return b&0b1100_0000 == 0b1000_0000
}
