package annul

import (
	"github.com/meigma/annul/internal/frame"
	"github.com/meigma/annul/internal/tree"
)

// Entry is one node of an unpacked archive tree.
type Entry = tree.Entry

// Status is the terminal expansion outcome of an entry.
type Status = tree.Status

// StatusKind identifies how an entry's children were, or were not, produced.
type StatusKind = tree.StatusKind

// Status kinds.
const (
	StatusUnnecessary  = tree.StatusUnnecessary
	StatusUnrecognised = tree.StatusUnrecognised
	StatusTooNested    = tree.StatusTooNested
	StatusUnsupported  = tree.StatusUnsupported
	StatusError        = tree.StatusError
	StatusSuccess      = tree.StatusSuccess
)

// Status constructors.
var (
	Unnecessary  = tree.Unnecessary
	Unrecognised = tree.Unrecognised
	TooNested    = tree.TooNested
	Unsupported  = tree.Unsupported
	Failed       = tree.Failed
	Success      = tree.Success
)

// FrameHeader is a decoded frame header.
type FrameHeader = frame.Header

// ContentTag records whether a frame carries content and whether
// sanitizing changed its length.
type ContentTag = frame.ContentTag

// StatusTag is the serialized form of an entry's status.
type StatusTag = frame.StatusTag

// Content tags.
const (
	ContentVerbatim = frame.ContentVerbatim
	ContentReduced  = frame.ContentReduced
	ContentAbsent   = frame.ContentAbsent
)

// ContainerSuffix is appended to a source file name to name its container.
const ContainerSuffix = ".annul"
