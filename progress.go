package annul

// ProgressStage identifies the current phase of archiving a file.
type ProgressStage uint8

// Progress stages.
const (
	// StageFetching indicates the source file is being downloaded.
	StageFetching ProgressStage = iota

	// StageUnpacking indicates the source file is being expanded.
	StageUnpacking

	// StageEncoding indicates frames are being written.
	StageEncoding

	// StagePublishing indicates the container is being moved into place.
	StagePublishing

	// StagePushing indicates the container is being pushed to a registry.
	StagePushing
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageFetching:
		return "fetching"
	case StageUnpacking:
		return "unpacking"
	case StageEncoding:
		return "encoding"
	case StagePublishing:
		return "publishing"
	case StagePushing:
		return "pushing"
	default:
		return "unknown"
	}
}

// ProgressEvent is a progress update for one source file.
type ProgressEvent struct {
	// Stage identifies the current phase.
	Stage ProgressStage

	// File is the source file name.
	File string

	// Path is the entry being framed during StageEncoding, with NUL
	// separators shown as "//".
	Path string

	// FramesDone is the number of frames written so far.
	FramesDone int

	// BytesDone is the number of bytes fetched during StageFetching, or
	// content bytes framed during StageEncoding.
	BytesDone uint64
}

// ProgressFunc receives progress updates. Files are processed one at a
// time, so calls are never concurrent.
type ProgressFunc func(ProgressEvent)
