package registry

// Media types for annul containers in OCI registries.
const (
	// ArtifactType identifies annul containers as an OCI 1.1 artifact type.
	ArtifactType = "application/vnd.annul.container.v1"

	// MediaTypeFrames is the media type of the zstd-compressed frame stream.
	MediaTypeFrames = "application/vnd.annul.frames.v1+zstd"

	// AnnotationDictionary records the dictionary kind the container was
	// compressed with.
	AnnotationDictionary = "land.annul.dictionary"

	// AnnotationSource records the name of the archived source file.
	AnnotationSource = "land.annul.source"
)
