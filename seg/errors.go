package seg

import (
	"errors"
	"fmt"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom-seg/geometry"
)

var (
	// ErrUnsupportedGeometry is returned for frames perpendicular or oblique
	// to the reference stack and for frame dimensions that differ from the
	// reference images. It aborts the decode.
	ErrUnsupportedGeometry = errors.New("unsupported segmentation geometry")

	// ErrUnsupportedEncoding is returned for non-binary fractional content and
	// for RLE combined with 1-bit packing. It aborts the decode.
	ErrUnsupportedEncoding = codec.ErrUnsupportedEncoding

	// ErrUnresolvedFrame marks a frame with no matching reference image. The
	// frame is skipped.
	ErrUnresolvedFrame = errors.New("unresolved segmentation frame")

	// ErrMissingMetadata marks absent metadata. It is fatal only where no
	// geometry can be derived at all.
	ErrMissingMetadata = geometry.ErrMissingMetadata

	// ErrDecodeIncomplete is returned by Decoder.Result before the last step
	ErrDecodeIncomplete = errors.New("decode not complete")

	// ErrNoFrames is returned when an encode has nothing to store
	ErrNoFrames = errors.New("segmentation has no non-empty frames")
)

// FrameError attaches a 0-based segmentation frame index to an error
type FrameError struct {
	Frame int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

func frameErr(frame int, err error) *FrameError {
	return &FrameError{Frame: frame, Err: err}
}
