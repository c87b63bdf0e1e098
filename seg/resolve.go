package seg

import (
	"fmt"

	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/rs/zerolog"
)

// Method is the way a frame was matched to a reference image
type Method int

const (
	// MethodDerivation uses the per-frame Derivation Image Sequence
	MethodDerivation Method = iota
	// MethodLegacy uses the top-level Source Image Sequence item at the
	// frame's position
	MethodLegacy
	// MethodGeometric matches the frame position against the stack
	MethodGeometric
)

func (m Method) String() string {
	switch m {
	case MethodDerivation:
		return "derivation"
	case MethodLegacy:
		return "legacy"
	case MethodGeometric:
		return "geometric"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Resolver maps segmentation frames to reference stack indices
type Resolver struct {
	fs     *FrameSet
	index  *geometry.Index
	tol    float64
	logger zerolog.Logger

	seriesUID    string
	legacyLogged bool
}

// NewResolver creates a resolver over fs and the indexed reference stack
func NewResolver(fs *FrameSet, index *geometry.Index, tol float64, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fs:        fs,
		index:     index,
		tol:       tol,
		logger:    logger,
		seriesUID: fs.ReferencedSeriesUID(),
	}
}

// Resolve returns the stack index of the reference image frame i was derived
// from. Derivation metadata wins over the legacy top-level sequence, which
// wins over position matching.
func (r *Resolver) Resolve(i int) (int, Method, error) {
	sources, derived := r.fs.Derivation(i)
	if derived {
		for _, src := range sources {
			if idx, ok := r.index.Lookup(src.SOPInstanceUID, src.FrameNumber); ok {
				return idx, MethodDerivation, nil
			}
		}
	} else if i < len(r.fs.SourceImages) {
		src := r.fs.SourceImages[i]
		if idx, ok := r.index.Lookup(src.SOPInstanceUID, src.FrameNumber); ok {
			if !r.legacyLogged {
				r.legacyLogged = true
				r.logger.Warn().Int("frame", i).
					Msg("no derivation image sequence, assuming segmentation geometry equals source geometry")
			}
			return idx, MethodLegacy, nil
		}
	}

	if idx, ok := r.matchPosition(i); ok {
		return idx, MethodGeometric, nil
	}
	return -1, 0, frameErr(i, ErrUnresolvedFrame)
}

// matchPosition finds the first image of the referenced series within the
// segmentation's frame of reference lying at the frame position
func (r *Resolver) matchPosition(i int) (int, bool) {
	pos, ok := geometry.VecFromSlice(r.fs.Position(i))
	if !ok {
		return -1, false
	}
	stack := r.index.Stack()
	for j := range stack {
		im := &stack[j]
		if im.FrameOfReferenceUID != r.fs.FrameOfReferenceUID || im.SeriesInstanceUID != r.seriesUID {
			continue
		}
		if geometry.NearlyEqualVec(im.Position, pos, r.tol) {
			return j, true
		}
	}
	return -1, false
}
