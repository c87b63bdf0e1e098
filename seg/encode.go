package seg

import (
	"fmt"
	"sort"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/cocosip/go-dicom-seg/pixel"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/dicom/uid"
)

// NewUID returns a UUID derived UID under the 2.25 root
func NewUID() string {
	return uid.GenerateDerivedFromUUID().UID()
}

// SourceFrame is the mask of one segment on one reference image in
// reference layout. Nonzero voxels are members.
type SourceFrame struct {
	Segment    int
	ImageIndex int
	Pixels     []byte
}

// EncodeInput is what Encode serializes
type EncodeInput struct {
	// Frames may hold several masks of the same segment and image, for
	// example one per labelmap layer; they are merged
	Frames []SourceFrame

	// Segments is the segment catalog; segments without an entry get a
	// generated one
	Segments []Segment

	Stack geometry.Stack
}

// FramesFromLayers splits the layers of a decoded labelmap into one mask per
// segment and image
func FramesFromLayers(lm *Labelmap) []SourceFrame {
	sliceLength := lm.SliceLength()
	var frames []SourceFrame
	for _, layer := range lm.Layers {
		images := len(layer) / max(sliceLength, 1)
		for image := 0; image < images; image++ {
			masks := make(map[int][]byte)
			for off, v := range layer.Slice(image, sliceLength) {
				if v == 0 {
					continue
				}
				m, ok := masks[int(v)]
				if !ok {
					m = make([]byte, sliceLength)
					masks[int(v)] = m
				}
				m[off] = 1
			}
			for segment, m := range masks {
				frames = append(frames, SourceFrame{Segment: segment, ImageIndex: image, Pixels: m})
			}
		}
	}
	return frames
}

type frameKey struct {
	segment int
	image   int
}

// Encode builds a segmentation with one frame per (segment, image) pair that
// has member voxels, ordered by segment number and then by stack index
func Encode(input *EncodeInput, opts *EncodeOptions) (*FrameSet, error) {
	if opts == nil {
		opts = DefaultEncodeOptions()
	}
	// Validate fills defaults, which must not leak into the caller's options
	local := *opts
	opts = &local
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if input == nil || len(input.Stack) == 0 {
		return nil, fmt.Errorf("%w: empty reference stack", ErrMissingMetadata)
	}
	stack := input.Stack
	ref := &stack[0]
	sliceLength := ref.SliceLength()

	merged := make(map[frameKey][]byte)
	for _, f := range input.Frames {
		if f.Segment < 1 || f.Segment > 0xFFFF {
			return nil, fmt.Errorf("%w: segment number %d", codec.ErrInvalidParameter, f.Segment)
		}
		if f.ImageIndex < 0 || f.ImageIndex >= len(stack) {
			return nil, fmt.Errorf("%w: image index %d of %d", codec.ErrInvalidParameter, f.ImageIndex, len(stack))
		}
		if len(f.Pixels) < sliceLength {
			return nil, fmt.Errorf("%w: %d pixels, want %d", codec.ErrBufferTooSmall, len(f.Pixels), sliceLength)
		}
		key := frameKey{f.Segment, f.ImageIndex}
		m, ok := merged[key]
		if !ok {
			m = make([]byte, sliceLength)
			merged[key] = m
		}
		for i, v := range f.Pixels[:sliceLength] {
			if v != 0 {
				m[i] = 1
			}
		}
	}

	keys := make([]frameKey, 0, len(merged))
	for k, m := range merged {
		if hasMember(m) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoFrames
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].segment != keys[j].segment {
			return keys[i].segment < keys[j].segment
		}
		return keys[i].image < keys[j].image
	})

	fs := &FrameSet{
		SOPClassUID:         SOPClassUID,
		SOPInstanceUID:      opts.UID(),
		StudyInstanceUID:    ref.StudyInstanceUID,
		SeriesInstanceUID:   opts.UID(),
		FrameOfReferenceUID: ref.FrameOfReferenceUID,
		Modality:            "SEG",
		SeriesNumber:        opts.SeriesNumber,
		InstanceNumber:      1,
		SeriesDescription:   opts.SeriesDescription,
		ContentLabel:        opts.ContentLabel,
		ContentCreator:      opts.ContentCreator,
		Manufacturer:        opts.Manufacturer,
		Rows:                ref.Rows,
		Columns:             ref.Columns,
		NumberOfFrames:      len(keys),
		ReferencedSeries:    referencedSeries(stack),

		DimensionOrganizationUID: opts.UID(),
		Dimensions:               append([]Dimension(nil), SegmentationDimensions...),
	}

	fs.Shared.PixelSpacing = []float64{ref.PixelSpacing[0], ref.PixelSpacing[1]}
	uniform := uniformOrientation(stack, keys)
	if uniform {
		fs.Shared.ImageOrientationPatient = ref.Orientation()
	}

	unpacked := make([]byte, 0, len(keys)*sliceLength)
	fs.PerFrame = make([]FunctionalGroups, len(keys))
	for i, k := range keys {
		im := &stack[k.image]
		pf := &fs.PerFrame[i]
		pf.ImagePositionPatient = im.PositionSlice()
		if !uniform {
			pf.ImageOrientationPatient = im.Orientation()
		}
		pf.Derived = true
		pf.SourceImages = []ImageReference{{
			SOPClassUID:    im.SOPClassUID,
			SOPInstanceUID: im.SOPInstanceUID,
			FrameNumber:    im.FrameNumber,
		}}
		pf.ReferencedSegmentNumber = k.segment
		pf.DimensionIndexValues = []int{k.segment, k.image + 1}
		unpacked = append(unpacked, merged[k]...)
	}

	fs.Segments = segmentCatalog(input.Segments, keys)

	params := codec.EncodeParams{
		PixelData: unpacked,
		Width:     fs.Columns,
		Height:    fs.Rows,
		Frames:    len(keys),
	}
	tsUID := transfer.ExplicitVRLittleEndian.UID().UID()
	if opts.RLE {
		// RLE cannot carry 1-bit frames, so masks are widened to 8-bit
		// probability values
		tsUID = transfer.RLELossless.UID().UID()
		params.PixelData = pixel.ScaleBinary(unpacked, 255)
		params.BitsAllocated = 8
		fs.BitsAllocated = 8
		fs.SegmentationType = Fractional
		fs.FractionalType = FractionalProbability
		fs.MaximumFractionalValue = 255
	} else {
		params.BitsAllocated = 1
		fs.BitsAllocated = 1
		fs.SegmentationType = Binary
	}

	c, err := codec.Get(tsUID)
	if err != nil {
		return nil, err
	}
	payload, err := c.Encode(params)
	if err != nil {
		return nil, fmt.Errorf("encode pixel data: %w", err)
	}
	fs.Payload = *payload
	fs.TransferSyntaxUID = tsUID

	opts.Logger.Info().Int("frames", len(keys)).Int("segments", len(fs.Segments)).
		Str("transfer_syntax", tsUID).Msg("encoded segmentation")
	return fs, nil
}

func hasMember(m []byte) bool {
	for _, v := range m {
		if v != 0 {
			return true
		}
	}
	return false
}

func uniformOrientation(stack geometry.Stack, keys []frameKey) bool {
	first := stack[keys[0].image].Orientation()
	for _, k := range keys[1:] {
		if !geometry.NearlyEqual(first, stack[k.image].Orientation(), 0) {
			return false
		}
	}
	return true
}

func referencedSeries(stack geometry.Stack) []ReferencedSeries {
	var series []ReferencedSeries
	pos := make(map[string]int)
	seen := make(map[string]bool)
	for i := range stack {
		im := &stack[i]
		j, ok := pos[im.SeriesInstanceUID]
		if !ok {
			j = len(series)
			pos[im.SeriesInstanceUID] = j
			series = append(series, ReferencedSeries{SeriesInstanceUID: im.SeriesInstanceUID})
		}
		if seen[im.SOPInstanceUID] {
			continue
		}
		seen[im.SOPInstanceUID] = true
		series[j].Instances = append(series[j].Instances, ImageReference{
			SOPClassUID:    im.SOPClassUID,
			SOPInstanceUID: im.SOPInstanceUID,
		})
	}
	return series
}

// segmentCatalog returns one catalog entry per encoded segment
func segmentCatalog(catalog []Segment, keys []frameKey) []Segment {
	byNumber := make(map[int]Segment, len(catalog))
	for _, s := range catalog {
		byNumber[s.Number] = s
	}

	var out []Segment
	for i, k := range keys {
		if i > 0 && keys[i-1].segment == k.segment {
			continue
		}
		s, ok := byNumber[k.segment]
		if !ok {
			s = Segment{Number: k.segment}
		}
		if s.Label == "" {
			s.Label = fmt.Sprintf("Segment %d", k.segment)
		}
		if s.AlgorithmType == "" {
			s.AlgorithmType = "MANUAL"
		}
		if s.Category.IsZero() {
			s.Category = Code{Value: "T-D0050", Scheme: "SRT", Meaning: "Tissue"}
		}
		if s.Type.IsZero() {
			s.Type = Code{Value: "T-D0050", Scheme: "SRT", Meaning: "Tissue"}
		}
		if !s.HasColor {
			s.Color = RGBToLab(DefaultColor(s.Number))
			s.HasColor = true
		}
		s.Contributions = nil
		out = append(out, s)
	}
	sortSegments(out)
	return out
}
