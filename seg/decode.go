package seg

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/cocosip/go-dicom-seg/labelmap"
	"github.com/cocosip/go-dicom-seg/orientation"
	"github.com/cocosip/go-dicom-seg/pixel"
	_ "github.com/cocosip/go-dicom-seg/rle" // registers the RLE payload codec
	"github.com/rs/zerolog"
)

// Labelmap is a decoded segmentation aligned to the reference stack
type Labelmap struct {
	Rows    int
	Columns int

	// Layers index voxels as image*Rows*Columns + row*Columns + column
	Layers []labelmap.Layer

	// Segments is the catalog of painted segments with their contributions,
	// ordered by segment number
	Segments []Segment

	SegmentsOnImage      map[int][]int
	LayerSegmentsOnImage []map[int][]int
	SegmentLayer         map[int]int
	Centroids            map[int]labelmap.Centroid

	// FrameImage maps resolved frames to stack indices; unresolved frames
	// are absent
	FrameImage map[int]int

	// Skipped lists frames that were left out, with the reason
	Skipped []FrameError

	Overlapping bool
}

// SliceLength returns the number of voxels per image
func (lm *Labelmap) SliceLength() int {
	return lm.Rows * lm.Columns
}

// Decoder decodes a segmentation in steps of frames so a host can yield
// between steps. Result is available once Step reports no remaining work.
type Decoder struct {
	fs     *FrameSet
	stack  geometry.Stack
	opts   DecodeOptions
	logger zerolog.Logger

	index    *geometry.Index
	resolver *Resolver
	pixels   codec.Buffer

	next       int
	lastIOP    []float64
	frames     []labelmap.Frame
	frameImage map[int]int
	skipped    []FrameError

	result *Labelmap
	err    error
}

// NewDecoder validates fs against the stack and decodes the pixel payload.
// Frames are processed by Step.
func NewDecoder(fs *FrameSet, stack geometry.Stack, opts *DecodeOptions) (*Decoder, error) {
	if opts == nil {
		opts = DefaultDecodeOptions()
	}
	// Validate fills defaults, which must not leak into the caller's options
	local := *opts
	opts = &local
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if fs == nil {
		return nil, fmt.Errorf("%w: nil frame set", codec.ErrInvalidParameter)
	}
	if len(stack) == 0 {
		return nil, fmt.Errorf("%w: empty reference stack", ErrMissingMetadata)
	}
	ref := &stack[0]
	for i := range stack {
		if stack[i].Rows != ref.Rows || stack[i].Columns != ref.Columns {
			return nil, fmt.Errorf("%w: reference image %d is %dx%d, want %dx%d", ErrUnsupportedGeometry,
				i, stack[i].Rows, stack[i].Columns, ref.Rows, ref.Columns)
		}
	}
	if fs.Rows <= 0 || fs.Columns <= 0 || fs.Frames() <= 0 {
		return nil, fmt.Errorf("%w: segmentation is %dx%d with %d frames", ErrMissingMetadata,
			fs.Rows, fs.Columns, fs.Frames())
	}

	index := geometry.NewIndex(stack)
	d := &Decoder{
		fs:         fs,
		stack:      stack,
		opts:       *opts,
		logger:     opts.Logger,
		index:      index,
		resolver:   NewResolver(fs, index, opts.Tolerance, opts.Logger),
		frameImage: make(map[int]int),
	}

	pixels, err := decodePixels(fs, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	d.pixels = pixels
	return d, nil
}

// decodePixels runs the payload codec for the transfer syntax and turns
// binary-valued fractional content into 0/1
func decodePixels(fs *FrameSet, chunkSize int) (codec.Buffer, error) {
	c, err := codec.ForPayload(fs.TransferSyntaxUID, fs.Payload.Encapsulated)
	if err != nil {
		return nil, fmt.Errorf("%w: transfer syntax %s", ErrUnsupportedEncoding, fs.TransferSyntaxUID)
	}

	res, err := c.Decode(&fs.Payload, codec.DecodeParams{
		Width:         fs.Columns,
		Height:        fs.Rows,
		Frames:        fs.Frames(),
		BitsAllocated: fs.BitsAllocated,
		ChunkSize:     chunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("decode pixel data: %w", err)
	}

	if fs.SegmentationType == Fractional {
		buf, ok := res.Pixels.(*pixel.Chunked)
		if !ok {
			return nil, fmt.Errorf("%w: fractional pixels in %T", ErrUnsupportedEncoding, res.Pixels)
		}
		if err := pixel.ReinterpretFractional(buf, fs.MaximumFractionalValue); err != nil {
			return nil, err
		}
	}
	return res.Pixels, nil
}

// Step processes up to n frames in ascending order and reports whether
// frames remain. The final step paints the labelmap. A cancelled context or
// a fatal frame error ends the decode without a result.
func (d *Decoder) Step(ctx context.Context, n int) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.result != nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		d.err = err
		return false, err
	}
	if n <= 0 {
		n = d.opts.BatchSize
	}

	total := d.fs.Frames()
	for end := min(d.next+n, total); d.next < end; d.next++ {
		if err := d.processFrame(d.next); err != nil {
			d.err = err
			return false, err
		}
	}
	if d.next < total {
		return true, nil
	}

	if err := d.finish(); err != nil {
		d.err = err
		return false, err
	}
	return false, nil
}

// Result returns the decoded labelmap after the last step
func (d *Decoder) Result() (*Labelmap, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.result == nil {
		return nil, ErrDecodeIncomplete
	}
	return d.result, nil
}

func (d *Decoder) skip(i int, err error) {
	var fe *FrameError
	if !errors.As(err, &fe) {
		fe = frameErr(i, err)
	}
	d.skipped = append(d.skipped, *fe)
	d.logger.Warn().Int("frame", i).Err(fe.Err).Msg("skipping segmentation frame")
}

func (d *Decoder) processFrame(i int) error {
	iop := d.fs.Orientation(i)
	if iop == nil {
		if i == 0 || d.lastIOP == nil {
			return frameErr(i, fmt.Errorf("%w: no image orientation", ErrMissingMetadata))
		}
		iop = d.lastIOP
	}
	d.lastIOP = iop

	imageIndex, method, err := d.resolver.Resolve(i)
	if err != nil {
		d.skip(i, err)
		return nil
	}

	ref := d.index.Image(imageIndex)
	res, err := orientation.Classify(iop, ref.Orientation(),
		[2]int{d.fs.Rows, d.fs.Columns}, [3]int{ref.Rows, ref.Columns, len(d.stack)}, d.opts.Tolerance)
	if err != nil {
		return frameErr(i, fmt.Errorf("%w: %v", ErrMissingMetadata, err))
	}
	if res.Class != orientation.Planar {
		return frameErr(i, fmt.Errorf("%w: %s frame", ErrUnsupportedGeometry, res.Class))
	}
	rows, cols := res.Transform.AlignedDims(d.fs.Rows, d.fs.Columns)
	if rows != ref.Rows || cols != ref.Columns {
		return frameErr(i, fmt.Errorf("%w: frame is %dx%d, reference is %dx%d", ErrUnsupportedGeometry,
			rows, cols, ref.Rows, ref.Columns))
	}

	segment := d.fs.SegmentNumber(i)
	if segment <= 0 {
		d.skip(i, fmt.Errorf("%w: no referenced segment number", ErrMissingMetadata))
		return nil
	}

	stored, err := pixel.ReadFrame(d.pixels, i, d.fs.Rows*d.fs.Columns)
	if err != nil {
		return frameErr(i, err)
	}
	aligned, err := res.Transform.Align(stored, d.fs.Rows, d.fs.Columns)
	if err != nil {
		return frameErr(i, err)
	}

	d.logger.Debug().Int("frame", i).Int("segment", segment).Int("image", imageIndex).
		Str("method", method.String()).Str("transform", res.Transform.String()).Msg("resolved frame")

	d.frameImage[i] = imageIndex
	d.frames = append(d.frames, labelmap.Frame{Segment: segment, ImageIndex: imageIndex, Pixels: aligned})
	return nil
}

func (d *Decoder) finish() error {
	ref := &d.stack[0]
	opts := labelmap.DefaultOptions(ref.Columns).WithContiguousRows(d.opts.ContiguousRows)
	painted, err := labelmap.Paint(d.frames, ref.SliceLength(), len(d.stack), opts)
	if err != nil {
		return err
	}

	lm := &Labelmap{
		Rows:                 ref.Rows,
		Columns:              ref.Columns,
		Layers:               painted.Layers,
		SegmentsOnImage:      painted.SegmentsOnImage,
		LayerSegmentsOnImage: painted.LayerSegmentsOnImage,
		SegmentLayer:         painted.SegmentLayer,
		Centroids:            labelmap.Centroids(painted.Voxels, d.stack),
		FrameImage:           d.frameImage,
		Skipped:              d.skipped,
		Overlapping:          painted.Overlapping,
	}

	for _, number := range painted.Segments() {
		s, ok := d.fs.Segment(number)
		if !ok {
			d.logger.Warn().Int("segment", number).Msg("segment missing from segment sequence")
			s = Segment{Number: number}
		}
		s.Contributions = nil
		layer := painted.SegmentLayer[number]
		images := make([]int, 0, len(painted.Voxels[number]))
		for image := range painted.Voxels[number] {
			images = append(images, image)
		}
		sort.Ints(images)
		for _, image := range images {
			s.Contributions = append(s.Contributions, Contribution{Layer: layer, ImageIndex: image})
		}
		lm.Segments = append(lm.Segments, s)
	}

	d.result = lm
	d.frames = nil
	d.logger.Info().Int("frames", d.fs.Frames()).Int("layers", len(lm.Layers)).
		Int("segments", len(lm.Segments)).Int("skipped", len(lm.Skipped)).Msg("decoded segmentation")
	return nil
}

// Decode decodes fs against the reference stack, yielding the processor
// between batches of frames. Cancellation is checked at every batch.
func Decode(ctx context.Context, fs *FrameSet, stack geometry.Stack, opts *DecodeOptions) (*Labelmap, error) {
	d, err := NewDecoder(fs, stack, opts)
	if err != nil {
		return nil, err
	}
	for {
		more, err := d.Step(ctx, d.opts.BatchSize)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		runtime.Gosched()
	}
	return d.Result()
}
