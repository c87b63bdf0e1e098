// Package labelmap paints aligned segmentation frames into non-overlapping
// labelmap layers and reduces segment membership into centroids.
package labelmap

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidFrame is returned for a frame whose image index, segment
	// number or pixel count does not fit the labelmap
	ErrInvalidFrame = errors.New("invalid labelmap frame")

	// ErrLayerLimit is returned if layer allocation exceeds its bound
	ErrLayerLimit = errors.New("layer limit exceeded")
)

// Layer is one labelmap volume: one segment number per voxel, slice-major.
// A voxel holds at most one nonzero segment number.
type Layer []uint16

// NewLayer allocates a zeroed layer for numImages slices
func NewLayer(sliceLength, numImages int) Layer {
	return make(Layer, sliceLength*numImages)
}

// Slice returns the voxels of one image
func (l Layer) Slice(image, sliceLength int) []uint16 {
	return l[image*sliceLength : (image+1)*sliceLength]
}

// Frame is one resolved and aligned segmentation frame in reference layout.
// Any nonzero pixel is a member of Segment.
type Frame struct {
	Segment    int
	ImageIndex int
	Pixels     []byte
}

// Options controls painting
type Options struct {
	// Columns is the row width of every slice; row runs need it
	Columns int

	// ContiguousRows paints each row from its first to its last member
	// voxel, the convention SEG writers follow for one segment per row
	ContiguousRows bool
}

// DefaultOptions returns options with row-run painting enabled
func DefaultOptions(columns int) Options {
	return Options{Columns: columns, ContiguousRows: true}
}

// WithContiguousRows sets row-run painting
func (o Options) WithContiguousRows(enabled bool) Options {
	o.ContiguousRows = enabled
	return o
}

// Result is the painted labelmap with its membership bookkeeping
type Result struct {
	Layers []Layer

	// SegmentsOnImage lists the segments present on each image, ascending
	SegmentsOnImage map[int][]int

	// LayerSegmentsOnImage is SegmentsOnImage per layer
	LayerSegmentsOnImage []map[int][]int

	// SegmentLayer is the layer each segment was painted on
	SegmentLayer map[int]int

	// Voxels holds the in-slice offsets of every segment per image
	Voxels map[int]map[int][]int

	// Overlapping is set when frames overlapped and the layered path ran
	Overlapping bool
}

func newResult() *Result {
	return &Result{
		SegmentsOnImage: make(map[int][]int),
		SegmentLayer:    make(map[int]int),
		Voxels:          make(map[int]map[int][]int),
	}
}

// Segments returns every painted segment number, ascending
func (r *Result) Segments() []int {
	segs := make([]int, 0, len(r.SegmentLayer))
	for s := range r.SegmentLayer {
		segs = append(segs, s)
	}
	sort.Ints(segs)
	return segs
}

// member is a frame reduced to the in-slice offsets it paints
type member struct {
	segment int
	image   int
	offsets []int
}

// Paint paints frames into as few layers as needed so no voxel of any layer
// holds two segments. Frames are processed by ascending segment number and
// keep their relative order within a segment.
func Paint(frames []Frame, sliceLength, numImages int, opts Options) (*Result, error) {
	if sliceLength <= 0 || numImages <= 0 {
		return nil, fmt.Errorf("%w: %d voxels per slice, %d images", ErrInvalidFrame, sliceLength, numImages)
	}

	ordered := make([]Frame, len(frames))
	copy(ordered, frames)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Segment < ordered[j].Segment })

	members := make([]member, 0, len(ordered))
	for i := range ordered {
		f := &ordered[i]
		if f.Segment < 1 || f.Segment > 0xFFFF {
			return nil, fmt.Errorf("%w: segment number %d", ErrInvalidFrame, f.Segment)
		}
		if f.ImageIndex < 0 || f.ImageIndex >= numImages {
			return nil, fmt.Errorf("%w: image index %d of %d", ErrInvalidFrame, f.ImageIndex, numImages)
		}
		if len(f.Pixels) < sliceLength {
			return nil, fmt.Errorf("%w: %d pixels, want %d", ErrInvalidFrame, len(f.Pixels), sliceLength)
		}
		offsets := memberOffsets(f.Pixels[:sliceLength], opts)
		if len(offsets) == 0 {
			continue
		}
		members = append(members, member{segment: f.Segment, image: f.ImageIndex, offsets: offsets})
	}

	if !overlaps(members, sliceLength) {
		return paintSingle(members, sliceLength, numImages), nil
	}
	return paintLayered(members, sliceLength, numImages)
}

// memberOffsets lists the offsets a frame paints
func memberOffsets(pixels []byte, opts Options) []int {
	var offsets []int
	cols := opts.Columns
	if !opts.ContiguousRows || cols <= 0 || len(pixels)%cols != 0 {
		for i, v := range pixels {
			if v != 0 {
				offsets = append(offsets, i)
			}
		}
		return offsets
	}

	for start := 0; start < len(pixels); start += cols {
		row := pixels[start : start+cols]
		first := -1
		for j, v := range row {
			if v != 0 {
				first = j
				break
			}
		}
		if first < 0 {
			continue
		}
		last := first
		for j := cols - 1; j > first; j-- {
			if row[j] != 0 {
				last = j
				break
			}
		}
		for j := first; j <= last; j++ {
			offsets = append(offsets, start+j)
		}
	}
	return offsets
}

// overlaps is the counting pre-pass: it reports whether any voxel of any
// image is painted by more than one frame
func overlaps(members []member, sliceLength int) bool {
	counts := make(map[int][]uint8)
	for _, m := range members {
		c, ok := counts[m.image]
		if !ok {
			c = make([]uint8, sliceLength)
			counts[m.image] = c
		}
		for _, off := range m.offsets {
			if c[off] > 0 {
				return true
			}
			c[off]++
		}
	}
	return false
}

func paintSingle(members []member, sliceLength, numImages int) *Result {
	res := newResult()
	layer := NewLayer(sliceLength, numImages)
	for _, m := range members {
		value := uint16(m.segment)
		base := m.image * sliceLength
		for _, off := range m.offsets {
			layer[base+off] = value
		}
		res.record(0, m)
	}
	res.Layers = []Layer{layer}
	res.LayerSegmentsOnImage = []map[int][]int{res.SegmentsOnImage}
	return res
}

type paintState int

const (
	stateAttempt paintState = iota
	stateCollision
	stateCommit
)

// paintLayered paints one segment at a time. A segment is attempted on the
// current layer; on the first voxel already held by another segment every
// voxel written by the attempt is cleared and the whole segment is retried
// on the next layer. The current layer carries over to the next segment.
func paintLayered(members []member, sliceLength, numImages int) (*Result, error) {
	res := newResult()
	res.Overlapping = true

	groups := groupBySegment(members)
	layers := []Layer{NewLayer(sliceLength, numImages)}
	current := 0

	for _, group := range groups {
		value := uint16(group[0].segment)
		state := stateAttempt
		var written []int

		for state != stateCommit {
			switch state {
			case stateAttempt:
				written = written[:0]
				state = stateCommit
				layer := layers[current]
			attempt:
				for _, m := range group {
					base := m.image * sliceLength
					for _, off := range m.offsets {
						idx := base + off
						switch layer[idx] {
						case 0:
							layer[idx] = value
							written = append(written, idx)
						case value:
						default:
							state = stateCollision
							break attempt
						}
					}
				}

			case stateCollision:
				layer := layers[current]
				for _, idx := range written {
					layer[idx] = 0
				}
				current++
				if current > len(groups) {
					return nil, fmt.Errorf("%w: segment %d needs layer %d", ErrLayerLimit, value, current)
				}
				if current == len(layers) {
					layers = append(layers, NewLayer(sliceLength, numImages))
				}
				state = stateAttempt
			}
		}

		for _, m := range group {
			res.record(current, m)
		}
	}

	res.Layers = layers
	for len(res.LayerSegmentsOnImage) < len(layers) {
		res.LayerSegmentsOnImage = append(res.LayerSegmentsOnImage, make(map[int][]int))
	}
	return res, nil
}

func groupBySegment(members []member) [][]member {
	var groups [][]member
	for i := 0; i < len(members); {
		j := i
		for j < len(members) && members[j].segment == members[i].segment {
			j++
		}
		groups = append(groups, members[i:j])
		i = j
	}
	return groups
}

// record adds m to the membership maps for layer
func (r *Result) record(layer int, m member) {
	r.SegmentsOnImage[m.image] = insertSorted(r.SegmentsOnImage[m.image], m.segment)
	r.SegmentLayer[m.segment] = layer

	if r.Overlapping {
		for len(r.LayerSegmentsOnImage) <= layer {
			r.LayerSegmentsOnImage = append(r.LayerSegmentsOnImage, make(map[int][]int))
		}
		l := r.LayerSegmentsOnImage[layer]
		l[m.image] = insertSorted(l[m.image], m.segment)
	}

	perImage, ok := r.Voxels[m.segment]
	if !ok {
		perImage = make(map[int][]int)
		r.Voxels[m.segment] = perImage
	}
	perImage[m.image] = mergeSorted(perImage[m.image], m.offsets)
}

// mergeSorted merges two ascending offset lists without duplicates
func mergeSorted(a, b []int) []int {
	if len(a) == 0 {
		return b
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func insertSorted(list []int, v int) []int {
	i := sort.SearchInts(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}
