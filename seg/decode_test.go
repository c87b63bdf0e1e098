package seg

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/cocosip/go-dicom-seg/orientation"
	"github.com/cocosip/go-dicom-seg/pixel"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDecodeSingleSegmentIdentity(t *testing.T) {
	const rows, cols = 6, 7
	stack := makeStack(3, rows, cols)
	m0 := rect(rows, cols, 1, 3, 2, 5)
	m2 := rect(rows, cols, 0, 0, 0, 6)
	fs := buildFrameSet(stack, rows, cols, []testFrame{
		{segment: 1, image: 0, pixels: m0},
		{segment: 1, image: 2, pixels: m2},
	})

	lm, err := Decode(context.Background(), fs, stack, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(lm.Layers) != 1 {
		t.Fatalf("got %d layers, want 1", len(lm.Layers))
	}
	if i, ok := sliceEquals(lm.Layers[0], 0, rows*cols, m0, 1); !ok {
		t.Errorf("image 0 differs at voxel %d", i)
	}
	if i, ok := sliceEquals(lm.Layers[0], 1, rows*cols, make([]byte, rows*cols), 1); !ok {
		t.Errorf("image 1 differs at voxel %d", i)
	}
	if i, ok := sliceEquals(lm.Layers[0], 2, rows*cols, m2, 1); !ok {
		t.Errorf("image 2 differs at voxel %d", i)
	}

	if len(lm.Segments) != 1 || lm.Segments[0].Label != "seg 1" {
		t.Fatalf("Segments = %+v", lm.Segments)
	}
	want := []Contribution{{Layer: 0, ImageIndex: 0}, {Layer: 0, ImageIndex: 2}}
	if !reflect.DeepEqual(lm.Segments[0].Contributions, want) {
		t.Errorf("Contributions = %v, want %v", lm.Segments[0].Contributions, want)
	}
	if !reflect.DeepEqual(lm.FrameImage, map[int]int{0: 0, 1: 2}) {
		t.Errorf("FrameImage = %v", lm.FrameImage)
	}
}

// Three 128x128 axial images at z = 0, 1, 2 with a 5x5 square on the first
// and last image
func TestDecodeThreeImageScenario(t *testing.T) {
	const rows, cols = 128, 128
	stack := makeStack(3, rows, cols)
	sq := rect(rows, cols, 10, 14, 10, 14)
	fs := buildFrameSet(stack, rows, cols, []testFrame{
		{segment: 1, image: 0, pixels: sq},
		{segment: 1, image: 2, pixels: sq},
	})

	lm, err := Decode(context.Background(), fs, stack, DefaultDecodeOptions())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := map[int][]int{0: {1}, 2: {1}}
	if !reflect.DeepEqual(lm.SegmentsOnImage, want) {
		t.Errorf("SegmentsOnImage = %v, want %v", lm.SegmentsOnImage, want)
	}
	layer := lm.Layers[0]
	for _, image := range []int{0, 2} {
		for r := 10; r <= 14; r++ {
			for c := 10; c <= 14; c++ {
				if v := layer[image*rows*cols+r*cols+c]; v != 1 {
					t.Fatalf("image %d (%d,%d) = %d, want 1", image, r, c, v)
				}
			}
		}
	}
	for i, v := range layer.Slice(1, rows*cols) {
		if v != 0 {
			t.Fatalf("image 1 voxel %d = %d, want 0", i, v)
		}
	}
}

func TestDecodeInvertsEveryTransform(t *testing.T) {
	const rows, cols = 6, 8
	stack := makeStack(2, rows, cols)
	canonical, err := orientation.Canonical(axialIOP)
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}

	// Asymmetric L shape with contiguous rows
	pattern := make([]byte, rows*cols)
	for c := 1; c <= 5; c++ {
		pattern[1*cols+c] = 1
	}
	pattern[2*cols+1] = 1
	pattern[3*cols+1] = 1
	pattern[4*cols+6] = 1

	for _, tr := range orientation.Transforms {
		t.Run(tr.String(), func(t *testing.T) {
			stored, err := tr.Apply(pattern, rows, cols)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			sr, sc := tr.AlignedDims(rows, cols)
			fs := buildFrameSet(stack, sr, sc, []testFrame{
				{segment: 1, image: 1, pixels: stored, iop: canonical[tr]},
			})

			lm, err := Decode(context.Background(), fs, stack, nil)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if i, ok := sliceEquals(lm.Layers[0], 1, rows*cols, pattern, 1); !ok {
				t.Errorf("aligned slice differs at voxel %d", i)
			}
		})
	}
}

func TestDecodeOverlappingSegments(t *testing.T) {
	const rows, cols = 8, 8
	stack := makeStack(2, rows, cols)
	s1 := rect(rows, cols, 0, 4, 0, 4)
	s2 := rect(rows, cols, 3, 6, 3, 6)
	fs := buildFrameSet(stack, rows, cols, []testFrame{
		{segment: 1, image: 1, pixels: s1},
		{segment: 2, image: 1, pixels: s2},
	})

	lm, err := Decode(context.Background(), fs, stack, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !lm.Overlapping || len(lm.Layers) < 2 {
		t.Fatalf("Overlapping = %v with %d layers, want overlapping with at least 2", lm.Overlapping, len(lm.Layers))
	}

	n := rows * cols
	for i := 0; i < n; i++ {
		covered := 0
		var seen []uint16
		for _, layer := range lm.Layers {
			if v := layer.Slice(1, n)[i]; v != 0 {
				covered++
				seen = append(seen, v)
			}
		}
		want := 0
		if s1[i] != 0 {
			want++
		}
		if s2[i] != 0 {
			want++
		}
		if covered != want {
			t.Fatalf("voxel %d covered by %d layers (%v), want %d", i, covered, seen, want)
		}
	}
	if lm.SegmentLayer[1] == lm.SegmentLayer[2] {
		t.Errorf("segments share layer %d", lm.SegmentLayer[1])
	}
	if !reflect.DeepEqual(lm.SegmentsOnImage[1], []int{1, 2}) {
		t.Errorf("SegmentsOnImage[1] = %v", lm.SegmentsOnImage[1])
	}
}

func TestDecodeCentroid(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(3, rows, cols)
	stack[2].PixelSpacing = [2]float64{0.5, 2}
	p := make([]byte, rows*cols)
	p[2*cols+3] = 1
	fs := buildFrameSet(stack, rows, cols, []testFrame{{segment: 3, image: 2, pixels: p}})

	lm, err := Decode(context.Background(), fs, stack, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	c, ok := lm.Centroids[3]
	if !ok {
		t.Fatal("no centroid for segment 3")
	}
	want := r3.Vec{X: -5 + 3*2, Y: -5 + 2*0.5, Z: 2}
	if !geometry.NearlyEqualVec(c.World, want, 1e-9) {
		t.Errorf("centroid = %v, want %v", c.World, want)
	}
}

func TestResolveDerivationWinsOverPosition(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(3, rows, cols)
	fs := buildFrameSet(stack, rows, cols, []testFrame{
		{segment: 1, image: 2, pixels: rect(rows, cols, 0, 1, 0, 1)},
	})
	// The frame sits exactly on image 0 but derives from image 2
	fs.PerFrame[0].ImagePositionPatient = stack[0].PositionSlice()

	r := NewResolver(fs, geometry.NewIndex(stack), geometry.DefaultTolerance, DefaultDecodeOptions().Logger)
	idx, method, err := r.Resolve(0)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if idx != 2 || method != MethodDerivation {
		t.Errorf("Resolve() = %d via %v, want 2 via derivation", idx, method)
	}
}

func TestResolveFallbacks(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(3, rows, cols)
	index := geometry.NewIndex(stack)

	tests := []struct {
		name       string
		mutate     func(fs *FrameSet)
		wantIndex  int
		wantMethod Method
		wantErr    error
	}{
		{
			name: "legacy source image sequence",
			mutate: func(fs *FrameSet) {
				fs.PerFrame[0].Derived = false
				fs.PerFrame[0].SourceImages = nil
				fs.PerFrame[0].ImagePositionPatient = nil
				fs.SourceImages = []ImageReference{{SOPInstanceUID: stack[1].SOPInstanceUID}}
			},
			wantIndex:  1,
			wantMethod: MethodLegacy,
		},
		{
			name: "legacy ignored when derivation present",
			mutate: func(fs *FrameSet) {
				fs.PerFrame[0].SourceImages = []ImageReference{{SOPInstanceUID: "9.9.9"}}
				fs.PerFrame[0].ImagePositionPatient = stack[2].PositionSlice()
				fs.SourceImages = []ImageReference{{SOPInstanceUID: stack[1].SOPInstanceUID}}
			},
			wantIndex:  2,
			wantMethod: MethodGeometric,
		},
		{
			name: "geometric within tolerance",
			mutate: func(fs *FrameSet) {
				fs.PerFrame[0].Derived = false
				fs.PerFrame[0].SourceImages = nil
				fs.PerFrame[0].ImagePositionPatient = []float64{-5.0004, -5, 1.0008}
			},
			wantIndex:  1,
			wantMethod: MethodGeometric,
		},
		{
			name: "geometric needs matching series",
			mutate: func(fs *FrameSet) {
				fs.PerFrame[0].Derived = false
				fs.PerFrame[0].SourceImages = nil
				fs.ReferencedSeries[0].SeriesInstanceUID = "1.2.3.999"
			},
			wantErr: ErrUnresolvedFrame,
		},
		{
			name: "geometric needs matching frame of reference",
			mutate: func(fs *FrameSet) {
				fs.PerFrame[0].Derived = false
				fs.PerFrame[0].SourceImages = nil
				fs.FrameOfReferenceUID = "1.2.3.998"
			},
			wantErr: ErrUnresolvedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := buildFrameSet(stack, rows, cols, []testFrame{
				{segment: 1, image: 0, pixels: rect(rows, cols, 0, 1, 0, 1)},
			})
			tt.mutate(fs)

			r := NewResolver(fs, index, geometry.DefaultTolerance, DefaultDecodeOptions().Logger)
			idx, method, err := r.Resolve(0)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				var fe *FrameError
				if !errors.As(err, &fe) || fe.Frame != 0 {
					t.Errorf("Resolve() error %v is not a FrameError for frame 0", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if idx != tt.wantIndex || method != tt.wantMethod {
				t.Errorf("Resolve() = %d via %v, want %d via %v", idx, method, tt.wantIndex, tt.wantMethod)
			}
		})
	}
}

func TestDecodeSkipsUnresolvedFrames(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(2, rows, cols)
	fs := buildFrameSet(stack, rows, cols, []testFrame{
		{segment: 1, image: 0, pixels: rect(rows, cols, 0, 0, 0, 3)},
		{segment: 1, image: 1, pixels: rect(rows, cols, 1, 1, 0, 3)},
	})
	fs.PerFrame[1].SourceImages = []ImageReference{{SOPInstanceUID: "9.9.9"}}
	fs.PerFrame[1].ImagePositionPatient = []float64{0, 0, 50}

	lm, err := Decode(context.Background(), fs, stack, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(lm.Skipped) != 1 || lm.Skipped[0].Frame != 1 || !errors.Is(lm.Skipped[0].Err, ErrUnresolvedFrame) {
		t.Errorf("Skipped = %v, want frame 1 unresolved", lm.Skipped)
	}
	if _, ok := lm.FrameImage[1]; ok {
		t.Error("unresolved frame 1 present in FrameImage")
	}
	if !reflect.DeepEqual(lm.SegmentsOnImage, map[int][]int{0: {1}}) {
		t.Errorf("SegmentsOnImage = %v", lm.SegmentsOnImage)
	}
}

func TestDecodeFatalErrors(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(2, rows, cols)
	mask := rect(rows, cols, 0, 1, 0, 1)

	tests := []struct {
		name    string
		build   func() *FrameSet
		wantErr error
	}{
		{
			name: "oblique frame",
			build: func() *FrameSet {
				return buildFrameSet(stack, rows, cols, []testFrame{
					{segment: 1, image: 0, pixels: mask, iop: []float64{0.8, 0.6, 0, -0.6, 0.8, 0}},
				})
			},
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name: "perpendicular frame",
			build: func() *FrameSet {
				return buildFrameSet(stack, rows, cols, []testFrame{
					{segment: 1, image: 0, pixels: mask, iop: []float64{0, 1, 0, 0, 0, -1}},
				})
			},
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name: "frame dimensions differ",
			build: func() *FrameSet {
				fs := buildFrameSet(stack, 2, 8, []testFrame{{segment: 1, image: 0, pixels: make([]byte, 16)}})
				return fs
			},
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name: "first frame without orientation",
			build: func() *FrameSet {
				fs := buildFrameSet(stack, rows, cols, []testFrame{{segment: 1, image: 0, pixels: mask}})
				fs.Shared.ImageOrientationPatient = nil
				return fs
			},
			wantErr: ErrMissingMetadata,
		},
		{
			name: "probabilistic fractional",
			build: func() *FrameSet {
				fs := buildFrameSet(stack, rows, cols, []testFrame{{segment: 1, image: 0, pixels: mask}})
				fs.BitsAllocated = 8
				fs.SegmentationType = Fractional
				fs.MaximumFractionalValue = 255
				data := pixel.ScaleBinary(mask, 255)
				data[0] = 128
				fs.Payload.Native = data
				return fs
			},
			wantErr: ErrUnsupportedEncoding,
		},
		{
			name: "RLE with 1-bit packing",
			build: func() *FrameSet {
				fs := buildFrameSet(stack, rows, cols, []testFrame{{segment: 1, image: 0, pixels: mask}})
				fs.TransferSyntaxUID = transfer.RLELossless.UID().UID()
				fs.Payload = codec.Payload{Fragments: [][]byte{make([]byte, 64)}, Encapsulated: true}
				return fs
			},
			wantErr: ErrUnsupportedEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm, err := Decode(context.Background(), tt.build(), stack, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if lm != nil {
				t.Error("Decode() returned a partial result")
			}
		})
	}
}

func TestDecodeBinaryFractional(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(1, rows, cols)
	mask := rect(rows, cols, 1, 2, 1, 2)
	fs := buildFrameSet(stack, rows, cols, []testFrame{{segment: 1, image: 0, pixels: mask}})
	fs.BitsAllocated = 8
	fs.SegmentationType = Fractional
	fs.FractionalType = FractionalProbability
	fs.MaximumFractionalValue = 200
	fs.Payload.Native = pixel.ScaleBinary(mask, 200)

	lm, err := Decode(context.Background(), fs, stack, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if i, ok := sliceEquals(lm.Layers[0], 0, rows*cols, mask, 1); !ok {
		t.Errorf("slice differs at voxel %d", i)
	}
}

func TestDecodeInheritsOrientation(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(2, rows, cols)
	fs := buildFrameSet(stack, rows, cols, []testFrame{
		{segment: 1, image: 0, pixels: rect(rows, cols, 0, 0, 0, 1), iop: axialIOP},
		{segment: 1, image: 1, pixels: rect(rows, cols, 0, 0, 0, 1)},
	})
	fs.Shared.ImageOrientationPatient = nil

	lm, err := Decode(context.Background(), fs, stack, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(lm.SegmentsOnImage, map[int][]int{0: {1}, 1: {1}}) {
		t.Errorf("SegmentsOnImage = %v", lm.SegmentsOnImage)
	}
}

func TestDecoderSteps(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(3, rows, cols)
	var frames []testFrame
	for i := 0; i < 3; i++ {
		frames = append(frames, testFrame{segment: 1, image: i, pixels: rect(rows, cols, i, i, 0, 3)})
	}
	fs := buildFrameSet(stack, rows, cols, frames)

	d, err := NewDecoder(fs, stack, nil)
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	ctx := context.Background()
	for step := 0; step < 2; step++ {
		more, err := d.Step(ctx, 1)
		if err != nil || !more {
			t.Fatalf("Step %d = %v, %v; want true, nil", step, more, err)
		}
		if _, err := d.Result(); !errors.Is(err, ErrDecodeIncomplete) {
			t.Fatalf("Result() before completion error = %v", err)
		}
	}
	more, err := d.Step(ctx, 1)
	if err != nil || more {
		t.Fatalf("last Step = %v, %v; want false, nil", more, err)
	}
	lm, err := d.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if len(lm.SegmentsOnImage) != 3 {
		t.Errorf("SegmentsOnImage = %v", lm.SegmentsOnImage)
	}

	// Steps after completion are no-ops
	if more, err := d.Step(ctx, 1); more || err != nil {
		t.Errorf("Step after completion = %v, %v", more, err)
	}
}

func TestDecodeCancelled(t *testing.T) {
	const rows, cols = 4, 4
	stack := makeStack(1, rows, cols)
	fs := buildFrameSet(stack, rows, cols, []testFrame{{segment: 1, image: 0, pixels: rect(rows, cols, 0, 0, 0, 0)}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lm, err := Decode(ctx, fs, stack, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Decode() error = %v, want %v", err, context.Canceled)
	}
	if lm != nil {
		t.Error("cancelled Decode() returned a result")
	}
}

func TestNewDecoderRejectsEmptyStack(t *testing.T) {
	fs := &FrameSet{Rows: 2, Columns: 2, NumberOfFrames: 1}
	if _, err := NewDecoder(fs, nil, nil); !errors.Is(err, ErrMissingMetadata) {
		t.Errorf("NewDecoder() error = %v, want %v", err, ErrMissingMetadata)
	}
}
