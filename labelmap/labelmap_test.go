package labelmap

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cocosip/go-dicom-seg/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	rows = 4
	cols = 5
	vox  = rows * cols
)

// square returns a frame with rows r0..r1 and columns c0..c1 set
func square(r0, r1, c0, c1 int) []byte {
	p := make([]byte, vox)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			p[r*cols+c] = 1
		}
	}
	return p
}

func TestPaintSingleLayer(t *testing.T) {
	frames := []Frame{
		{Segment: 2, ImageIndex: 1, Pixels: square(0, 0, 0, 1)},
		{Segment: 1, ImageIndex: 0, Pixels: square(1, 2, 1, 3)},
		{Segment: 1, ImageIndex: 2, Pixels: make([]byte, vox)},
	}

	res, err := Paint(frames, vox, 3, DefaultOptions(cols))
	if err != nil {
		t.Fatalf("Paint() error = %v", err)
	}
	if res.Overlapping {
		t.Error("Overlapping = true, want false")
	}
	if len(res.Layers) != 1 {
		t.Fatalf("got %d layers, want 1", len(res.Layers))
	}

	want := map[int][]int{0: {1}, 1: {2}}
	if !reflect.DeepEqual(res.SegmentsOnImage, want) {
		t.Errorf("SegmentsOnImage = %v, want %v", res.SegmentsOnImage, want)
	}
	if !reflect.DeepEqual(res.LayerSegmentsOnImage[0], want) {
		t.Errorf("LayerSegmentsOnImage[0] = %v, want %v", res.LayerSegmentsOnImage[0], want)
	}

	slice0 := res.Layers[0].Slice(0, vox)
	for i, v := range square(1, 2, 1, 3) {
		if uint16(v) != slice0[i] {
			t.Fatalf("image 0 voxel %d = %d, want %d", i, slice0[i], v)
		}
	}
	if got := res.Layers[0].Slice(1, vox)[1]; got != 2 {
		t.Errorf("image 1 voxel 1 = %d, want 2", got)
	}
	if len(res.Voxels[1][0]) != 6 {
		t.Errorf("segment 1 has %d voxels on image 0, want 6", len(res.Voxels[1][0]))
	}
	if !reflect.DeepEqual(res.Segments(), []int{1, 2}) {
		t.Errorf("Segments() = %v", res.Segments())
	}
}

func TestPaintContiguousRows(t *testing.T) {
	pixels := make([]byte, vox)
	pixels[1*cols+0] = 1
	pixels[1*cols+3] = 1

	tests := []struct {
		name       string
		contiguous bool
		want       []int
	}{
		{"row runs", true, []int{5, 6, 7, 8}},
		{"per voxel", false, []int{5, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions(cols).WithContiguousRows(tt.contiguous)
			res, err := Paint([]Frame{{Segment: 1, Pixels: pixels}}, vox, 1, opts)
			if err != nil {
				t.Fatalf("Paint() error = %v", err)
			}
			if got := res.Voxels[1][0]; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("voxels = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaintOverlapping(t *testing.T) {
	s1 := square(0, 2, 0, 2)
	s2 := square(2, 3, 2, 4)
	frames := []Frame{
		{Segment: 2, ImageIndex: 0, Pixels: s2},
		{Segment: 1, ImageIndex: 0, Pixels: s1},
		{Segment: 1, ImageIndex: 1, Pixels: s1},
	}

	res, err := Paint(frames, vox, 2, DefaultOptions(cols))
	if err != nil {
		t.Fatalf("Paint() error = %v", err)
	}
	if !res.Overlapping {
		t.Error("Overlapping = false, want true")
	}
	if len(res.Layers) < 2 {
		t.Fatalf("got %d layers, want at least 2", len(res.Layers))
	}
	if res.SegmentLayer[1] != 0 || res.SegmentLayer[2] != 1 {
		t.Errorf("SegmentLayer = %v, want 1->0, 2->1", res.SegmentLayer)
	}

	// Segment 1 stays whole on layer 0, including image 1
	if got := res.Layers[0].Slice(1, vox)[0]; got != 1 {
		t.Errorf("layer 0 image 1 voxel 0 = %d, want 1", got)
	}
	// Nothing of the failed attempt on layer 0 survives
	for i, v := range res.Layers[0] {
		if v == 2 {
			t.Fatalf("layer 0 voxel %d holds segment 2", i)
		}
	}

	union := make([]bool, vox)
	for _, layer := range res.Layers {
		for i, v := range layer.Slice(0, vox) {
			if v != 0 {
				union[i] = true
			}
		}
	}
	for i := range union {
		want := s1[i] != 0 || s2[i] != 0
		if union[i] != want {
			t.Errorf("image 0 voxel %d covered = %v, want %v", i, union[i], want)
		}
	}

	if want := map[int][]int{0: {1, 2}, 1: {1}}; !reflect.DeepEqual(res.SegmentsOnImage, want) {
		t.Errorf("SegmentsOnImage = %v, want %v", res.SegmentsOnImage, want)
	}
	if want := map[int][]int{0: {2}}; !reflect.DeepEqual(res.LayerSegmentsOnImage[1], want) {
		t.Errorf("LayerSegmentsOnImage[1] = %v, want %v", res.LayerSegmentsOnImage[1], want)
	}
}

func TestPaintCurrentLayerCarriesOver(t *testing.T) {
	frames := []Frame{
		{Segment: 1, ImageIndex: 0, Pixels: square(0, 1, 0, 1)},
		{Segment: 2, ImageIndex: 0, Pixels: square(1, 2, 1, 2)},
		{Segment: 3, ImageIndex: 0, Pixels: square(3, 3, 4, 4)},
	}

	res, err := Paint(frames, vox, 1, DefaultOptions(cols))
	if err != nil {
		t.Fatalf("Paint() error = %v", err)
	}
	want := map[int]int{1: 0, 2: 1, 3: 1}
	if !reflect.DeepEqual(res.SegmentLayer, want) {
		t.Errorf("SegmentLayer = %v, want %v", res.SegmentLayer, want)
	}
	if len(res.Layers) != 2 {
		t.Errorf("got %d layers, want 2", len(res.Layers))
	}
}

func TestPaintSameSegmentIsNotCollision(t *testing.T) {
	p := square(0, 1, 0, 1)
	frames := []Frame{
		{Segment: 1, ImageIndex: 0, Pixels: p},
		{Segment: 1, ImageIndex: 0, Pixels: p},
	}

	res, err := Paint(frames, vox, 1, DefaultOptions(cols))
	if err != nil {
		t.Fatalf("Paint() error = %v", err)
	}
	if len(res.Layers) != 1 {
		t.Errorf("got %d layers, want 1", len(res.Layers))
	}
	if len(res.Voxels[1][0]) != 4 {
		t.Errorf("segment 1 has %d voxels, want 4", len(res.Voxels[1][0]))
	}
}

func TestPaintInvalidFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"segment zero", Frame{Segment: 0, Pixels: make([]byte, vox)}},
		{"image out of range", Frame{Segment: 1, ImageIndex: 3, Pixels: make([]byte, vox)}},
		{"short pixels", Frame{Segment: 1, Pixels: make([]byte, vox-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Paint([]Frame{tt.frame}, vox, 2, DefaultOptions(cols))
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("Paint() error = %v, want %v", err, ErrInvalidFrame)
			}
		})
	}
}

func TestCentroidSingleVoxel(t *testing.T) {
	stack := geometry.Stack{
		{Position: r3.Vec{Z: 0}, RowCosines: r3.Vec{X: 1}, ColumnCosines: r3.Vec{Y: 1}, Rows: rows, Columns: cols, PixelSpacing: [2]float64{1, 1}},
		{Position: r3.Vec{X: 10, Y: 20, Z: 2.5}, RowCosines: r3.Vec{X: 1}, ColumnCosines: r3.Vec{Y: 1}, Rows: rows, Columns: cols, PixelSpacing: [2]float64{0.5, 2}},
	}
	pixels := make([]byte, vox)
	pixels[3*cols+2] = 1

	res, err := Paint([]Frame{{Segment: 4, ImageIndex: 1, Pixels: pixels}}, vox, 2, DefaultOptions(cols))
	if err != nil {
		t.Fatalf("Paint() error = %v", err)
	}
	centroids := Centroids(res.Voxels, stack)

	c, ok := centroids[4]
	if !ok {
		t.Fatal("no centroid for segment 4")
	}
	want := stack[1].World(3, 2)
	if !geometry.NearlyEqualVec(c.World, want, 1e-9) {
		t.Errorf("World = %v, want %v", c.World, want)
	}
	if !geometry.NearlyEqualVec(c.World, r3.Vec{X: 14, Y: 21.5, Z: 2.5}, 1e-9) {
		t.Errorf("World = %v, want (14, 21.5, 2.5)", c.World)
	}
	if c.Image != (r3.Vec{X: 2, Y: 3, Z: 1}) || c.Count != 1 {
		t.Errorf("Image = %v, Count = %d", c.Image, c.Count)
	}
}

func TestCentroidMean(t *testing.T) {
	stack := geometry.Stack{
		{RowCosines: r3.Vec{X: 1}, ColumnCosines: r3.Vec{Y: 1}, Rows: rows, Columns: cols, PixelSpacing: [2]float64{1, 1}},
		{Position: r3.Vec{Z: 4}, RowCosines: r3.Vec{X: 1}, ColumnCosines: r3.Vec{Y: 1}, Rows: rows, Columns: cols, PixelSpacing: [2]float64{1, 1}},
	}
	voxels := map[int]map[int][]int{
		1: {0: {0}, 1: {cols*2 + 4}},
	}

	c := Centroids(voxels, stack)[1]
	if !geometry.NearlyEqualVec(c.World, r3.Vec{X: 2, Y: 1, Z: 2}, 1e-9) {
		t.Errorf("World = %v, want (2, 1, 2)", c.World)
	}
	if c.Count != 2 {
		t.Errorf("Count = %d, want 2", c.Count)
	}
}
