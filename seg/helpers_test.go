package seg

import (
	"fmt"

	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/cocosip/go-dicom-seg/pixel"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	testFoR    = "1.2.826.0.1.3680043.1"
	testSeries = "1.2.826.0.1.3680043.2"
)

var axialIOP = []float64{1, 0, 0, 0, 1, 0}

// makeStack returns n axial images of rows x cols at z = 0, 1, 2 ... mm
func makeStack(n, rows, cols int) geometry.Stack {
	stack := make(geometry.Stack, n)
	for i := range stack {
		stack[i] = geometry.ReferenceImage{
			ImageID:             fmt.Sprintf("image-%d", i),
			SOPClassUID:         "1.2.840.10008.5.1.4.1.1.2",
			SOPInstanceUID:      fmt.Sprintf("1.2.826.0.1.3680043.3.%d", i),
			Position:            r3.Vec{X: -5, Y: -5, Z: float64(i)},
			RowCosines:          r3.Vec{X: 1},
			ColumnCosines:       r3.Vec{Y: 1},
			Rows:                rows,
			Columns:             cols,
			PixelSpacing:        [2]float64{1, 1},
			FrameOfReferenceUID: testFoR,
			SeriesInstanceUID:   testSeries,
			StudyInstanceUID:    "1.2.826.0.1.3680043.4",
		}
	}
	return stack
}

// testFrame describes one stored segmentation frame
type testFrame struct {
	segment int
	image   int
	pixels  []byte
	// iop overrides the shared orientation when set
	iop []float64
}

// buildFrameSet assembles a bit-packed BINARY segmentation whose frames
// reference stack images through the derivation image sequence
func buildFrameSet(stack geometry.Stack, rows, cols int, frames []testFrame) *FrameSet {
	fs := &FrameSet{
		SOPClassUID:         SOPClassUID,
		SOPInstanceUID:      "1.2.826.0.1.3680043.9.1",
		FrameOfReferenceUID: testFoR,
		TransferSyntaxUID:   transfer.ExplicitVRLittleEndian.UID().UID(),
		Rows:                rows,
		Columns:             cols,
		BitsAllocated:       1,
		NumberOfFrames:      len(frames),
		SegmentationType:    Binary,
		ReferencedSeries:    []ReferencedSeries{{SeriesInstanceUID: testSeries}},
	}
	fs.Shared.ImageOrientationPatient = axialIOP
	fs.Shared.PixelSpacing = []float64{1, 1}

	seen := make(map[int]bool)
	var unpacked []byte
	for _, f := range frames {
		im := stack[f.image]
		fs.PerFrame = append(fs.PerFrame, FunctionalGroups{
			ImagePositionPatient:    im.PositionSlice(),
			ImageOrientationPatient: f.iop,
			Derived:                 true,
			SourceImages: []ImageReference{{
				SOPClassUID:    im.SOPClassUID,
				SOPInstanceUID: im.SOPInstanceUID,
			}},
			ReferencedSegmentNumber: f.segment,
		})
		unpacked = append(unpacked, f.pixels...)
		if !seen[f.segment] {
			seen[f.segment] = true
			fs.Segments = append(fs.Segments, Segment{Number: f.segment, Label: fmt.Sprintf("seg %d", f.segment)})
		}
	}
	fs.Payload.Native = pixel.PackBits(unpacked)
	return fs
}

// rect returns a rows x cols mask with rows r0..r1 and columns c0..c1 set
func rect(rows, cols, r0, r1, c0, c1 int) []byte {
	p := make([]byte, rows*cols)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			p[r*cols+c] = 1
		}
	}
	return p
}

// sliceEquals compares one image of a layer with a 0/1 mask painted as value
func sliceEquals(layer []uint16, image, sliceLength int, mask []byte, value uint16) (int, bool) {
	s := layer[image*sliceLength : (image+1)*sliceLength]
	for i := range s {
		want := uint16(0)
		if mask[i] != 0 {
			want = value
		}
		if s[i] != want {
			return i, false
		}
	}
	return -1, true
}
