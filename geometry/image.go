// Package geometry describes reference images and the lookup structures the
// segmentation decoder and encoder share: reference stacks, the SOP instance
// index, tolerance comparisons and pixel to patient coordinate mapping.
package geometry

import (
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTolerance is the default absolute tolerance for comparing
// orientation cosines and positions
const DefaultTolerance = 1e-3

// ReferenceImage is one image (or one frame of a multi-frame image) of the
// series a segmentation was derived from. It is supplied by the caller and
// never modified.
type ReferenceImage struct {
	// ImageID is an opaque caller identifier (file path, URL, store key)
	ImageID string

	SOPClassUID    string
	SOPInstanceUID string

	// FrameNumber is the 1-based frame of a multi-frame source, 0 otherwise
	FrameNumber int

	// Position is ImagePositionPatient, the center of the first voxel
	Position r3.Vec

	// RowCosines point along increasing column index, ColumnCosines along
	// increasing row index (ImageOrientationPatient[0:3] and [3:6])
	RowCosines    r3.Vec
	ColumnCosines r3.Vec

	Rows    int
	Columns int

	// PixelSpacing is (row spacing, column spacing) in mm
	PixelSpacing [2]float64

	FrameOfReferenceUID string
	SeriesInstanceUID   string
	StudyInstanceUID    string
}

// Orientation returns ImageOrientationPatient as six cosines
func (im *ReferenceImage) Orientation() []float64 {
	return []float64{
		im.RowCosines.X, im.RowCosines.Y, im.RowCosines.Z,
		im.ColumnCosines.X, im.ColumnCosines.Y, im.ColumnCosines.Z,
	}
}

// PositionSlice returns ImagePositionPatient as three values
func (im *ReferenceImage) PositionSlice() []float64 {
	return []float64{im.Position.X, im.Position.Y, im.Position.Z}
}

// Normal returns the unit vector perpendicular to the image plane
func (im *ReferenceImage) Normal() r3.Vec {
	return r3.Unit(r3.Cross(im.RowCosines, im.ColumnCosines))
}

// SliceLength returns the number of voxels in the image
func (im *ReferenceImage) SliceLength() int {
	return im.Rows * im.Columns
}

// World maps a (row, column) voxel coordinate to patient coordinates:
// Position + column*columnSpacing*RowCosines + row*rowSpacing*ColumnCosines
func (im *ReferenceImage) World(row, col float64) r3.Vec {
	p := r3.Add(im.Position, r3.Scale(col*im.PixelSpacing[1], im.RowCosines))
	return r3.Add(p, r3.Scale(row*im.PixelSpacing[0], im.ColumnCosines))
}

// VecFromSlice converts three values into a vector. Shorter input yields
// the zero vector and false.
func VecFromSlice(v []float64) (r3.Vec, bool) {
	if len(v) < 3 {
		return r3.Vec{}, false
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, true
}

// OrientationFromSlice splits six cosines into row and column vectors
func OrientationFromSlice(iop []float64) (row, col r3.Vec, ok bool) {
	if len(iop) < 6 {
		return r3.Vec{}, r3.Vec{}, false
	}
	return r3.Vec{X: iop[0], Y: iop[1], Z: iop[2]}, r3.Vec{X: iop[3], Y: iop[4], Z: iop[5]}, true
}

// NearlyEqual compares two vectors component-wise within tol
func NearlyEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !scalar.EqualWithinAbs(a[i], b[i], tol) {
			return false
		}
	}
	return true
}

// NearlyEqualVec compares two 3-vectors component-wise within tol
func NearlyEqualVec(a, b r3.Vec, tol float64) bool {
	return scalar.EqualWithinAbs(a.X, b.X, tol) &&
		scalar.EqualWithinAbs(a.Y, b.Y, tol) &&
		scalar.EqualWithinAbs(a.Z, b.Z, tol)
}
