// Package orientation classifies segmentation frame orientations against a
// reference image plane and re-aligns planar frames to the reference layout.
package orientation

import (
	"fmt"
	"math"

	"github.com/cocosip/go-dicom-seg/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is one of the eight in-plane symmetries of the square relating a
// stored frame to the reference image layout
type Transform int

const (
	Identity Transform = iota
	FlipH
	FlipV
	Rotate90
	Rotate90FlipH
	Rotate90FlipV
	Rotate180
	Rotate270
)

// Transforms lists every transform in canonical order
var Transforms = [...]Transform{Identity, FlipH, FlipV, Rotate90, Rotate90FlipH, Rotate90FlipV, Rotate180, Rotate270}

func (t Transform) String() string {
	switch t {
	case Identity:
		return "identity"
	case FlipH:
		return "flip-h"
	case FlipV:
		return "flip-v"
	case Rotate90:
		return "rotate-90"
	case Rotate90FlipH:
		return "rotate-90-flip-h"
	case Rotate90FlipV:
		return "rotate-90-flip-v"
	case Rotate180:
		return "rotate-180"
	case Rotate270:
		return "rotate-270"
	}
	return fmt.Sprintf("transform(%d)", int(t))
}

// Swaps reports whether the stored frame has rows and columns exchanged
// relative to the reference
func (t Transform) Swaps() bool {
	switch t {
	case Rotate90, Rotate90FlipH, Rotate90FlipV, Rotate270:
		return true
	}
	return false
}

// Class is the relation between a frame plane and the reference plane
type Class int

const (
	Planar Class = iota
	Perpendicular
	Oblique
)

func (c Class) String() string {
	switch c {
	case Planar:
		return "planar"
	case Perpendicular:
		return "perpendicular"
	case Oblique:
		return "oblique"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Result is the outcome of Classify. Transform is only meaningful for Planar.
type Result struct {
	Class     Class
	Transform Transform
}

// Canonical returns the eight frame orientations (row cosines followed by
// column cosines) that are in-plane symmetries of refIOP, indexed by
// Transform
func Canonical(refIOP []float64) ([8][]float64, error) {
	var out [8][]float64
	r, c, ok := geometry.OrientationFromSlice(refIOP)
	if !ok {
		return out, fmt.Errorf("orientation needs 6 values, got %d", len(refIOP))
	}
	neg := func(v r3.Vec) r3.Vec { return r3.Scale(-1, v) }

	pairs := [8][2]r3.Vec{
		Identity:      {r, c},
		FlipH:         {neg(r), c},
		FlipV:         {r, neg(c)},
		Rotate90:      {c, neg(r)},
		Rotate90FlipH: {neg(c), neg(r)},
		Rotate90FlipV: {c, r},
		Rotate180:     {neg(r), neg(c)},
		Rotate270:     {neg(c), r},
	}
	for i, p := range pairs {
		out[i] = []float64{p[0].X, p[0].Y, p[0].Z, p[1].X, p[1].Y, p[1].Z}
	}
	return out, nil
}

// Classify compares a frame orientation with the reference orientation.
// frameDims is the frame (rows, columns); refDims is the reference (rows,
// columns, number of images).
func Classify(frameIOP, refIOP []float64, frameDims [2]int, refDims [3]int, tol float64) (Result, error) {
	canonical, err := Canonical(refIOP)
	if err != nil {
		return Result{}, err
	}
	if len(frameIOP) < 6 {
		return Result{}, fmt.Errorf("orientation needs 6 values, got %d", len(frameIOP))
	}

	for _, t := range Transforms {
		if geometry.NearlyEqual(frameIOP[:6], canonical[t], tol) {
			return Result{Class: Planar, Transform: t}, nil
		}
	}

	fr, fc, _ := geometry.OrientationFromSlice(frameIOP)
	rr, rc, _ := geometry.OrientationFromSlice(refIOP)
	if axisAligned(r3.Dot(fr, rr), tol) && axisAligned(r3.Dot(fc, rc), tol) &&
		matchesDimension(frameDims[0], refDims) && matchesDimension(frameDims[1], refDims) {
		return Result{Class: Perpendicular}, nil
	}
	return Result{Class: Oblique}, nil
}

func axisAligned(dot, tol float64) bool {
	d := math.Abs(dot)
	return d <= tol || math.Abs(d-1) <= tol
}

func matchesDimension(n int, refDims [3]int) bool {
	return n == refDims[0] || n == refDims[1] || n == refDims[2]
}
