package orientation

import "fmt"

// AlignedDims returns the reference (rows, columns) of a frame stored with
// the given dimensions
func (t Transform) AlignedDims(rows, cols int) (int, int) {
	if t.Swaps() {
		return cols, rows
	}
	return rows, cols
}

// source returns the stored frame coordinate holding reference pixel (i, j)
// of an R x C reference layout
func (t Transform) source(i, j, R, C int) (int, int) {
	switch t {
	case FlipH:
		return i, C - 1 - j
	case FlipV:
		return R - 1 - i, j
	case Rotate90:
		return C - 1 - j, i
	case Rotate90FlipH:
		return C - 1 - j, R - 1 - i
	case Rotate90FlipV:
		return j, i
	case Rotate180:
		return R - 1 - i, C - 1 - j
	case Rotate270:
		return j, R - 1 - i
	}
	return i, j
}

// Align converts a frame stored with rows x cols voxels into the reference
// layout. The result has AlignedDims(rows, cols) dimensions. Identity returns
// src unchanged.
func (t Transform) Align(src []byte, rows, cols int) ([]byte, error) {
	if len(src) < rows*cols {
		return nil, fmt.Errorf("frame has %d voxels, want %d", len(src), rows*cols)
	}
	if t == Identity {
		return src[:rows*cols], nil
	}

	R, C := t.AlignedDims(rows, cols)
	dst := make([]byte, R*C)
	for i := 0; i < R; i++ {
		for j := 0; j < C; j++ {
			si, sj := t.source(i, j, R, C)
			dst[i*C+j] = src[si*cols+sj]
		}
	}
	return dst, nil
}

// Apply is the inverse of Align: it converts an R x C reference layout into
// the frame layout stored with transform t
func (t Transform) Apply(ref []byte, R, C int) ([]byte, error) {
	if len(ref) < R*C {
		return nil, fmt.Errorf("image has %d voxels, want %d", len(ref), R*C)
	}

	rows, cols := t.AlignedDims(R, C)
	dst := make([]byte, rows*cols)
	for i := 0; i < R; i++ {
		for j := 0; j < C; j++ {
			si, sj := t.source(i, j, R, C)
			dst[si*cols+sj] = ref[i*C+j]
		}
	}
	return dst, nil
}
