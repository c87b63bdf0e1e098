package geometry

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Stack is an ordered list of reference images. The order defines labelmap
// slice addressing and must not change for the duration of one call.
type Stack []ReferenceImage

// SliceLength returns Rows*Columns of the first image, or 0 for an empty stack
func (s Stack) SliceLength() int {
	if len(s) == 0 {
		return 0
	}
	return s[0].SliceLength()
}

// SortByPosition orders the stack along the normal of its first image, lowest
// projection first. Images at equal depth keep their relative order.
func SortByPosition(s Stack) {
	if len(s) < 2 {
		return
	}
	normal := s[0].Normal()
	sort.SliceStable(s, func(i, j int) bool {
		return r3.Dot(s[i].Position, normal) < r3.Dot(s[j].Position, normal)
	})
}

type indexKey struct {
	sopInstanceUID string
	frameNumber    int
}

// Index maps SOP instance UIDs (and frame numbers of multi-frame sources) to
// stack positions. It is built once per decode call.
type Index struct {
	stack Stack
	byKey map[indexKey]int
	bySOP map[string]int
}

// NewIndex indexes every image of the stack. When two images share a key the
// later one wins.
func NewIndex(stack Stack) *Index {
	idx := &Index{
		stack: stack,
		byKey: make(map[indexKey]int, len(stack)),
		bySOP: make(map[string]int, len(stack)),
	}
	for i := range stack {
		im := &stack[i]
		idx.byKey[indexKey{im.SOPInstanceUID, im.FrameNumber}] = i
		idx.bySOP[im.SOPInstanceUID] = i
	}
	return idx
}

// Lookup returns the stack index of the referenced image. The exact
// (UID, frame) key is tried first, then the UID alone so single-frame sources
// referenced with ReferencedFrameNumber 1 still resolve.
func (idx *Index) Lookup(sopInstanceUID string, frameNumber int) (int, bool) {
	if i, ok := idx.byKey[indexKey{sopInstanceUID, frameNumber}]; ok {
		return i, true
	}
	// Frames of multi-frame sources only match exactly
	i, ok := idx.bySOP[sopInstanceUID]
	if !ok || idx.stack[i].FrameNumber > 0 {
		return 0, false
	}
	return i, true
}

// Image returns the geometry record at stack index i
func (idx *Index) Image(i int) *ReferenceImage {
	if i < 0 || i >= len(idx.stack) {
		return nil
	}
	return &idx.stack[i]
}

// Stack returns the indexed stack
func (idx *Index) Stack() Stack {
	return idx.stack
}
