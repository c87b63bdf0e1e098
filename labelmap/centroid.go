package labelmap

import (
	"github.com/cocosip/go-dicom-seg/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// Centroid is the mean position of a segment's voxels
type Centroid struct {
	// World is the mean patient coordinate in mm
	World r3.Vec

	// Image is the mean (column, row, slice index) coordinate
	Image r3.Vec

	Count int
}

// Centroids reduces per-segment voxel membership (segment -> image -> in-slice
// offsets) into centroids, mapping every voxel through the geometry record
// of its image. Images missing from stack are ignored.
func Centroids(voxels map[int]map[int][]int, stack geometry.Stack) map[int]Centroid {
	out := make(map[int]Centroid, len(voxels))
	for segment, perImage := range voxels {
		var world, image r3.Vec
		count := 0
		for imageIndex, offsets := range perImage {
			if imageIndex < 0 || imageIndex >= len(stack) {
				continue
			}
			im := &stack[imageIndex]
			if im.Columns <= 0 {
				continue
			}
			for _, off := range offsets {
				row := float64(off / im.Columns)
				col := float64(off % im.Columns)
				world = r3.Add(world, im.World(row, col))
				image = r3.Add(image, r3.Vec{X: col, Y: row, Z: float64(imageIndex)})
				count++
			}
		}
		if count == 0 {
			continue
		}
		n := 1 / float64(count)
		out[segment] = Centroid{
			World: r3.Scale(n, world),
			Image: r3.Scale(n, image),
			Count: count,
		}
	}
	return out
}
