// Package preview renders labelmap slices as color images for inspection.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/cocosip/go-dicom-seg/seg"
	"github.com/disintegration/imaging"
)

// ErrImageOutOfRange is returned for an image index outside the labelmap
var ErrImageOutOfRange = errors.New("preview: image index out of range")

// Options controls slice rendering
type Options struct {
	// Scale is the integer magnification, nearest neighbour
	Scale int

	// Opacity of the segment overlay on Background, 0..1
	Opacity float64

	// Background is drawn under the overlay when set; it is resized to the
	// slice dimensions
	Background image.Image
}

// DefaultOptions returns an opaque overlay at native size
func DefaultOptions() *Options {
	return &Options{Scale: 1, Opacity: 1}
}

// Validate resets out of range values to their defaults
func (o *Options) Validate() {
	if o.Scale < 1 {
		o.Scale = 1
	}
	if o.Opacity <= 0 || o.Opacity > 1 {
		o.Opacity = 1
	}
}

// WithScale sets the magnification
func (o *Options) WithScale(scale int) *Options {
	o.Scale = scale
	return o
}

// WithBackground sets the background image and overlay opacity
func (o *Options) WithBackground(bg image.Image, opacity float64) *Options {
	o.Background = bg
	o.Opacity = opacity
	return o
}

// Slice renders one image of the labelmap. Each voxel takes the color of the
// segment painted on the highest layer; unlabeled voxels are transparent.
func Slice(lm *seg.Labelmap, imageIndex int, opts *Options) (*image.NRGBA, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	local := *opts
	opts = &local
	opts.Validate()
	if lm == nil || lm.SliceLength() == 0 {
		return nil, fmt.Errorf("preview: empty labelmap")
	}
	if imageIndex < 0 || len(lm.Layers) > 0 && (imageIndex+1)*lm.SliceLength() > len(lm.Layers[0]) {
		return nil, fmt.Errorf("%w: %d", ErrImageOutOfRange, imageIndex)
	}

	colors := make(map[uint16]color.NRGBA, len(lm.Segments))
	for _, s := range lm.Segments {
		c := s.DisplayColor()
		colors[uint16(s.Number)] = color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
	}

	overlay := image.NewNRGBA(image.Rect(0, 0, lm.Columns, lm.Rows))
	for _, layer := range lm.Layers {
		slice := layer.Slice(imageIndex, lm.SliceLength())
		for i, v := range slice {
			if v == 0 {
				continue
			}
			c, ok := colors[v]
			if !ok {
				d := seg.DefaultColor(int(v))
				c = color.NRGBA{R: d[0], G: d[1], B: d[2], A: 255}
			}
			overlay.SetNRGBA(i%lm.Columns, i/lm.Columns, c)
		}
	}

	out := overlay
	if opts.Background != nil {
		bg := imaging.Resize(opts.Background, lm.Columns, lm.Rows, imaging.Linear)
		out = imaging.Overlay(bg, overlay, image.Point{}, opts.Opacity)
	}
	if opts.Scale > 1 {
		out = imaging.Resize(out, lm.Columns*opts.Scale, lm.Rows*opts.Scale, imaging.NearestNeighbor)
	}
	return out, nil
}

// Encode writes img as PNG
func Encode(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// Save writes img to path, the format following the file extension
func Save(path string, img image.Image) error {
	return imaging.Save(img, path)
}
