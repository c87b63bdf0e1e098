package seg

import (
	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/cocosip/go-dicom-seg/pixel"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of frames Decode processes per step
const DefaultBatchSize = 32

// DecodeOptions contains parameters for decoding a segmentation
type DecodeOptions struct {
	// Tolerance compares orientation cosines and positions
	Tolerance float64

	// ChunkSize bounds a single decoded pixel buffer chunk in bytes
	ChunkSize int

	// BatchSize is the number of frames processed between yields
	BatchSize int

	// ContiguousRows paints each row of a frame from its first to its last
	// member voxel
	ContiguousRows bool

	Logger zerolog.Logger
}

// DefaultDecodeOptions creates DecodeOptions with default values
func DefaultDecodeOptions() *DecodeOptions {
	return &DecodeOptions{
		Tolerance:      geometry.DefaultTolerance,
		ChunkSize:      pixel.DefaultChunkSize,
		BatchSize:      DefaultBatchSize,
		ContiguousRows: true,
		Logger:         zerolog.Nop(),
	}
}

// Validate resets out of range values to their defaults
func (o *DecodeOptions) Validate() error {
	if o.Tolerance <= 0 {
		o.Tolerance = geometry.DefaultTolerance
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = pixel.DefaultChunkSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return nil
}

// WithTolerance sets the tolerance and returns the options for chaining
func (o *DecodeOptions) WithTolerance(tol float64) *DecodeOptions {
	o.Tolerance = tol
	return o
}

// WithChunkSize sets the chunk size and returns the options for chaining
func (o *DecodeOptions) WithChunkSize(size int) *DecodeOptions {
	o.ChunkSize = size
	return o
}

// WithBatchSize sets the batch size and returns the options for chaining
func (o *DecodeOptions) WithBatchSize(n int) *DecodeOptions {
	o.BatchSize = n
	return o
}

// WithContiguousRows sets row-run painting and returns the options for chaining
func (o *DecodeOptions) WithContiguousRows(enabled bool) *DecodeOptions {
	o.ContiguousRows = enabled
	return o
}

// WithLogger sets the logger and returns the options for chaining
func (o *DecodeOptions) WithLogger(logger zerolog.Logger) *DecodeOptions {
	o.Logger = logger
	return o
}

// EncodeOptions contains parameters for encoding a segmentation
type EncodeOptions struct {
	// RLE stores frames RLE Lossless compressed. RLE payloads are written as
	// 8-bit FRACTIONAL/PROBABILITY with MaximumFractionalValue 255.
	RLE bool

	SeriesDescription string
	SeriesNumber      int
	ContentLabel      string
	ContentCreator    string
	Manufacturer      string

	// UID generates new instance UIDs; nil uses NewUID
	UID func() string

	Logger zerolog.Logger
}

// DefaultEncodeOptions creates EncodeOptions with default values
func DefaultEncodeOptions() *EncodeOptions {
	return &EncodeOptions{
		SeriesDescription: "Segmentation",
		SeriesNumber:      300,
		ContentLabel:      "SEGMENTATION",
		Manufacturer:      "go-dicom-seg",
		Logger:            zerolog.Nop(),
	}
}

// Validate fills unset values with their defaults
func (o *EncodeOptions) Validate() error {
	if o.UID == nil {
		o.UID = NewUID
	}
	if o.ContentLabel == "" {
		o.ContentLabel = "SEGMENTATION"
	}
	return nil
}

// WithRLE selects RLE Lossless storage and returns the options for chaining
func (o *EncodeOptions) WithRLE(enabled bool) *EncodeOptions {
	o.RLE = enabled
	return o
}

// WithSeriesDescription sets the series description and returns the options for chaining
func (o *EncodeOptions) WithSeriesDescription(desc string) *EncodeOptions {
	o.SeriesDescription = desc
	return o
}

// WithSeriesNumber sets the series number and returns the options for chaining
func (o *EncodeOptions) WithSeriesNumber(n int) *EncodeOptions {
	o.SeriesNumber = n
	return o
}

// WithContentLabel sets the content label and returns the options for chaining
func (o *EncodeOptions) WithContentLabel(label string) *EncodeOptions {
	o.ContentLabel = label
	return o
}

// WithUIDGenerator sets the UID generator and returns the options for chaining
func (o *EncodeOptions) WithUIDGenerator(gen func() string) *EncodeOptions {
	o.UID = gen
	return o
}

// WithLogger sets the logger and returns the options for chaining
func (o *EncodeOptions) WithLogger(logger zerolog.Logger) *EncodeOptions {
	o.Logger = logger
	return o
}
