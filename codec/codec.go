package codec

import "io"

// Codec is the interface for segmentation pixel payload codecs
type Codec interface {
	// Encode converts unpacked frames (one byte per voxel) into a stored payload
	Encode(params EncodeParams) (*Payload, error)

	// Decode converts a stored payload into unpacked frames
	Decode(payload *Payload, params DecodeParams) (*DecodeResult, error)

	// UID returns the DICOM Transfer Syntax UID the payload is stored with
	UID() string

	// Name returns a human-readable name
	Name() string
}

// Payload is the pixel data of a segmentation object as stored in the dataset.
// Native payloads carry a single byte stream; encapsulated payloads carry one
// fragment per frame.
type Payload struct {
	Native       []byte
	Fragments    [][]byte
	Encapsulated bool
}

// FrameCount returns the number of encapsulated fragments
func (p *Payload) FrameCount() int {
	if p == nil {
		return 0
	}
	return len(p.Fragments)
}

// EncodeParams contains parameters for encoding
type EncodeParams struct {
	PixelData     []byte // Unpacked voxels, frame-major then row-major
	Width         int    // Columns
	Height        int    // Rows
	Frames        int    // Number of frames in PixelData
	BitsAllocated int    // 1 (bit-packed) or 8
	Options       Options
}

// DecodeParams contains parameters for decoding
type DecodeParams struct {
	Width         int // Columns
	Height        int // Rows
	Frames        int // NumberOfFrames
	BitsAllocated int // 1 or 8
	ChunkSize     int // Maximum bytes per output chunk (0 = default)
}

// FrameLength returns the number of voxels in one frame
func (p DecodeParams) FrameLength() int {
	return p.Width * p.Height
}

// Options is an interface for codec-specific encoding options
type Options interface {
	// Validate checks if the options are valid
	Validate() error
}

// Buffer is random access storage for decoded voxels. Implementations may
// split the voxels over several chunks; callers only see byte offsets.
type Buffer interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// DecodeResult contains the result of decoding
type DecodeResult struct {
	Pixels        Buffer // One byte per voxel
	Width         int
	Height        int
	Frames        int
	BitsAllocated int // BitsAllocated of the stored payload
}

// Validate checks encode parameters shared by all codecs
func (p EncodeParams) Validate() error {
	if p.Width <= 0 || p.Height <= 0 || p.Frames <= 0 {
		return ErrInvalidParameter
	}
	if len(p.PixelData) < p.Width*p.Height*p.Frames {
		return ErrBufferTooSmall
	}
	if p.Options != nil {
		return p.Options.Validate()
	}
	return nil
}

// Validate checks decode parameters shared by all codecs
func (p DecodeParams) Validate() error {
	if p.Width <= 0 || p.Height <= 0 || p.Frames <= 0 {
		return ErrInvalidParameter
	}
	if p.BitsAllocated != 1 && p.BitsAllocated != 8 {
		return ErrUnsupportedEncoding
	}
	return nil
}
