package codec

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
)

var _ imagetypes.PixelData = (*MemoryPixelData)(nil)

// MemoryPixelData is an in-memory implementation of go-dicom's
// imagetypes.PixelData. It carries segmentation frames between this module's
// codecs and go-dicom codec adapters.
type MemoryPixelData struct {
	frames       [][]byte
	frameInfo    *imagetypes.FrameInfo
	encapsulated bool
}

// NewMemoryPixelData creates an empty MemoryPixelData with the given frame info
func NewMemoryPixelData(frameInfo *imagetypes.FrameInfo, encapsulated bool) *MemoryPixelData {
	return &MemoryPixelData{
		frames:       make([][]byte, 0),
		frameInfo:    frameInfo,
		encapsulated: encapsulated,
	}
}

// SegmentationFrameInfo returns frame info for an 8-bit single-sample
// segmentation frame of the given size
func SegmentationFrameInfo(width, height, bitsAllocated int) *imagetypes.FrameInfo {
	bitsStored := uint16(bitsAllocated)
	return &imagetypes.FrameInfo{
		Width:                     uint16(width),
		Height:                    uint16(height),
		BitsAllocated:             uint16(bitsAllocated),
		BitsStored:                bitsStored,
		HighBit:                   bitsStored - 1,
		SamplesPerPixel:           1,
		PixelRepresentation:       0,
		PlanarConfiguration:       0,
		PhotometricInterpretation: "MONOCHROME2",
	}
}

// GetFrame returns the pixel data for the specified frame (0-indexed)
func (p *MemoryPixelData) GetFrame(frameIndex int) ([]byte, error) {
	if frameIndex < 0 || frameIndex >= len(p.frames) {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", frameIndex, len(p.frames))
	}
	return p.frames[frameIndex], nil
}

// AddFrame appends a new frame to the pixel data
func (p *MemoryPixelData) AddFrame(frameData []byte) error {
	p.frames = append(p.frames, frameData)
	return nil
}

// FrameCount returns the number of frames in the pixel data
func (p *MemoryPixelData) FrameCount() int {
	return len(p.frames)
}

// GetFrameInfo returns frame metadata for codec operations
func (p *MemoryPixelData) GetFrameInfo() *imagetypes.FrameInfo {
	return p.frameInfo
}

// IsEncapsulated returns true if pixel data is encapsulated (compressed)
func (p *MemoryPixelData) IsEncapsulated() bool {
	return p.encapsulated
}
