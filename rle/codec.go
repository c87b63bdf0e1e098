// Package rle stores segmentation frames as RLE Lossless fragments using
// go-dicom's PS3.5 Annex G coder.
package rle

import (
	"fmt"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom-seg/pixel"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	dicomcodec "github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
)

var _ codec.Codec = (*Codec)(nil)

// Codec stores segmentation frames as RLE Lossless encapsulated fragments,
// one fragment per frame
type Codec struct {
	uid string
	rle *dicomcodec.RLECodec
}

// NewCodec creates an RLE payload codec
func NewCodec() *Codec {
	return &Codec{
		uid: transfer.RLELossless.UID().UID(),
		rle: dicomcodec.NewRLECodec(),
	}
}

// Encode encodes each frame into its own RLE fragment
func (c *Codec) Encode(params codec.EncodeParams) (*codec.Payload, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.BitsAllocated != 8 {
		return nil, fmt.Errorf("%w: RLE requires BitsAllocated 8, got %d", codec.ErrUnsupportedEncoding, params.BitsAllocated)
	}

	info := codec.SegmentationFrameInfo(params.Width, params.Height, params.BitsAllocated)
	src := codec.NewMemoryPixelData(info, false)
	frameLength := params.Width * params.Height
	for f := 0; f < params.Frames; f++ {
		if err := src.AddFrame(params.PixelData[f*frameLength : (f+1)*frameLength]); err != nil {
			return nil, err
		}
	}

	dst := codec.NewMemoryPixelData(info, true)
	if err := c.rle.Encode(src, dst, c.rle.GetDefaultParameters()); err != nil {
		return nil, fmt.Errorf("RLE encode: %w", err)
	}

	fragments := make([][]byte, dst.FrameCount())
	for f := range fragments {
		fragments[f], _ = dst.GetFrame(f)
	}
	return &codec.Payload{Fragments: fragments, Encapsulated: true}, nil
}

// Decode decodes every fragment into a chunked buffer of one byte per voxel
func (c *Codec) Decode(payload *codec.Payload, params codec.DecodeParams) (*codec.DecodeResult, error) {
	if payload == nil {
		return nil, codec.ErrInvalidParameter
	}
	if params.BitsAllocated == 1 {
		return nil, fmt.Errorf("%w: RLE combined with 1-bit packing", codec.ErrUnsupportedEncoding)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !payload.Encapsulated {
		return nil, fmt.Errorf("%w: native payload for RLE transfer syntax", codec.ErrUnsupportedEncoding)
	}
	if payload.FrameCount() < params.Frames {
		return nil, fmt.Errorf("%w: %d fragments for %d frames", codec.ErrBufferTooSmall, payload.FrameCount(), params.Frames)
	}

	info := codec.SegmentationFrameInfo(params.Width, params.Height, params.BitsAllocated)
	frameLength := params.FrameLength()
	pixels := pixel.NewChunked(int64(frameLength)*int64(params.Frames), params.ChunkSize)
	for f := 0; f < params.Frames; f++ {
		decoded, err := c.decodeFrame(payload.Fragments[f], info)
		if err != nil {
			return nil, fmt.Errorf("RLE decode failed for frame %d: %w", f, err)
		}
		if len(decoded) < frameLength {
			return nil, fmt.Errorf("%w: frame %d decoded to %d bytes, want %d", ErrInvalidFragment, f, len(decoded), frameLength)
		}
		// The coder pads odd frames to even length
		if _, err := pixels.WriteAt(decoded[:frameLength], int64(f)*int64(frameLength)); err != nil {
			return nil, err
		}
	}

	return &codec.DecodeResult{
		Pixels:        pixels,
		Width:         params.Width,
		Height:        params.Height,
		Frames:        params.Frames,
		BitsAllocated: params.BitsAllocated,
	}, nil
}

// decodeFrame runs the go-dicom coder on a single fragment. Runs that point
// past the frame make the coder index out of range, so a panic is reported
// as ErrInvalidFragment.
func (c *Codec) decodeFrame(fragment []byte, info *imagetypes.FrameInfo) (frame []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			frame, err = nil, fmt.Errorf("%w: %v", ErrInvalidFragment, r)
		}
	}()

	src := codec.NewMemoryPixelData(info, true)
	if err := src.AddFrame(fragment); err != nil {
		return nil, err
	}
	dst := codec.NewMemoryPixelData(info, false)
	if err := c.rle.Decode(src, dst, c.rle.GetDefaultParameters()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFragment, err)
	}
	return dst.GetFrame(0)
}

// UID returns the RLE Lossless transfer syntax UID
func (c *Codec) UID() string {
	return c.uid
}

// Name returns the codec name
func (c *Codec) Name() string {
	return "seg-rle"
}

// RegisterCodec registers the RLE payload codec in the module registry.
// go-dicom's own registry keeps its built-in RLE codec.
func RegisterCodec() {
	codec.Register(NewCodec())
}

func init() {
	RegisterCodec()
}
