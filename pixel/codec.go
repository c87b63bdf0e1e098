package pixel

import (
	"fmt"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
)

var _ codec.Codec = (*NativeCodec)(nil)

// NativeCodec stores segmentation frames uncompressed in Explicit VR Little
// Endian, either bit-packed (BitsAllocated 1) or one byte per voxel
// (BitsAllocated 8)
type NativeCodec struct {
	uid string
}

// NewNativeCodec creates a native payload codec
func NewNativeCodec() *NativeCodec {
	return &NativeCodec{uid: transfer.ExplicitVRLittleEndian.UID().UID()}
}

// Encode packs unpacked frames into a native payload
func (c *NativeCodec) Encode(params codec.EncodeParams) (*codec.Payload, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := params.Width * params.Height * params.Frames

	switch params.BitsAllocated {
	case 1:
		return &codec.Payload{Native: PackBits(params.PixelData[:n])}, nil
	case 8:
		data := make([]byte, n, n+n%2)
		copy(data, params.PixelData[:n])
		// OB values are padded to even length
		if n%2 == 1 {
			data = append(data, 0)
		}
		return &codec.Payload{Native: data}, nil
	default:
		return nil, fmt.Errorf("%w: BitsAllocated %d", codec.ErrUnsupportedEncoding, params.BitsAllocated)
	}
}

// Decode unpacks a native payload into one byte per voxel
func (c *NativeCodec) Decode(payload *codec.Payload, params codec.DecodeParams) (*codec.DecodeResult, error) {
	if payload == nil {
		return nil, codec.ErrInvalidParameter
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if payload.Encapsulated {
		return nil, fmt.Errorf("%w: encapsulated payload for native transfer syntax", codec.ErrUnsupportedEncoding)
	}

	n := params.FrameLength() * params.Frames
	var pixels *Chunked
	switch params.BitsAllocated {
	case 1:
		unpacked, err := UnpackBits(payload.Native, n, params.ChunkSize)
		if err != nil {
			return nil, err
		}
		pixels = unpacked
	case 8:
		if len(payload.Native) < n {
			return nil, fmt.Errorf("%w: need %d bytes, have %d", codec.ErrBufferTooSmall, n, len(payload.Native))
		}
		// Copy so fractional remapping never touches the caller's payload
		pixels = NewChunked(int64(n), params.ChunkSize)
		if _, err := pixels.WriteAt(payload.Native[:n], 0); err != nil {
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

// UID returns the Explicit VR Little Endian transfer syntax UID
func (c *NativeCodec) UID() string {
	return c.uid
}

// Name returns the codec name
func (c *NativeCodec) Name() string {
	return "seg-native"
}

// RegisterNativeCodec registers the native codec in the global registry
func RegisterNativeCodec() {
	codec.Register(NewNativeCodec())
}

func init() {
	RegisterNativeCodec()
}
