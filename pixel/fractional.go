package pixel

import (
	"fmt"

	"github.com/cocosip/go-dicom-seg/codec"
)

// IsBinaryFractional reports whether every voxel of buf is 0 or maxValue
func IsBinaryFractional(buf *Chunked, maxValue int) bool {
	if maxValue <= 0 || maxValue > 255 {
		return false
	}
	m := byte(maxValue)
	for _, chunk := range buf.Chunks() {
		for _, v := range chunk {
			if v != 0 && v != m {
				return false
			}
		}
	}
	return true
}

// ReinterpretFractional remaps a fractional segmentation that only holds 0 and
// maxValue to 0/1 in place. Any other value means the segmentation is truly
// probabilistic and cannot become a discrete labelmap.
func ReinterpretFractional(buf *Chunked, maxValue int) error {
	if maxValue <= 0 || maxValue > 255 {
		return fmt.Errorf("%w: MaximumFractionalValue %d", codec.ErrUnsupportedEncoding, maxValue)
	}
	if !IsBinaryFractional(buf, maxValue) {
		return fmt.Errorf("%w: fractional segmentation holds values other than 0 and %d",
			codec.ErrUnsupportedEncoding, maxValue)
	}

	m := byte(maxValue)
	for _, chunk := range buf.Chunks() {
		for i, v := range chunk {
			if v == m {
				chunk[i] = 1
			}
		}
	}
	return nil
}

// ScaleBinary maps nonzero voxels to value, producing fractional-as-binary content
func ScaleBinary(unpacked []byte, value byte) []byte {
	out := make([]byte, len(unpacked))
	for i, v := range unpacked {
		if v != 0 {
			out[i] = value
		}
	}
	return out
}
