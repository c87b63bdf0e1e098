package pixel

import (
	"fmt"

	"github.com/cocosip/go-dicom-seg/codec"
)

// PackedLength returns the number of bytes holding n bit-packed voxels
func PackedLength(n int) int {
	return (n + 7) / 8
}

// UnpackBits expands n 1-bit voxels into one byte per voxel (0 or 1).
// DICOM packs bits little-endian within each byte (voxel k is bit k%8 of
// byte k/8), frame after frame with no per-frame byte alignment.
func UnpackBits(packed []byte, n int, chunkSize int) (*Chunked, error) {
	if n < 0 {
		return nil, codec.ErrInvalidParameter
	}
	if len(packed) < PackedLength(n) {
		return nil, fmt.Errorf("%w: need %d packed bytes for %d voxels, have %d",
			codec.ErrBufferTooSmall, PackedLength(n), n, len(packed))
	}

	out := NewChunked(int64(n), chunkSize)
	k := 0
	for _, chunk := range out.Chunks() {
		for i := range chunk {
			chunk[i] = (packed[k>>3] >> uint(k&7)) & 1
			k++
		}
	}
	return out, nil
}

// PackBits packs voxels into 1 bit per voxel; any nonzero voxel becomes 1
func PackBits(unpacked []byte) []byte {
	packed := make([]byte, PackedLength(len(unpacked)))
	for k, v := range unpacked {
		if v != 0 {
			packed[k>>3] |= 1 << uint(k&7)
		}
	}
	return packed
}
