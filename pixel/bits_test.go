package pixel

import (
	"errors"
	"testing"

	"github.com/cocosip/go-dicom-seg/codec"
)

func TestPackBitsLSBFirst(t *testing.T) {
	tests := []struct {
		name     string
		unpacked []byte
		want     []byte
	}{
		{"first voxel", []byte{1, 0, 0, 0, 0, 0, 0, 0}, []byte{0x01}},
		{"last voxel of byte", []byte{0, 0, 0, 0, 0, 0, 0, 1}, []byte{0x80}},
		{"partial byte", []byte{1, 1, 0}, []byte{0x03}},
		{"spans two bytes", []byte{0, 0, 0, 0, 0, 0, 0, 0, 1}, []byte{0x00, 0x01}},
		{"nonzero becomes one", []byte{7, 0, 255}, []byte{0x05}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PackBits(tt.unpacked)
			if len(got) != len(tt.want) {
				t.Fatalf("PackBits length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("byte %d = %#02x, want %#02x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestUnpackBitsMatchesPack(t *testing.T) {
	// 3 frames of 5x3 voxels; 15 voxels per frame so frames are not byte aligned
	n := 3 * 15
	src := make([]byte, n)
	for i := range src {
		if (i*7)%3 == 0 {
			src[i] = 1
		}
	}

	packed := PackBits(src)
	out, err := UnpackBits(packed, n, 0)
	if err != nil {
		t.Fatalf("UnpackBits failed: %v", err)
	}
	if out.Size() != int64(n) {
		t.Fatalf("Size = %d, want %d", out.Size(), n)
	}

	got := out.Bytes()
	for i := range src {
		if got[i] != src[i] {
			t.Errorf("voxel %d = %d, want %d", i, got[i], src[i])
		}
	}

	frame, err := ReadFrame(out, 1, 15)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	for i := range frame {
		if frame[i] != src[15+i] {
			t.Errorf("frame 1 voxel %d = %d, want %d", i, frame[i], src[15+i])
		}
	}
}

func TestUnpackBitsAcrossChunks(t *testing.T) {
	n := 100
	src := make([]byte, n)
	for i := 0; i < n; i += 3 {
		src[i] = 1
	}

	out, err := UnpackBits(PackBits(src), n, 16)
	if err != nil {
		t.Fatalf("UnpackBits failed: %v", err)
	}
	if out.ChunkCount() != 7 {
		t.Errorf("ChunkCount = %d, want 7", out.ChunkCount())
	}
	got := out.Bytes()
	for i := 0; i < n; i++ {
		if got[i] != src[i] {
			t.Fatalf("voxel %d = %d, want %d", i, got[i], src[i])
		}
	}
}

func TestUnpackBitsShortPayload(t *testing.T) {
	_, err := UnpackBits([]byte{0xFF}, 9, 0)
	if !errors.Is(err, codec.ErrBufferTooSmall) {
		t.Fatalf("error = %v, want ErrBufferTooSmall", err)
	}
}
