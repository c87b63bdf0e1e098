package pixel

import (
	"fmt"
	"io"

	"github.com/cocosip/go-dicom-seg/codec"
)

// DefaultChunkSize is the maximum number of bytes held by one chunk
const DefaultChunkSize = 199000000

var _ codec.Buffer = (*Chunked)(nil)

// Chunked is a byte buffer split into bounded-size chunks. Offsets are global;
// reads and writes cross chunk boundaries transparently.
type Chunked struct {
	chunks    [][]byte
	chunkSize int
	size      int64
}

// NewChunked allocates a zeroed buffer of the given size.
// chunkSize <= 0 selects DefaultChunkSize.
func NewChunked(size int64, chunkSize int) *Chunked {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	b := &Chunked{chunkSize: chunkSize, size: size}
	for remaining := size; remaining > 0; remaining -= int64(chunkSize) {
		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}
		b.chunks = append(b.chunks, make([]byte, n))
	}
	return b
}

// WrapBytes returns a buffer backed by data, re-chunked if data exceeds chunkSize
func WrapBytes(data []byte, chunkSize int) *Chunked {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(data) <= chunkSize {
		return &Chunked{chunks: [][]byte{data}, chunkSize: chunkSize, size: int64(len(data))}
	}
	b := NewChunked(int64(len(data)), chunkSize)
	_, _ = b.WriteAt(data, 0)
	return b
}

// Size returns the total number of bytes
func (b *Chunked) Size() int64 {
	return b.size
}

// ChunkCount returns the number of chunks backing the buffer
func (b *Chunked) ChunkCount() int {
	return len(b.chunks)
}

func (b *Chunked) locate(off int64) (chunk, pos int) {
	return int(off / int64(b.chunkSize)), int(off % int64(b.chunkSize))
}

// ReadAt implements io.ReaderAt
func (b *Chunked) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("pixel: negative offset %d", off)
	}
	if off >= b.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && off < b.size {
		ci, pos := b.locate(off)
		c := copy(p[n:], b.chunks[ci][pos:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt
func (b *Chunked) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > b.size {
		return 0, fmt.Errorf("pixel: write [%d,%d) outside buffer of %d bytes", off, off+int64(len(p)), b.size)
	}
	n := 0
	for n < len(p) {
		ci, pos := b.locate(off)
		c := copy(b.chunks[ci][pos:], p[n:])
		n += c
		off += int64(c)
	}
	return n, nil
}

// Slice returns length bytes starting at off. The result aliases the chunk
// when the range lies within a single chunk and is a copy otherwise.
func (b *Chunked) Slice(off int64, length int) ([]byte, error) {
	if off < 0 || length < 0 || off+int64(length) > b.size {
		return nil, fmt.Errorf("pixel: range [%d,%d) outside buffer of %d bytes", off, off+int64(length), b.size)
	}
	if length == 0 {
		return []byte{}, nil
	}
	ci, pos := b.locate(off)
	if pos+length <= len(b.chunks[ci]) {
		return b.chunks[ci][pos : pos+length], nil
	}
	out := make([]byte, length)
	if _, err := b.ReadAt(out, off); err != nil {
		return nil, err
	}
	return out, nil
}

// Bytes returns the whole buffer as one contiguous slice.
// A single-chunk buffer is returned without copying.
func (b *Chunked) Bytes() []byte {
	if len(b.chunks) == 1 {
		return b.chunks[0]
	}
	out := make([]byte, b.size)
	_, _ = b.ReadAt(out, 0)
	return out
}

// Chunks exposes the backing chunks for in-place scans
func (b *Chunked) Chunks() [][]byte {
	return b.chunks
}

// ReadFrame reads frame index of frameLength voxels from any codec buffer
func ReadFrame(buf codec.Buffer, index, frameLength int) ([]byte, error) {
	off := int64(index) * int64(frameLength)
	if c, ok := buf.(*Chunked); ok {
		return c.Slice(off, frameLength)
	}
	out := make([]byte, frameLength)
	if _, err := buf.ReadAt(out, off); err != nil {
		return nil, fmt.Errorf("pixel: read frame %d: %w", index, err)
	}
	return out, nil
}
