package codec

import "errors"

var (
	// ErrCodecNotFound is returned when a codec is not found in the registry
	ErrCodecNotFound = errors.New("codec not found")

	// ErrInvalidParameter is returned when encoding/decoding parameters are invalid
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall is returned when pixel data is shorter than the declared geometry
	ErrBufferTooSmall = errors.New("pixel buffer too small")

	// ErrUnsupportedEncoding is returned for payload encodings the engine refuses
	// to decode, such as RLE combined with 1-bit packing or non-binary
	// fractional content
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)
