package rle

import "errors"

// ErrInvalidFragment indicates an RLE fragment that cannot be decoded into a
// frame of the declared size
var ErrInvalidFragment = errors.New("rle: invalid fragment")
