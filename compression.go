package csvapi

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression magic bytes. Checked before format detection so that a
// compressed delimited file or spreadsheet is classified by its payload.
var (
	magicGZ   = []byte{0x1f, 0x8b}
	magicBZ2  = []byte{0x42, 0x5a, 0x68}
	magicXZ   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	magicZSTD = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// isCompressed reports whether content starts with a known compression magic.
func isCompressed(data []byte) bool {
	return bytes.HasPrefix(data, magicGZ) ||
		bytes.HasPrefix(data, magicBZ2) ||
		bytes.HasPrefix(data, magicXZ) ||
		bytes.HasPrefix(data, magicZSTD)
}

// Decompress transparently unwraps gzip, bzip2, xz, and zstd content.
// Uncompressed input is returned as-is. The decompressed size is capped at
// maxSize bytes (0 means no cap) so a small compressed bomb cannot buffer
// an unbounded payload; exceeding the cap returns ErrSizeExceeded.
func Decompress(data []byte, maxSize int64) ([]byte, error) {
	var reader io.Reader

	switch {
	case bytes.HasPrefix(data, magicGZ):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrMalformedInput, err)
		}
		defer gz.Close()
		reader = gz
	case bytes.HasPrefix(data, magicBZ2):
		reader = bzip2.NewReader(bytes.NewReader(data))
	case bytes.HasPrefix(data, magicXZ):
		xzReader, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: xz: %v", ErrMalformedInput, err)
		}
		reader = xzReader
	case bytes.HasPrefix(data, magicZSTD):
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrMalformedInput, err)
		}
		defer decoder.Close()
		reader = decoder
	default:
		return data, nil
	}

	if maxSize <= 0 {
		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrMalformedInput, err)
		}
		return out, nil
	}

	limited := io.LimitReader(reader, maxSize+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrMalformedInput, err)
	}
	if int64(len(out)) > maxSize {
		return nil, ErrSizeExceeded
	}
	return out, nil
}
