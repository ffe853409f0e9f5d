package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// CompressionAlgorithm is the one-byte tag written in front of packed data.
type CompressionAlgorithm byte

const (
	CompressionNone   CompressionAlgorithm = 'n'
	CompressionBrotli CompressionAlgorithm = 'b'
)

// Payloads below this size are stored as-is.
const minCompressSize = 512

// CompressData compresses data using the specified algorithm
func CompressData(data []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		return data, nil
	case CompressionBrotli:
		var buf bytes.Buffer
		writer := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write to brotli writer: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to close brotli writer: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %q", algorithm)
	}
}

// DecompressData decompresses data using the specified algorithm
func DecompressData(compressed []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		return compressed, nil
	case CompressionBrotli:
		data, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
		if err != nil {
			return nil, fmt.Errorf("failed to read from brotli reader: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %q", algorithm)
	}
}

// Pack compresses data when it is large enough to benefit and prefixes the
// algorithm tag so Unpack needs no side channel.
func Pack(data []byte) ([]byte, error) {
	algorithm := CompressionNone
	if len(data) >= minCompressSize {
		algorithm = CompressionBrotli
	}
	body, err := CompressData(data, algorithm)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(algorithm))
	return append(out, body...), nil
}

// Unpack reverses Pack. Untagged JSON written before packing was introduced
// is returned unchanged.
func Unpack(packed []byte) ([]byte, error) {
	if len(packed) == 0 {
		return packed, nil
	}
	switch packed[0] {
	case '{', '[':
		return packed, nil
	}
	return DecompressData(packed[1:], CompressionAlgorithm(packed[0]))
}
