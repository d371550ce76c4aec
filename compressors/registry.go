package compressors

import (
	"fmt"

	"github.com/INLOpen/ledgersnap/core"
)

// ForType returns the stream codec for ct.
func ForType(ct core.CompressionType) (core.StreamCodec, error) {
	switch ct {
	case core.CompressionNone:
		return NewNoCompressionCompressor(), nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	case core.CompressionGzip:
		return NewGzipCompressor(), nil
	case core.CompressionXZ:
		return NewXZCompressor(), nil
	default:
		return nil, fmt.Errorf("unsupported compression type %d", ct)
	}
}

// Parse resolves a configuration name such as "gzip" or "zstd" to a codec.
func Parse(name string) (core.StreamCodec, error) {
	ct, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return ForType(ct)
}
