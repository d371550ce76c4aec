package compressors

import (
	"io"

	"github.com/INLOpen/ledgersnap/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements core.StreamCodec using the LZ4 frame format.
type LZ4Compressor struct{}

var _ core.StreamCodec = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (c *LZ4Compressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}

func (c *LZ4Compressor) Extension() string { return "lz4" }
