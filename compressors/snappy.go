package compressors

import (
	"io"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/golang/snappy"
)

// SnappyCompressor implements core.StreamCodec using the snappy framing format.
type SnappyCompressor struct{}

var _ core.StreamCodec = (*SnappyCompressor)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

// NewWriter returns a buffered writer; Close flushes the last chunk.
func (c *SnappyCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}

func (c *SnappyCompressor) Extension() string { return "sz" }
