package compressors

import (
	"io"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/klauspost/compress/gzip"
)

// GzipCompressor implements core.StreamCodec with gzip, the format history
// archives publish buckets in.
type GzipCompressor struct {
	level int
}

var _ core.StreamCodec = (*GzipCompressor)(nil)

func NewGzipCompressor() *GzipCompressor {
	return &GzipCompressor{level: gzip.DefaultCompression}
}

func (c *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (c *GzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, c.level)
}

func (c *GzipCompressor) Type() core.CompressionType {
	return core.CompressionGzip
}

func (c *GzipCompressor) Extension() string { return "gz" }
