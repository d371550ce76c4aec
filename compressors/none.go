package compressors

import (
	"io"

	"github.com/INLOpen/ledgersnap/core"
)

// NoCompressionCompressor implements core.StreamCodec without performing compression.
type NoCompressionCompressor struct{}

var _ core.StreamCodec = (*NoCompressionCompressor)(nil)

func NewNoCompressionCompressor() *NoCompressionCompressor {
	return &NoCompressionCompressor{}
}

func (c *NoCompressionCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (c *NoCompressionCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (c *NoCompressionCompressor) Type() core.CompressionType {
	return core.CompressionNone
}

func (c *NoCompressionCompressor) Extension() string { return "" }

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
