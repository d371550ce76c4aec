package compressors

import (
	"io"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/ulikunitz/xz"
)

// XZCompressor implements core.StreamCodec with xz.
type XZCompressor struct{}

var _ core.StreamCodec = (*XZCompressor)(nil)

func NewXZCompressor() *XZCompressor {
	return &XZCompressor{}
}

func (c *XZCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xr), nil
}

func (c *XZCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return xz.NewWriter(w)
}

func (c *XZCompressor) Type() core.CompressionType {
	return core.CompressionXZ
}

func (c *XZCompressor) Extension() string { return "xz" }
