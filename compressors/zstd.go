package compressors

import (
	"fmt"
	"io"
	"sync"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements core.StreamCodec using zstd. Decoders are pooled
// because each one owns sizeable window buffers.
type ZstdCompressor struct {
	decoderPool sync.Pool
}

type zstdReadCloser struct {
	*zstd.Decoder            // Embed the zstd.Decoder to inherit its Read method
	pool          *sync.Pool // Reference to the pool to return the decoder
	closeOnce     sync.Once
}

func (zrc *zstdReadCloser) Close() error {
	// Do not call zrc.Decoder.Close() as it invalidates the decoder for reuse.
	zrc.closeOnce.Do(func() {
		// Drop the reference to the source before pooling.
		_ = zrc.Decoder.Reset(nil)
		zrc.pool.Put(zrc.Decoder)
	})
	return nil
}

var _ core.StreamCodec = (*ZstdCompressor)(nil)
var _ io.ReadCloser = (*zstdReadCloser)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (c *ZstdCompressor) getDecoder() (*zstd.Decoder, error) {
	if dec, ok := c.decoderPool.Get().(*zstd.Decoder); ok {
		return dec, nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<30), zstd.WithDecoderConcurrency(1))
}

func (c *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := c.getDecoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder create error: %w", err)
	}
	if err := dec.Reset(r); err != nil {
		// If reset fails, put it back and return error
		c.decoderPool.Put(dec)
		return nil, fmt.Errorf("zstd decoder reset error: %w", err)
	}
	return &zstdReadCloser{Decoder: dec, pool: &c.decoderPool}, nil
}

func (c *ZstdCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder create error: %w", err)
	}
	return enc, nil
}

func (c *ZstdCompressor) Type() core.CompressionType {
	return core.CompressionZSTD
}

func (c *ZstdCompressor) Extension() string { return "zst" }
