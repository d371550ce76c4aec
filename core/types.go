package core

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// CompressionType identifies the compression algorithm applied to a remote
// bucket object or to a written snapshot.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
	CompressionGzip   CompressionType = 4
	CompressionXZ     CompressionType = 5
)

// StreamCodec defines the interface for streaming compression and decompression.
type StreamCodec interface {
	// NewReader wraps r so that reads return decompressed bytes.
	NewReader(r io.Reader) (io.ReadCloser, error)
	// NewWriter wraps w so that writes are compressed. Close flushes but does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// Type returns the CompressionType identifier for this codec.
	Type() CompressionType
	// Extension is the file-name suffix (without dot) used by archives, empty for none.
	Extension() string
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	case CompressionXZ:
		return "xz"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a configuration name onto a CompressionType.
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "xz":
		return CompressionXZ, nil
	default:
		return CompressionNone, &ValidationError{Field: "compression", Value: name, Message: "unknown compression type"}
	}
}

// Hash is a 32-byte SHA-256 digest. Wasm hashes, balance and pool ids,
// TTL key hashes and the network id all use it.
type Hash [32]byte

// ParseHash decodes a 64 character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*len(h) {
		return h, fmt.Errorf("hash %q: want %d hex characters, got %d", s, 2*len(h), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("hash %q: %w", s, err)
	}
	return h, nil
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether every byte of the hash is zero.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// BucketID is the content hash of a bucket's uncompressed bytes. It is the
// cache key and the dedup key for downloads.
type BucketID Hash

// ParseBucketID decodes the hex form used by history archives.
func ParseBucketID(s string) (BucketID, error) {
	h, err := ParseHash(strings.ToLower(s))
	if err != nil {
		return BucketID{}, fmt.Errorf("bucket id: %w", err)
	}
	return BucketID(h), nil
}

func (id BucketID) String() string { return Hash(id).String() }

// IsZero reports whether id is the all-zero placeholder archives use for empty levels.
func (id BucketID) IsZero() bool { return Hash(id).IsZero() }

// Shards returns the three leading hex byte pairs used to shard archive paths.
func (id BucketID) Shards() (string, string, string) {
	s := id.String()
	return s[0:2], s[2:4], s[4:6]
}
