// Package bucket decodes and encodes the framed record streams that make up
// a bucket file.
//
// A bucket is a sequence of records. Each record is one or more fragments,
// each prefixed by a 4-byte big-endian record mark: the high bit flags the
// last fragment of the record and the low 31 bits hold the fragment length.
package bucket

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/stellar/go-stellar-sdk/xdr"
)

const (
	lastFragmentFlag = uint32(1) << 31
	fragmentLenMask  = lastFragmentFlag - 1

	// MaxRecordSize bounds a single record (and any one fragment of it).
	MaxRecordSize = 64 * 1024 * 1024 // 64 MB
)

// Reader yields the records of a bucket stream in order. It is forward-only
// and not safe for concurrent use. After the first error every call to Next
// returns that same error.
type Reader struct {
	r      *bufio.Reader
	buf    []byte
	offset int64
	err    error
	count  int
}

// NewReader wraps r. r should already be decompressed.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next decodes the next record. It returns io.EOF once the stream ends
// cleanly on a record boundary.
func (r *Reader) Next() (xdr.BucketEntry, error) {
	if r.err != nil {
		return xdr.BucketEntry{}, r.err
	}
	start := r.offset
	payload, err := r.readRecord()
	if err != nil {
		if err != io.EOF {
			err = &core.FrameDecodeError{Offset: start, Err: err}
		}
		r.err = err
		return xdr.BucketEntry{}, err
	}
	entry, err := core.DecodeBucketEntry(payload)
	if err != nil {
		r.err = &core.FrameDecodeError{Offset: start, Err: err}
		return xdr.BucketEntry{}, r.err
	}
	r.count++
	return entry, nil
}

// Offset is the number of stream bytes consumed so far.
func (r *Reader) Offset() int64 { return r.offset }

// Count is the number of records decoded so far.
func (r *Reader) Count() int { return r.count }

// readRecord assembles one record into the reused buffer. The returned slice
// is only valid until the next call.
func (r *Reader) readRecord() ([]byte, error) {
	r.buf = r.buf[:0]
	for first := true; ; first = false {
		var mark [4]byte
		n, err := io.ReadFull(r.r, mark[:])
		r.offset += int64(n)
		if err != nil {
			if first && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("truncated record mark: %w", io.ErrUnexpectedEOF)
		}

		header := binary.BigEndian.Uint32(mark[:])
		size := int(header & fragmentLenMask)
		if size > MaxRecordSize || len(r.buf)+size > MaxRecordSize {
			return nil, fmt.Errorf("record of %d bytes exceeds limit of %d", len(r.buf)+size, MaxRecordSize)
		}

		start := len(r.buf)
		if cap(r.buf) < start+size {
			grown := make([]byte, start, start+size)
			copy(grown, r.buf)
			r.buf = grown
		}
		r.buf = r.buf[:start+size]
		n, err = io.ReadFull(r.r, r.buf[start:])
		r.offset += int64(n)
		if err != nil {
			return nil, fmt.Errorf("truncated record: want %d bytes, got %d: %w", size, n, io.ErrUnexpectedEOF)
		}

		if header&lastFragmentFlag != 0 {
			return r.buf, nil
		}
	}
}
