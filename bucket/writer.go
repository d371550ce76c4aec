package bucket

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// Writer produces a framed record stream readable by Reader. Each record is
// written as a single fragment.
type Writer struct {
	w     *bufio.Writer
	count int
}

// NewWriter wraps w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write encodes and frames one record.
func (w *Writer) Write(e xdr.BucketEntry) error {
	payload, err := core.EncodeBucketEntry(e)
	if err != nil {
		return err
	}
	return w.WriteRaw(payload)
}

// WriteRaw frames an already encoded payload.
func (w *Writer) WriteRaw(payload []byte) error {
	if len(payload) > MaxRecordSize {
		return fmt.Errorf("record of %d bytes exceeds limit of %d", len(payload), MaxRecordSize)
	}
	var mark [4]byte
	binary.BigEndian.PutUint32(mark[:], lastFragmentFlag|uint32(len(payload)))
	if _, err := w.w.Write(mark[:]); err != nil {
		return fmt.Errorf("failed to write record mark: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write record data: %w", err)
	}
	w.count++
	return nil
}

// Count is the number of records written.
func (w *Writer) Count() int { return w.count }

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }

// Encode frames entries into a single byte slice.
func Encode(entries ...xdr.BucketEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
