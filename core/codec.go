package core

import (
	"fmt"

	"github.com/stellar/go-stellar-sdk/xdr"
)

// DecodeBucketEntry decodes a single record payload. The payload must be
// consumed exactly.
func DecodeBucketEntry(b []byte) (xdr.BucketEntry, error) {
	var e xdr.BucketEntry
	if err := xdr.SafeUnmarshal(b, &e); err != nil {
		return xdr.BucketEntry{}, fmt.Errorf("failed to decode bucket entry: %w", err)
	}
	return e, nil
}

// EncodeBucketEntry returns the payload encoding of e.
func EncodeBucketEntry(e xdr.BucketEntry) ([]byte, error) {
	b, err := e.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", RecordTypeName(e.Type), err)
	}
	return b, nil
}
