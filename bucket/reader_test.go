package bucket

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/stellar/go-stellar-sdk/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountEntry(id core.AccountID, balance int64, homeDomain string) xdr.LedgerEntry {
	return xdr.LedgerEntry{
		LastModifiedLedgerSeq: 3,
		Data: xdr.LedgerEntryData{
			Type:    xdr.LedgerEntryTypeAccount,
			Account: &xdr.AccountEntry{AccountId: id.XDR(), Balance: xdr.Int64(balance), HomeDomain: xdr.String32(homeDomain)},
		},
	}
}

func sampleEntries() []xdr.BucketEntry {
	var code core.Hash
	code[0] = 0xc0
	return []xdr.BucketEntry{
		core.MetaEntry(20),
		core.LiveEntry(accountEntry(core.AccountID{1}, 10, "")),
		core.DeadEntry(core.ContractCodeKey(code)),
		core.InitEntry(xdr.LedgerEntry{Data: xdr.LedgerEntryData{
			Type:         xdr.LedgerEntryTypeContractCode,
			ContractCode: &xdr.ContractCodeEntry{Hash: xdr.Hash(code), Code: []byte("wasm")},
		}}),
	}
}

func keyID(t *testing.T, e xdr.BucketEntry) string {
	t.Helper()
	k, ok, err := core.EntryKey(e)
	require.NoError(t, err)
	if !ok {
		return ""
	}
	id, err := core.KeyID(k)
	require.NoError(t, err)
	return id
}

func readAll(t *testing.T, r *Reader) []xdr.BucketEntry {
	t.Helper()
	var out []xdr.BucketEntry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestReader_RoundTrip(t *testing.T) {
	want := sampleEntries()
	data, err := Encode(want...)
	require.NoError(t, err)

	r := NewReader(bytes.NewReader(data))
	got := readAll(t, r)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.Equal(t, keyID(t, want[i]), keyID(t, got[i]))
	}
	assert.Equal(t, int64(len(data)), r.Offset())
	assert.Equal(t, len(want), r.Count())

	// EOF is sticky.
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_EmptyStream(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_MultiFragmentRecord(t *testing.T) {
	payload, err := core.EncodeBucketEntry(core.LiveEntry(accountEntry(core.AccountID{7}, 99, "split.example.org")))
	require.NoError(t, err)

	var stream bytes.Buffer
	first, rest := payload[:8], payload[8:]
	_ = binary.Write(&stream, binary.BigEndian, uint32(len(first)))
	stream.Write(first)
	_ = binary.Write(&stream, binary.BigEndian, lastFragmentFlag|uint32(len(rest)))
	stream.Write(rest)

	r := NewReader(&stream)
	e, err := r.Next()
	require.NoError(t, err)
	acc, ok := e.LiveEntry.Data.GetAccount()
	require.True(t, ok)
	assert.Equal(t, xdr.Int64(99), acc.Balance)
	assert.Equal(t, xdr.String32("split.example.org"), acc.HomeDomain)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_Malformed(t *testing.T) {
	valid, err := Encode(sampleEntries()[1])
	require.NoError(t, err)

	oversize := make([]byte, 4)
	binary.BigEndian.PutUint32(oversize, lastFragmentFlag|uint32(MaxRecordSize+1))

	garbage := []byte{0x80, 0, 0, 4, 0, 0, 0, 42}

	testCases := []struct {
		name string
		data []byte
	}{
		{"truncated mark", valid[:2]},
		{"truncated payload", valid[:len(valid)-4]},
		{"oversize fragment", oversize},
		{"undecodable payload", garbage},
		{"valid then partial mark", append(append([]byte{}, valid...), 0x80, 0)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(tc.data))
			var err error
			for err == nil {
				_, err = r.Next()
			}
			require.NotEqual(t, io.EOF, err)
			assert.True(t, errors.Is(err, core.ErrFrameDecode))

			var frameErr *core.FrameDecodeError
			require.True(t, errors.As(err, &frameErr))

			// The reader stays poisoned.
			_, again := r.Next()
			assert.Equal(t, err, again)
		})
	}
}

func TestWriter_RejectsInvalidEntry(t *testing.T) {
	w := NewWriter(io.Discard)
	err := w.Write(xdr.BucketEntry{Type: xdr.BucketEntryType(7)})
	assert.Error(t, err)
	assert.Zero(t, w.Count())
}

// A bucket as published by a network node: a meta record, a dead account
// key and a live account, each framed by a single record mark.
func TestReader_NetworkFrames(t *testing.T) {
	frames := []string{
		"8000000c" + "ffffffff" + "00000015" + "00000000",
		"8000002c" + "00000001" + "00000000" + "00000000" + strings.Repeat("00", 32),
		"8000006c" + "00000000" + "0000000a" + "00000000" +
			"00000000" + strings.Repeat("01", 32) +
			"000000003b9aca00" + "0000000000000005" + "00000002" + "00000000" + "00000001" +
			"0000000b" + "6578616d706c652e6f726700" + "01000000" + "00000000" + "00000000" +
			"00000000",
	}
	data, err := hex.DecodeString(strings.Join(frames, ""))
	require.NoError(t, err)

	r := NewReader(bytes.NewReader(data))
	got := readAll(t, r)
	require.Len(t, got, 3)

	require.Equal(t, xdr.BucketEntryTypeMetaentry, got[0].Type)
	assert.Equal(t, xdr.Uint32(21), got[0].MetaEntry.LedgerVersion)

	require.Equal(t, xdr.BucketEntryTypeDeadentry, got[1].Type)
	want, err := core.KeyID(core.AccountKey(core.AccountID{}))
	require.NoError(t, err)
	assert.Equal(t, want, keyID(t, got[1]))

	require.Equal(t, xdr.BucketEntryTypeLiveentry, got[2].Type)
	acc, ok := got[2].LiveEntry.Data.GetAccount()
	require.True(t, ok)
	assert.Equal(t, xdr.Int64(1_000_000_000), acc.Balance)
	assert.Equal(t, xdr.String32("example.org"), acc.HomeDomain)

	// Writing the decoded records reproduces the published bytes.
	again, err := Encode(got...)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(data), hex.EncodeToString(again))
}
