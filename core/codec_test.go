package core

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stellar/go-stellar-sdk/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(b byte) Hash {
	var h Hash
	for i := range h {
		h[i] = b
	}
	return h
}

// wire joins hex words into the bytes a network node writes.
func wire(t *testing.T, words ...string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.Join(words, ""))
	require.NoError(t, err)
	return b
}

func repeat(b string) string { return strings.Repeat(b, 32) }

// Payloads as written by a network node, one XDR word per argument.
func metaRecord(t *testing.T) []byte {
	return wire(t,
		"ffffffff", // METAENTRY
		"00000015", // ledgerVersion 21
		"00000000", // ext v0
	)
}

func deadAccountRecord(t *testing.T) []byte {
	return wire(t,
		"00000001", // DEADENTRY
		"00000000", // ACCOUNT
		"00000000", repeat("00"),
	)
}

func accountRecord(t *testing.T) []byte {
	return wire(t,
		"00000000",                             // LIVEENTRY
		"0000000a",                             // lastModifiedLedgerSeq
		"00000000",                             // ACCOUNT
		"00000000", repeat("01"),               // accountID ed25519
		"000000003b9aca00",                     // balance
		"0000000000000005",                     // seqNum
		"00000002",                             // numSubEntries
		"00000000",                             // no inflationDest
		"00000001",                             // flags
		"0000000b", "6578616d706c652e6f726700", // homeDomain "example.org"
		"01000000",                             // thresholds
		"00000000",                             // no signers
		"00000000",                             // account ext v0
		"00000000",                             // entry ext v0
	)
}

func contractInstanceRecord(t *testing.T) []byte {
	return wire(t,
		"00000000",                                 // LIVEENTRY
		"00000014",                                 // lastModifiedLedgerSeq
		"00000006",                                 // CONTRACT_DATA
		"00000000",                                 // ext v0
		"00000001", repeat("09"),                   // contract address
		"00000014",                                 // key SCV_LEDGER_KEY_CONTRACT_INSTANCE
		"00000001",                                 // PERSISTENT
		"00000013",                                 // val SCV_CONTRACT_INSTANCE
		"00000000", repeat("08"),                   // wasm executable
		"00000001",                                 // storage present
		"00000001",                                 // one map entry
		"0000000f", "00000007", "434f554e54455200", // SCV_SYMBOL "COUNTER"
		"00000003", "0000002a",                     // SCV_U32 42
		"00000000",                                 // entry ext v0
	)
}

func contractCodeRecord(t *testing.T) []byte {
	return wire(t,
		"00000000",                     // LIVEENTRY
		"00000014",                     // lastModifiedLedgerSeq
		"00000007",                     // CONTRACT_CODE
		"00000000",                     // ext v0
		repeat("08"),                   // hash
		"00000005", "0061736d01000000", // code
		"00000000",                     // entry ext v0
	)
}

func TestDecodeBucketEntry_NetworkRecords(t *testing.T) {
	t.Run("meta", func(t *testing.T) {
		e, err := DecodeBucketEntry(metaRecord(t))
		require.NoError(t, err)
		require.Equal(t, xdr.BucketEntryTypeMetaentry, e.Type)
		assert.Equal(t, xdr.Uint32(21), e.MetaEntry.LedgerVersion)

		_, ok, err := EntryKey(e)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("dead account", func(t *testing.T) {
		e, err := DecodeBucketEntry(deadAccountRecord(t))
		require.NoError(t, err)
		require.Equal(t, xdr.BucketEntryTypeDeadentry, e.Type)

		k, ok, err := EntryKey(e)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameKey(t, AccountKey(AccountID{}), k)
	})

	t.Run("account", func(t *testing.T) {
		e, err := DecodeBucketEntry(accountRecord(t))
		require.NoError(t, err)
		require.Equal(t, xdr.BucketEntryTypeLiveentry, e.Type)
		assert.Equal(t, xdr.Uint32(10), e.LiveEntry.LastModifiedLedgerSeq)

		acc, ok := e.LiveEntry.Data.GetAccount()
		require.True(t, ok)
		id, ok := AccountIDFromXDR(acc.AccountId)
		require.True(t, ok)
		assert.Equal(t, AccountID(testHash(1)), id)
		assert.Equal(t, xdr.Int64(1_000_000_000), acc.Balance)
		assert.Equal(t, xdr.String32("example.org"), acc.HomeDomain)

		k, ok, err := EntryKey(e)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameKey(t, AccountKey(AccountID(testHash(1))), k)
	})

	t.Run("contract instance with storage", func(t *testing.T) {
		e, err := DecodeBucketEntry(contractInstanceRecord(t))
		require.NoError(t, err)

		h, ok := WasmReference(*e.LiveEntry)
		require.True(t, ok)
		assert.Equal(t, testHash(8), h)

		cd, ok := e.LiveEntry.Data.GetContractData()
		require.True(t, ok)
		addr, ok := AddressFromScAddress(cd.Contract)
		require.True(t, ok)
		assert.Equal(t, ContractAddress(ContractID(testHash(9))), addr)

		inst, ok := cd.Val.GetInstance()
		require.True(t, ok)
		require.NotNil(t, inst.Storage)
		require.Len(t, *inst.Storage, 1)
		entry := (*inst.Storage)[0]
		require.NotNil(t, entry.Key.Sym)
		assert.Equal(t, xdr.ScSymbol("COUNTER"), *entry.Key.Sym)
		require.NotNil(t, entry.Val.U32)
		assert.Equal(t, xdr.Uint32(42), *entry.Val.U32)

		k, ok, err := EntryKey(e)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameKey(t, ContractInstanceKey(ContractID(testHash(9))), k)
	})

	t.Run("contract code", func(t *testing.T) {
		e, err := DecodeBucketEntry(contractCodeRecord(t))
		require.NoError(t, err)

		code, ok := e.LiveEntry.Data.GetContractCode()
		require.True(t, ok)
		assert.Equal(t, xdr.Hash(testHash(8)), code.Hash)
		assert.Equal(t, []byte("\x00asm\x01"), code.Code)

		_, ok = WasmReference(*e.LiveEntry)
		assert.False(t, ok)

		k, ok, err := EntryKey(e)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameKey(t, ContractCodeKey(testHash(8)), k)
	})
}

func TestEncodeBucketEntry_MatchesNetworkBytes(t *testing.T) {
	acc := AccountID(testHash(1)).XDR()
	account := LiveEntry(xdr.LedgerEntry{
		LastModifiedLedgerSeq: 10,
		Data: xdr.LedgerEntryData{
			Type: xdr.LedgerEntryTypeAccount,
			Account: &xdr.AccountEntry{
				AccountId:     acc,
				Balance:       1_000_000_000,
				SeqNum:        5,
				NumSubEntries: 2,
				Flags:         1,
				HomeDomain:    "example.org",
				Thresholds:    xdr.Thresholds{1, 0, 0, 0},
			},
		},
	})

	testCases := []struct {
		name  string
		entry xdr.BucketEntry
		want  []byte
	}{
		{"meta", MetaEntry(21), metaRecord(t)},
		{"dead account", DeadEntry(AccountKey(AccountID{})), deadAccountRecord(t)},
		{"account", account, accountRecord(t)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeBucketEntry(tc.entry)
			require.NoError(t, err)
			assert.Equal(t, hex.EncodeToString(tc.want), hex.EncodeToString(got))

			decoded, err := DecodeBucketEntry(got)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.entry, decoded, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("decoded entry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeBucketEntry_Malformed(t *testing.T) {
	valid := accountRecord(t)

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-3]},
		{"trailing bytes", append(append([]byte{}, valid...), 0, 0, 0, 0)},
		{"unknown record type", wire(t, "00000009")},
		{"unknown entry type", wire(t, "00000000", "00000001", "00000063")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeBucketEntry(tc.data)
			assert.Error(t, err)
		})
	}
}

func TestKeyID(t *testing.T) {
	a, err := KeyID(AccountKey(AccountID(testHash(1))))
	require.NoError(t, err)
	b, err := KeyID(AccountKey(AccountID(testHash(2))))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	instance := ContractInstanceKey(ContractID(testHash(9)))
	persistent, err := KeyID(instance)
	require.NoError(t, err)

	temporary := instance
	cd := *instance.ContractData
	cd.Durability = xdr.ContractDataDurabilityTemporary
	temporary.ContractData = &cd
	other, err := KeyID(temporary)
	require.NoError(t, err)
	assert.NotEqual(t, persistent, other)

}

func TestWasmReference_BuiltInExecutable(t *testing.T) {
	contract := ContractAddress(ContractID(testHash(9))).ScAddress()
	entry := xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.ContractDataEntry{
			Contract:   contract,
			Key:        xdr.ScVal{Type: xdr.ScValTypeScvLedgerKeyContractInstance},
			Durability: xdr.ContractDataDurabilityPersistent,
			Val: xdr.ScVal{Type: xdr.ScValTypeScvContractInstance, Instance: &xdr.ScContractInstance{
				Executable: xdr.ContractExecutable{Type: xdr.ContractExecutableTypeContractExecutableStellarAsset},
			}},
		},
	}}
	_, ok := WasmReference(entry)
	assert.False(t, ok)
}

func assertSameKey(t *testing.T, want, got xdr.LedgerKey) {
	t.Helper()
	w, err := KeyID(want)
	require.NoError(t, err)
	g, err := KeyID(got)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString([]byte(w)), hex.EncodeToString([]byte(g)))
}
