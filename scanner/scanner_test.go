package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/INLOpen/ledgersnap/bucket"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/internal/testutil"
	"github.com/INLOpen/ledgersnap/levels"
	"github.com/stellar/go-stellar-sdk/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBuckets serves encoded buckets from memory and records open order.
type memBuckets struct {
	data   map[core.BucketID][]byte
	opened []core.BucketID
}

func (m *memBuckets) Open(_ context.Context, id core.BucketID) (io.ReadCloser, error) {
	m.opened = append(m.opened, id)
	b, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: no bucket %s", core.ErrFetchFailed, id)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// layout builds buckets in priority order and returns the opener and refs.
func layout(t *testing.T, buckets ...[]xdr.BucketEntry) (*memBuckets, []levels.BucketRef) {
	t.Helper()
	m := &memBuckets{data: make(map[core.BucketID][]byte)}
	var refs []levels.BucketRef
	for i, entries := range buckets {
		raw, err := bucket.Encode(entries...)
		require.NoError(t, err)
		var id core.BucketID
		id[0], id[31] = byte(i+1), 0xee
		m.data[id] = raw
		kind := levels.Curr
		if i%2 == 1 {
			kind = levels.Snap
		}
		refs = append(refs, levels.BucketRef{Level: i / 2, Kind: kind, ID: id, Priority: i})
	}
	return m, refs
}

func account(b byte) core.AccountID {
	var id core.AccountID
	id[0] = b
	return id
}

func contract(b byte) core.Address {
	var id core.ContractID
	id[0] = b
	return core.ContractAddress(id)
}

func hash(b byte) core.Hash {
	var h core.Hash
	h[0] = b
	return h
}

func balances(entries []Retained) map[core.AccountID]int64 {
	out := make(map[core.AccountID]int64)
	for _, r := range entries {
		if id, balance, ok := testutil.Balance(r.Entry); ok {
			out[id] = balance
		}
	}
	return out
}

func accountFilter(ids ...core.AccountID) *Filter {
	f := NewFilter()
	for _, id := range ids {
		f.AddAccount(id)
	}
	return f
}

func TestScan_HigherPriorityWins(t *testing.T) {
	a := account(1)
	testCases := []struct {
		name    string
		buckets [][]xdr.BucketEntry
		want    map[core.AccountID]int64
	}{
		{
			name: "live over live in a later level",
			buckets: [][]xdr.BucketEntry{
				{core.LiveEntry(testutil.AccountEntry(a, 2))},
				{},
				{core.LiveEntry(testutil.AccountEntry(a, 1))},
			},
			want: map[core.AccountID]int64{a: 2},
		},
		{
			name: "dead in curr hides live in snap",
			buckets: [][]xdr.BucketEntry{
				{core.DeadEntry(core.AccountKey(a))},
				{core.LiveEntry(testutil.AccountEntry(a, 1))},
			},
			want: map[core.AccountID]int64{},
		},
		{
			name: "init over dead",
			buckets: [][]xdr.BucketEntry{
				{core.InitEntry(testutil.AccountEntry(a, 3))},
				{core.DeadEntry(core.AccountKey(a))},
			},
			want: map[core.AccountID]int64{a: 3},
		},
		{
			name: "live over init",
			buckets: [][]xdr.BucketEntry{
				{core.LiveEntry(testutil.AccountEntry(a, 4))},
				{core.InitEntry(testutil.AccountEntry(a, 5))},
			},
			want: map[core.AccountID]int64{a: 4},
		},
		{
			name: "dead in the middle hides everything below",
			buckets: [][]xdr.BucketEntry{
				{},
				{core.DeadEntry(core.AccountKey(a))},
				{core.LiveEntry(testutil.AccountEntry(a, 1))},
				{core.InitEntry(testutil.AccountEntry(a, 0))},
			},
			want: map[core.AccountID]int64{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opener, refs := layout(t, tc.buckets...)
			res, err := New(opener, Options{}).Scan(context.Background(), refs, accountFilter(a))
			require.NoError(t, err)
			assert.Equal(t, tc.want, balances(res.Entries))
		})
	}
}

func TestScan_NoDuplicateKeys(t *testing.T) {
	a, b := account(1), account(2)
	opener, refs := layout(t,
		[]xdr.BucketEntry{core.LiveEntry(testutil.AccountEntry(a, 10)), core.LiveEntry(testutil.AccountEntry(b, 20))},
		[]xdr.BucketEntry{core.LiveEntry(testutil.AccountEntry(a, 11)), core.InitEntry(testutil.AccountEntry(b, 21))},
		[]xdr.BucketEntry{core.InitEntry(testutil.AccountEntry(a, 12)), core.LiveEntry(testutil.AccountEntry(b, 22))},
	)

	res, err := New(opener, Options{}).Scan(context.Background(), refs, accountFilter(a, b))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, r := range res.Entries {
		id, err := core.KeyID(r.Key)
		require.NoError(t, err)
		assert.False(t, seen[id], "key retained twice")
		seen[id] = true
	}
	assert.Equal(t, map[core.AccountID]int64{a: 10, b: 20}, balances(res.Entries))
	assert.Equal(t, 6, res.Stats.Records)
	assert.Equal(t, 4, res.Stats.Shadowed)
	assert.Equal(t, 2, res.Stats.Retained)
}

func TestScan_FilterKinds(t *testing.T) {
	a, other := account(1), account(2)
	c := contract(9)

	opener, refs := layout(t, []xdr.BucketEntry{
		core.LiveEntry(testutil.AccountEntry(a, 1)),
		core.LiveEntry(testutil.AccountEntry(other, 1)),
		core.LiveEntry(testutil.TrustLineEntry(a, "USD", other, 5)),
		core.LiveEntry(testutil.OfferEntry(a, 1)),
		core.LiveEntry(testutil.DataEntry(a, "n")),
		core.LiveEntry(testutil.ContractDataEntry(c, "k", 1)),
		core.LiveEntry(testutil.ContractDataEntry(contract(8), "k", 1)),
		core.LiveEntry(testutil.CodeEntry(hash(7), "seven")),
		core.LiveEntry(testutil.CodeEntry(hash(6), "six")),
		core.LiveEntry(testutil.TTLEntry(hash(7), 10)),
		core.LiveEntry(testutil.ConfigSettingEntry(65536)),
	})

	f := NewFilter()
	f.AddAccount(a)
	f.AddContract(c)
	f.AddCodeHash(hash(7))

	res, err := New(opener, Options{}).Scan(context.Background(), refs, f)
	require.NoError(t, err)

	var kinds []xdr.LedgerEntryType
	for _, r := range res.Entries {
		kinds = append(kinds, r.Key.Type)
	}
	assert.Equal(t, []xdr.LedgerEntryType{
		xdr.LedgerEntryTypeAccount,
		xdr.LedgerEntryTypeTrustline,
		xdr.LedgerEntryTypeContractData,
		xdr.LedgerEntryTypeContractCode,
	}, kinds)
}

func TestScan_EmptyFilterRetainsNothing(t *testing.T) {
	opener, refs := layout(t, []xdr.BucketEntry{core.LiveEntry(testutil.AccountEntry(account(1), 1))})
	res, err := New(opener, Options{}).Scan(context.Background(), refs, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, 1, res.Stats.Records)
}

func TestScan_ProtocolVersion(t *testing.T) {
	opener, refs := layout(t,
		[]xdr.BucketEntry{core.MetaEntry(22), core.LiveEntry(testutil.AccountEntry(account(1), 1))},
		[]xdr.BucketEntry{core.MetaEntry(21)},
	)
	res, err := New(opener, Options{}).Scan(context.Background(), refs, NewFilter())
	require.NoError(t, err)
	// Every metadata record updates the version, so the last bucket read wins.
	assert.Equal(t, uint32(21), res.ProtocolVersion)
}

func TestScan_DiscoversCode(t *testing.T) {
	c1, c2, c3 := contract(1), contract(2), contract(3)
	opener, refs := layout(t, []xdr.BucketEntry{
		core.LiveEntry(testutil.InstanceEntry(c1, hash(0xa))),
		core.LiveEntry(testutil.InstanceEntry(c2, hash(0xb))),
		core.LiveEntry(testutil.InstanceEntry(c3, hash(0xc))),
	})

	f := NewFilter()
	f.AddContract(c1)
	f.AddContract(c2)
	f.AddCodeHash(hash(0xb))

	var events []core.Hash
	s := New(opener, Options{OnCodeDiscovered: func(_ context.Context, _ core.Address, h core.Hash) {
		events = append(events, h)
	}})
	res, err := s.Scan(context.Background(), refs, f)
	require.NoError(t, err)

	assert.Equal(t, NewHashSet(hash(0xa)), res.Discovered, "explicitly requested code and unretained instances are not discovered")
	assert.Equal(t, []core.Hash{hash(0xa)}, events)
}

func TestScan_Errors(t *testing.T) {
	t.Run("malformed bucket", func(t *testing.T) {
		opener, refs := layout(t, []xdr.BucketEntry{core.LiveEntry(testutil.AccountEntry(account(1), 1))})
		raw := opener.data[refs[0].ID]
		opener.data[refs[0].ID] = raw[:len(raw)-2]

		_, err := New(opener, Options{}).Scan(context.Background(), refs, accountFilter(account(1)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrFrameDecode))
	})

	t.Run("open failure", func(t *testing.T) {
		opener, refs := layout(t, []xdr.BucketEntry{})
		delete(opener.data, refs[0].ID)

		_, err := New(opener, Options{}).Scan(context.Background(), refs, NewFilter())
		assert.True(t, errors.Is(err, core.ErrFetchFailed))
	})

	t.Run("cancelled", func(t *testing.T) {
		opener, refs := layout(t, []xdr.BucketEntry{core.MetaEntry(1)})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := New(opener, Options{}).Scan(ctx, refs, NewFilter())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, opener.opened)
	})

	t.Run("bucket start hook aborts", func(t *testing.T) {
		opener, refs := layout(t, []xdr.BucketEntry{core.MetaEntry(1)}, []xdr.BucketEntry{core.MetaEntry(1)})
		stop := errors.New("stop")
		calls := 0
		s := New(opener, Options{OnBucketStart: func(context.Context, levels.BucketRef) error {
			calls++
			if calls == 2 {
				return stop
			}
			return nil
		}})
		_, err := s.Scan(context.Background(), refs, NewFilter())
		assert.ErrorIs(t, err, stop)
		assert.Len(t, opener.opened, 1)
	})
}
