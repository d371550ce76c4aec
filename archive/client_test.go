package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/INLOpen/ledgersnap/bucket"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/internal/testutil"
	"github.com/stellar/go-stellar-sdk/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "history/00/00/00/history-0000003f.json", CheckpointPath(63))
	assert.Equal(t, "history/01/23/45/history-0123457f.json", CheckpointPath(0x0123457f))

	id, err := core.ParseBucketID("abcdef" + strings.Repeat("0", 58))
	require.NoError(t, err)
	assert.Equal(t, "bucket/ab/cd/ef/bucket-"+id.String()+".xdr.gz", BucketPath(id, "gz"))
	assert.Equal(t, testutil.BucketPath(id, "gz"), BucketPath(id, "gz"))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("  ", Options{})
	assert.True(t, errors.Is(err, core.ErrArchiveURLNotConfigured))
}

func TestGetCheckpoint(t *testing.T) {
	fake := testutil.NewFakeArchive(t)
	var zero core.BucketID
	b := fake.AddBucket(t, core.MetaEntry(21))
	want := fake.SetCheckpoint(t, 127, core.PassphraseTestnet, [2]core.BucketID{b, zero})

	client, err := New(fake.URL()+"/", Options{})
	require.NoError(t, err)

	t.Run("latest", func(t *testing.T) {
		cp, err := client.GetCheckpoint(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, want, cp)
		assert.Equal(t, 1, fake.RequestsFor(".well-known/stellar-history.json"))
	})

	t.Run("specific ledger", func(t *testing.T) {
		cp, err := client.GetCheckpoint(context.Background(), 127)
		require.NoError(t, err)
		assert.Equal(t, uint32(127), cp.CurrentLedger)
		assert.Equal(t, 1, fake.RequestsFor(CheckpointPath(127)))
	})

	t.Run("missing ledger is a network error", func(t *testing.T) {
		_, err := client.GetCheckpoint(context.Background(), 191)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrArchiveUnavailable))
		assert.Equal(t, http.StatusNotFound, core.StatusCode(err))
	})
}

func TestGetCheckpoint_UnalignedLedgerWarns(t *testing.T) {
	fake := testutil.NewFakeArchive(t)
	fake.SetCheckpoint(t, 100, core.PassphraseTestnet)

	var logs bytes.Buffer
	client, err := New(fake.URL(), Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	require.NoError(t, err)

	cp, err := client.GetCheckpoint(context.Background(), 100)
	require.NoError(t, err, "an unaligned ledger is still requested")
	assert.Equal(t, uint32(100), cp.CurrentLedger)
	assert.Contains(t, logs.String(), "not a checkpoint ledger")
	assert.Contains(t, logs.String(), "previous_checkpoint=63")
	assert.Contains(t, logs.String(), "next_checkpoint=127")
}

func TestGetCheckpoint_Malformed(t *testing.T) {
	fake := testutil.NewFakeArchive(t)
	fake.Put(".well-known/stellar-history.json", []byte("{not json"))

	client, err := New(fake.URL(), Options{})
	require.NoError(t, err)

	_, err = client.GetCheckpoint(context.Background(), 0)
	assert.True(t, errors.Is(err, core.ErrMalformedCheckpoint))

	fake.Put(".well-known/stellar-history.json", []byte(`{"currentLedger": 63, "currentBuckets": [{"curr": "zz", "snap": ""}]}`))
	_, err = client.GetCheckpoint(context.Background(), 0)
	assert.True(t, errors.Is(err, core.ErrMalformedCheckpoint))
}

func TestGetCheckpoint_Retry(t *testing.T) {
	fake := testutil.NewFakeArchive(t)
	fake.SetCheckpoint(t, 63, core.PassphraseTestnet)

	t.Run("5xx is retried", func(t *testing.T) {
		fake.FailNext(CheckpointPath(63), http.StatusServiceUnavailable, http.StatusBadGateway)
		client, err := New(fake.URL(), Options{MaxAttempts: 3, RetryInitialInterval: 1})
		require.NoError(t, err)

		cp, err := client.GetCheckpoint(context.Background(), 63)
		require.NoError(t, err)
		assert.Equal(t, uint32(63), cp.CurrentLedger)
		assert.Equal(t, 3, fake.RequestsFor(CheckpointPath(63)))
	})

	t.Run("single attempt by default", func(t *testing.T) {
		fake.FailNext(".well-known/stellar-history.json", http.StatusInternalServerError)
		client, err := New(fake.URL(), Options{})
		require.NoError(t, err)

		_, err = client.GetCheckpoint(context.Background(), 0)
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, core.StatusCode(err))
	})

	t.Run("4xx is not retried", func(t *testing.T) {
		client, err := New(fake.URL(), Options{MaxAttempts: 5, RetryInitialInterval: 1})
		require.NoError(t, err)

		_, err = client.GetCheckpoint(context.Background(), 255)
		require.Error(t, err)
		assert.Equal(t, 1, fake.RequestsFor(CheckpointPath(255)))
	})
}

type memoryStore struct {
	checkpoints map[uint32]*core.Checkpoint
}

func (m *memoryStore) LoadCheckpoint(ledger uint32) (*core.Checkpoint, error) {
	return m.checkpoints[ledger], nil
}

func (m *memoryStore) StoreCheckpoint(cp *core.Checkpoint) error {
	m.checkpoints[cp.CurrentLedger] = cp
	return nil
}

func TestGetCheckpoint_Store(t *testing.T) {
	fake := testutil.NewFakeArchive(t)
	fake.SetCheckpoint(t, 63, core.PassphraseTestnet)

	store := &memoryStore{checkpoints: map[uint32]*core.Checkpoint{}}
	client, err := New(fake.URL(), Options{Store: store})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		cp, err := client.GetCheckpoint(context.Background(), 63)
		require.NoError(t, err)
		assert.Equal(t, uint32(63), cp.CurrentLedger)
	}
	assert.Equal(t, 1, fake.RequestsFor(CheckpointPath(63)))

	// Latest is never served from the store.
	_, err = client.GetCheckpoint(context.Background(), 0)
	require.NoError(t, err)
	_, err = client.GetCheckpoint(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.RequestsFor(".well-known/stellar-history.json"))
	assert.Len(t, store.checkpoints, 1)
}

func TestFetchBucket(t *testing.T) {
	fake := testutil.NewFakeArchive(t)
	entries := []xdr.BucketEntry{core.MetaEntry(21), core.DeadEntry(core.AccountKey(core.AccountID{}))}
	id := fake.AddBucket(t, entries...)

	client, err := New(fake.URL(), Options{})
	require.NoError(t, err)

	body, err := client.FetchBucket(context.Background(), id)
	require.NoError(t, err)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	want, err := bucket.Encode(entries...)
	require.NoError(t, err)
	assert.Equal(t, want, raw)

	var missing core.BucketID
	missing[0] = 1
	_, err = client.FetchBucket(context.Background(), missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFetchFailed))
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))
}
