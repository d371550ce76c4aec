package cache

import (
	"testing"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointIndex(t *testing.T) {
	dir := t.TempDir()
	index, err := OpenCheckpointIndex(dir)
	require.NoError(t, err)

	testnet := index.ForArchive("https://testnet.example/archive")
	local := index.ForArchive("http://localhost:8000/archive")

	cp, err := testnet.LoadCheckpoint(63)
	require.NoError(t, err)
	assert.Nil(t, cp)

	want := &core.Checkpoint{
		Version:           1,
		CurrentLedger:     63,
		NetworkPassphrase: core.PassphraseTestnet,
		CurrentBuckets:    []core.BucketLevel{{Curr: "aa", Snap: "bb"}},
	}
	require.NoError(t, testnet.StoreCheckpoint(want))

	got, err := testnet.LoadCheckpoint(63)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = local.LoadCheckpoint(63)
	require.NoError(t, err)
	assert.Nil(t, got, "entries are scoped per archive")

	// Survives reopening.
	require.NoError(t, index.Close())
	index, err = OpenCheckpointIndex(dir)
	require.NoError(t, err)
	defer index.Close()

	got, err = index.ForArchive("https://testnet.example/archive").LoadCheckpoint(63)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
