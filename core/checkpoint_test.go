package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zeroBucket = "0000000000000000000000000000000000000000000000000000000000000000"

func TestCheckpoint_DecodeArchiveState(t *testing.T) {
	doc := `{
		"version": 1,
		"server": "stellar-core 21.0.0",
		"currentLedger": 511,
		"networkPassphrase": "Test SDF Network ; September 2015",
		"currentBuckets": [
			{"curr": "` + strings.Repeat("ab", 32) + `", "snap": "` + zeroBucket + `", "next": {"state": 0}},
			{"curr": "` + zeroBucket + `", "snap": "` + strings.Repeat("CD", 32) + `"}
		]
	}`

	var cp Checkpoint
	require.NoError(t, json.Unmarshal([]byte(doc), &cp))
	require.NoError(t, cp.Validate())

	assert.Equal(t, uint32(511), cp.CurrentLedger)
	assert.Equal(t, PassphraseTestnet, cp.NetworkPassphrase)
	require.Len(t, cp.CurrentBuckets, 2)
	assert.Equal(t, zeroBucket, cp.CurrentBuckets[1].Curr)
}

func TestCheckpoint_Validate(t *testing.T) {
	err := (&Checkpoint{}).Validate()
	assert.True(t, errors.Is(err, ErrMalformedCheckpoint))

	cp := &Checkpoint{CurrentLedger: 63, CurrentBuckets: []BucketLevel{{Curr: "xyz", Snap: zeroBucket}}}
	assert.True(t, errors.Is(cp.Validate(), ErrMalformedCheckpoint))
}

func TestCheckpointAlignment(t *testing.T) {
	assert.True(t, IsCheckpointLedger(63, 64))
	assert.True(t, IsCheckpointLedger(127, 64))
	assert.False(t, IsCheckpointLedger(100, 64))

	prev, next := NearestCheckpoints(100, 64)
	assert.Equal(t, uint32(63), prev)
	assert.Equal(t, uint32(127), next)

	prev, next = NearestCheckpoints(127, 64)
	assert.Equal(t, uint32(127), prev)
	assert.Equal(t, uint32(127), next)

	prev, next = NearestCheckpoints(10, 64)
	assert.Equal(t, uint32(63), prev)
	assert.Equal(t, uint32(63), next)
}

func TestCheckpointAlignment_LastLedger(t *testing.T) {
	// 2^32 is a multiple of 64 but not of 100.
	assert.True(t, IsCheckpointLedger(math.MaxUint32, 64))
	assert.False(t, IsCheckpointLedger(math.MaxUint32, 100))

	prev, next := NearestCheckpoints(math.MaxUint32, 100)
	assert.Equal(t, uint32(4294967199), prev)
	assert.Equal(t, uint32(math.MaxUint32), next)
}

func TestBucketID(t *testing.T) {
	id, err := ParseBucketID(strings.Repeat("AB", 32))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 32), id.String())

	xx, yy, zz := id.Shards()
	assert.Equal(t, []string{"ab", "ab", "ab"}, []string{xx, yy, zz})

	zero, err := ParseBucketID(zeroBucket)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseBucketID("abc")
	assert.Error(t, err)
}
