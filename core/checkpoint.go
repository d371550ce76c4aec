package core

import (
	"fmt"
	"math"
)

// DefaultCheckpointFrequency is the number of ledgers between archive
// checkpoints on public networks. Local networks often use 8; there is no
// way to detect the cadence, so it is only used to suggest ledgers.
const DefaultCheckpointFrequency uint32 = 64

// Checkpoint is the history archive state published for one checkpoint
// ledger. It lists, level by level, the buckets that make up the ledger
// state at CurrentLedger.
type Checkpoint struct {
	Version           int           `json:"version" msgpack:"version"`
	Server            string        `json:"server,omitempty" msgpack:"server"`
	CurrentLedger     uint32        `json:"currentLedger" msgpack:"current_ledger"`
	NetworkPassphrase string        `json:"networkPassphrase" msgpack:"network_passphrase"`
	CurrentBuckets    []BucketLevel `json:"currentBuckets" msgpack:"current_buckets"`
}

// BucketLevel is one level of the bucket list. Curr is the more recent half.
type BucketLevel struct {
	Curr string `json:"curr" msgpack:"curr"`
	Snap string `json:"snap" msgpack:"snap"`
}

// Validate checks that the state names a ledger and that every bucket id parses.
func (c *Checkpoint) Validate() error {
	if c.CurrentLedger == 0 {
		return fmt.Errorf("%w: missing currentLedger", ErrMalformedCheckpoint)
	}
	for i, level := range c.CurrentBuckets {
		if _, err := ParseBucketID(level.Curr); err != nil {
			return fmt.Errorf("%w: level %d curr: %v", ErrMalformedCheckpoint, i, err)
		}
		if _, err := ParseBucketID(level.Snap); err != nil {
			return fmt.Errorf("%w: level %d snap: %v", ErrMalformedCheckpoint, i, err)
		}
	}
	return nil
}

// IsCheckpointLedger reports whether ledger closes a checkpoint of the given frequency.
func IsCheckpointLedger(ledger, frequency uint32) bool {
	return frequency == 0 || (uint64(ledger)+1)%uint64(frequency) == 0
}

// NearestCheckpoints returns the closest checkpoint ledgers at or below and
// above ledger. next is capped at math.MaxUint32.
func NearestCheckpoints(ledger, frequency uint32) (prev, next uint32) {
	l, f := uint64(ledger), uint64(frequency)
	offset := (l + 1) % f
	if offset == 0 {
		return ledger, ledger
	}
	n := l + (f - offset)
	if n > math.MaxUint32 {
		n = math.MaxUint32
	}
	if l+1 < f {
		// No checkpoint closes below the first one.
		return uint32(n), uint32(n)
	}
	return uint32(l - offset), uint32(n)
}
