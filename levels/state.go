// Package levels turns a checkpoint's bucket list into the order buckets
// must be read in. Level 0 holds the most recent changes; within a level the
// curr bucket is newer than the snap bucket. Reading L0 curr, L0 snap,
// L1 curr, L1 snap, ... visits every key's newest record first.
package levels

import (
	"fmt"

	"github.com/INLOpen/ledgersnap/core"
)

// Kind says which half of a level a bucket occupies.
type Kind uint8

const (
	Curr Kind = iota
	Snap
)

func (k Kind) String() string {
	if k == Curr {
		return "curr"
	}
	return "snap"
}

// LevelState is one level of the bucket list.
type LevelState struct {
	levelNumber int
	curr        core.BucketID
	snap        core.BucketID
}

// Number returns the level number, 0 being the newest.
func (ls LevelState) Number() int { return ls.levelNumber }

// Curr returns the id of the level's curr bucket.
func (ls LevelState) Curr() core.BucketID { return ls.curr }

// Snap returns the id of the level's snap bucket.
func (ls LevelState) Snap() core.BucketID { return ls.snap }

// BucketRef identifies one non-empty bucket slot together with its read
// priority. Lower Priority shadows higher.
type BucketRef struct {
	Level    int
	Kind     Kind
	ID       core.BucketID
	Priority int
}

func (r BucketRef) String() string {
	return fmt.Sprintf("L%d %s %s", r.Level, r.Kind, r.ID)
}

// BucketList is the decoded bucket list of a checkpoint.
type BucketList struct {
	levels []LevelState
}

// FromCheckpoint parses every level of cp.
func FromCheckpoint(cp *core.Checkpoint) (*BucketList, error) {
	bl := &BucketList{levels: make([]LevelState, 0, len(cp.CurrentBuckets))}
	for i, level := range cp.CurrentBuckets {
		curr, err := core.ParseBucketID(level.Curr)
		if err != nil {
			return nil, fmt.Errorf("%w: level %d curr: %v", core.ErrMalformedCheckpoint, i, err)
		}
		snap, err := core.ParseBucketID(level.Snap)
		if err != nil {
			return nil, fmt.Errorf("%w: level %d snap: %v", core.ErrMalformedCheckpoint, i, err)
		}
		bl.levels = append(bl.levels, LevelState{levelNumber: i, curr: curr, snap: snap})
	}
	return bl, nil
}

// Levels returns the levels, newest first.
func (bl *BucketList) Levels() []LevelState {
	return bl.levels
}

// ScanOrder lists the non-empty buckets in shadowing priority order. The
// zero id marks an empty slot and is skipped. A bucket id appearing in
// several slots is listed once per slot.
func (bl *BucketList) ScanOrder() []BucketRef {
	refs := make([]BucketRef, 0, 2*len(bl.levels))
	for _, ls := range bl.levels {
		for _, slot := range [...]struct {
			kind Kind
			id   core.BucketID
		}{{Curr, ls.curr}, {Snap, ls.snap}} {
			if slot.id.IsZero() {
				continue
			}
			refs = append(refs, BucketRef{Level: ls.levelNumber, Kind: slot.kind, ID: slot.id, Priority: len(refs)})
		}
	}
	return refs
}

// UniqueIDs returns each non-empty bucket id once, in scan order.
func (bl *BucketList) UniqueIDs() []core.BucketID {
	seen := make(map[core.BucketID]struct{})
	var ids []core.BucketID
	for _, ref := range bl.ScanOrder() {
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		ids = append(ids, ref.ID)
	}
	return ids
}
