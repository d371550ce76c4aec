package cache

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// CheckpointIndexFileName is the bbolt database kept next to the buckets.
const CheckpointIndexFileName = "checkpoints.db"

var checkpointsBucket = []byte("checkpoints")

// CheckpointIndex remembers checkpoints fetched for specific ledgers, one
// nested bbolt bucket per archive URL. A checkpoint for a given ledger never
// changes, so entries are never invalidated.
type CheckpointIndex struct {
	db *bbolt.DB
}

type indexedCheckpoint struct {
	Checkpoint *core.Checkpoint `msgpack:"cp"`
	FetchedAt  time.Time        `msgpack:"t"`
}

// OpenCheckpointIndex opens or creates the index in dir.
func OpenCheckpointIndex(dir string) (*CheckpointIndex, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 5 * time.Second

	db, err := bbolt.Open(filepath.Join(dir, CheckpointIndexFileName), 0o644, bopt)
	if err != nil {
		return nil, fmt.Errorf("%w: opening checkpoint index: %v", core.ErrCacheIO, err)
	}
	return &CheckpointIndex{db: db}, nil
}

// Close releases the database.
func (x *CheckpointIndex) Close() error {
	return x.db.Close()
}

// ForArchive returns a view of the index scoped to one archive. It
// satisfies archive.CheckpointStore.
func (x *CheckpointIndex) ForArchive(archiveURL string) *ArchiveCheckpoints {
	return &ArchiveCheckpoints{db: x.db, archive: []byte(archiveURL)}
}

// ArchiveCheckpoints is the part of a CheckpointIndex belonging to one archive.
type ArchiveCheckpoints struct {
	db      *bbolt.DB
	archive []byte
}

func ledgerKey(ledger uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, ledger)
}

// LoadCheckpoint returns the recorded checkpoint for ledger, or nil.
func (a *ArchiveCheckpoints) LoadCheckpoint(ledger uint32) (*core.Checkpoint, error) {
	var rec indexedCheckpoint
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(checkpointsBucket)
		if root == nil {
			return nil
		}
		b := root.Bucket(a.archive)
		if b == nil {
			return nil
		}
		v := b.Get(ledgerKey(ledger))
		if v == nil {
			return nil
		}
		found = true
		// msgpack copies out of v, which is only valid inside the transaction.
		return msgpack.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading checkpoint %d: %v", core.ErrCacheIO, ledger, err)
	}
	if !found || rec.Checkpoint == nil {
		return nil, nil
	}
	return rec.Checkpoint, nil
}

// StoreCheckpoint records cp under its ledger.
func (a *ArchiveCheckpoints) StoreCheckpoint(cp *core.Checkpoint) error {
	v, err := msgpack.Marshal(&indexedCheckpoint{Checkpoint: cp, FetchedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding checkpoint %d: %w", cp.CurrentLedger, err)
	}
	err = a.db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(checkpointsBucket)
		if err != nil {
			return err
		}
		b, err := root.CreateBucketIfNotExists(a.archive)
		if err != nil {
			return err
		}
		return b.Put(ledgerKey(cp.CurrentLedger), v)
	})
	if err != nil {
		return fmt.Errorf("%w: writing checkpoint %d: %v", core.ErrCacheIO, cp.CurrentLedger, err)
	}
	return nil
}
