// Package snapshot assembles the retained ledger entries of a run into a
// ledger snapshot and persists it.
package snapshot

import (
	"encoding/json"
	"math"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/scanner"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// baseReserve is written into every snapshot. Bucket data does not carry
// the network's real value.
const baseReserve = 1

// LedgerSnapshot is a filtered, point-in-time view of ledger state.
type LedgerSnapshot struct {
	ProtocolVersion       uint32    `json:"protocol_version"`
	SequenceNumber        uint32    `json:"sequence_number"`
	Timestamp             uint64    `json:"timestamp,string"`
	NetworkID             core.Hash `json:"network_id"`
	BaseReserve           uint32    `json:"base_reserve"`
	MinPersistentEntryTTL uint32    `json:"min_persistent_entry_ttl"`
	MinTempEntryTTL       uint32    `json:"min_temp_entry_ttl"`
	MaxEntryTTL           uint32    `json:"max_entry_ttl"`
	LedgerEntries         []Entry   `json:"ledger_entries"`
}

// Entry is one ledger entry of a snapshot. LiveUntil is nil for entries
// without a time to live.
type Entry struct {
	Key       xdr.LedgerKey
	Entry     xdr.LedgerEntry
	LiveUntil *uint32
}

// MarshalJSON writes the key and entry as base64 XDR, the form ledger
// tooling exchanges them in.
func (e Entry) MarshalJSON() ([]byte, error) {
	key, err := xdr.MarshalBase64(e.Key)
	if err != nil {
		return nil, err
	}
	entry, err := xdr.MarshalBase64(e.Entry)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type                  string  `json:"type"`
		Key                   string  `json:"key"`
		Entry                 string  `json:"entry"`
		LastModifiedLedgerSeq uint32  `json:"last_modified_ledger_seq"`
		LiveUntil             *uint32 `json:"live_until_ledger_seq"`
	}{core.EntryTypeName(e.Key.Type), key, entry, uint32(e.Entry.LastModifiedLedgerSeq), e.LiveUntil})
}

// Assemble builds the snapshot for cp from the entries retained by the scan
// followed by the resolved contract code. A key already present is never
// added twice; the earlier entry wins. Every entry is marked live forever.
func Assemble(cp *core.Checkpoint, scan *scanner.Result, code []scanner.Retained) (*LedgerSnapshot, error) {
	snap := &LedgerSnapshot{
		SequenceNumber: cp.CurrentLedger,
		NetworkID:      core.NetworkID(cp.NetworkPassphrase),
		BaseReserve:    baseReserve,
	}
	var retained []scanner.Retained
	if scan != nil {
		snap.ProtocolVersion = scan.ProtocolVersion
		retained = scan.Entries
	}

	seen := make(map[string]struct{}, len(retained)+len(code))
	snap.LedgerEntries = make([]Entry, 0, len(retained)+len(code))
	add := func(r scanner.Retained) error {
		id, err := core.KeyID(r.Key)
		if err != nil {
			return err
		}
		if _, dup := seen[id]; dup {
			return nil
		}
		seen[id] = struct{}{}
		liveUntil := uint32(math.MaxUint32)
		snap.LedgerEntries = append(snap.LedgerEntries, Entry{Key: r.Key, Entry: r.Entry, LiveUntil: &liveUntil})
		return nil
	}
	for _, r := range retained {
		if err := add(r); err != nil {
			return nil, err
		}
	}
	for _, r := range code {
		if err := add(r); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Len returns the number of ledger entries.
func (s *LedgerSnapshot) Len() int { return len(s.LedgerEntries) }

// CountByType returns how many entries of each kind the snapshot holds.
func (s *LedgerSnapshot) CountByType() map[xdr.LedgerEntryType]int {
	counts := make(map[xdr.LedgerEntryType]int)
	for _, e := range s.LedgerEntries {
		counts[e.Key.Type]++
	}
	return counts
}
