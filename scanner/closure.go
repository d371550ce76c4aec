package scanner

import (
	"context"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/levels"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// Resolve finds the contract code entries for discovered wasm hashes with a
// second pass over the same buckets, in the same priority order. Each hash
// is settled by the first code record carrying it: a Live or Init record is
// retained, a Dead record means the code is gone. The pass stops as soon as
// every hash is settled. Code referenced by the resolved code is not
// followed. Hashes found nowhere are logged and otherwise ignored.
func (s *Scanner) Resolve(ctx context.Context, buckets []levels.BucketRef, discovered HashSet) ([]Retained, error) {
	if discovered.Len() == 0 {
		return nil, nil
	}
	pending := discovered.Clone()
	var out []Retained

	for _, ref := range buckets {
		if pending.Len() == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.opts.OnBucketStart != nil {
			if err := s.opts.OnBucketStart(ctx, ref); err != nil {
				return nil, err
			}
		}
		var bs BucketStats
		err := s.forEachRecord(ctx, ref, func(e xdr.BucketEntry) (bool, error) {
			bs.Records++
			key, ok, err := core.EntryKey(e)
			if err != nil {
				return false, err
			}
			if !ok || key.Type != xdr.LedgerEntryTypeContractCode || key.ContractCode == nil {
				return true, nil
			}
			h := core.Hash(key.ContractCode.Hash)
			if !pending.Has(h) {
				return true, nil
			}
			pending.Remove(h)
			if e.Type != xdr.BucketEntryTypeDeadentry {
				bs.Retained++
				out = append(out, Retained{Key: key, Entry: *e.LiveEntry, Source: ref})
				s.logger.Debug("Resolved contract code", "wasm_hash", h.String(), "bucket", ref.String())
			} else {
				bs.Dead++
				s.logger.Warn("Contract code was deleted", "wasm_hash", h.String(), "bucket", ref.String())
			}
			return pending.Len() > 0, nil
		})
		if err != nil {
			return nil, err
		}
		if s.opts.OnBucketDone != nil {
			s.opts.OnBucketDone(ctx, ref, bs)
		}
	}

	for _, h := range pending.Sorted() {
		s.logger.Warn("Contract code not found in any bucket", "wasm_hash", h.String())
	}
	s.logger.Info("Code resolution complete", "requested", discovered.Len(), "resolved", len(out), "missing", pending.Len())
	return out, nil
}
