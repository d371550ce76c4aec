// Package scanner merges the buckets of a bucket list into the set of live
// ledger entries a filter asks for, and resolves the contract code those
// entries depend on.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/ledgersnap/bucket"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/levels"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// Opener returns the decompressed content of a bucket. *cache.Store
// satisfies it.
type Opener interface {
	Open(ctx context.Context, id core.BucketID) (io.ReadCloser, error)
}

// Options configures a Scanner.
type Options struct {
	Logger *slog.Logger

	// OnBucketStart runs before a bucket is read; an error aborts the scan.
	OnBucketStart func(ctx context.Context, ref levels.BucketRef) error
	// OnBucketDone runs after a bucket has been read to the end.
	OnBucketDone func(ctx context.Context, ref levels.BucketRef, stats BucketStats)
	// OnCodeDiscovered runs the first time a retained contract instance
	// references wasm that the filter did not ask for.
	OnCodeDiscovered func(ctx context.Context, contract core.Address, hash core.Hash)
}

// Retained is an entry kept for the snapshot together with where it was found.
type Retained struct {
	Key    xdr.LedgerKey
	Entry  xdr.LedgerEntry
	Source levels.BucketRef
}

// BucketStats counts what one bucket contributed.
type BucketStats struct {
	Records  int
	Shadowed int
	Dead     int
	Retained int
}

// Stats summarises a scan.
type Stats struct {
	Buckets  int
	Records  int
	Shadowed int
	Dead     int
	Retained int
}

func (s *Stats) add(b BucketStats) {
	s.Buckets++
	s.Records += b.Records
	s.Shadowed += b.Shadowed
	s.Dead += b.Dead
	s.Retained += b.Retained
}

// Result is the outcome of a first-pass scan.
type Result struct {
	// Entries in the order they were found, which is priority order.
	Entries []Retained
	// Discovered holds wasm hashes referenced by retained contract
	// instances and not already requested by the filter.
	Discovered HashSet
	// ProtocolVersion comes from bucket metadata records.
	ProtocolVersion uint32
	Stats           Stats
}

// Scanner reads buckets through an Opener. It holds no per-run state and
// may be reused; a single scan is not concurrent.
type Scanner struct {
	opener Opener
	opts   Options
	logger *slog.Logger
}

// New creates a scanner reading buckets from opener.
func New(opener Opener, opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scanner{opener: opener, opts: opts, logger: logger.With("component", "Scanner")}
}

// Scan reads buckets in the given order, which must be shadowing priority
// order, and returns the entries filter retains. The first record seen for
// a key decides its fate: a Dead record removes the key, a Live or Init
// record is kept if the filter matches, and every later record for the key
// is ignored whatever its kind.
func (s *Scanner) Scan(ctx context.Context, buckets []levels.BucketRef, filter *Filter) (*Result, error) {
	if filter == nil {
		filter = NewFilter()
	}
	res := &Result{Discovered: make(HashSet)}
	seen := make(map[string]struct{})

	for _, ref := range buckets {
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
			if e.Type == xdr.BucketEntryTypeMetaentry {
				// Metadata has no key and is never shadowed.
				res.ProtocolVersion = uint32(e.MetaEntry.LedgerVersion)
				return true, nil
			}
			key, ok, err := core.EntryKey(e)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, fmt.Errorf("%s record without a key", core.RecordTypeName(e.Type))
			}
			id, err := core.KeyID(key)
			if err != nil {
				return false, err
			}
			if _, dup := seen[id]; dup {
				bs.Shadowed++
				return true, nil
			}
			seen[id] = struct{}{}

			if e.Type == xdr.BucketEntryTypeDeadentry {
				bs.Dead++
				return true, nil
			}
			if !filter.Matches(key) {
				return true, nil
			}

			bs.Retained++
			res.Entries = append(res.Entries, Retained{Key: key, Entry: *e.LiveEntry, Source: ref})
			if h, ok := core.WasmReference(*e.LiveEntry); ok && !filter.HasCode(h) && !res.Discovered.Has(h) {
				res.Discovered.Add(h)
				contract, _ := core.AddressFromScAddress(e.LiveEntry.Data.ContractData.Contract)
				s.logger.Debug("Discovered contract code", "contract", contract.String(), "wasm_hash", h.String())
				if s.opts.OnCodeDiscovered != nil {
					s.opts.OnCodeDiscovered(ctx, contract, h)
				}
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}

		res.Stats.add(bs)
		s.logger.Debug("Bucket scanned", "bucket", ref.String(), "records", bs.Records, "retained", bs.Retained)
		if s.opts.OnBucketDone != nil {
			s.opts.OnBucketDone(ctx, ref, bs)
		}
	}

	s.logger.Info("Scan complete",
		"buckets", res.Stats.Buckets,
		"records", res.Stats.Records,
		"retained", res.Stats.Retained,
		"discovered_code", res.Discovered.Len(),
		"protocol_version", res.ProtocolVersion)
	return res, nil
}

// forEachRecord streams the records of one bucket into fn until fn returns
// false or the bucket ends. The context is checked before every record.
func (s *Scanner) forEachRecord(ctx context.Context, ref levels.BucketRef, fn func(xdr.BucketEntry) (bool, error)) error {
	rc, err := s.opener.Open(ctx, ref.ID)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", ref, err)
	}
	defer rc.Close()

	r := bucket.NewReader(rc)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bucket %s: %w", ref, err)
		}
		more, err := fn(e)
		if err != nil {
			return fmt.Errorf("bucket %s: %w", ref, &core.FrameDecodeError{Offset: r.Offset(), Err: err})
		}
		if !more {
			return nil
		}
	}
}
