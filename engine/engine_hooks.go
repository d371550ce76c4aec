package engine

import (
	"context"
	"time"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/hooks"
	"github.com/INLOpen/ledgersnap/levels"
	"github.com/INLOpen/ledgersnap/scanner"
)

// Cache callbacks run without a run context, except OnMiss which may veto
// the download.

func (b *Builder) onCacheHit(id core.BucketID, path string) {
	b.hookManager.Trigger(context.Background(), hooks.NewOnBucketCacheHitEvent(hooks.BucketPayload{ID: id, Path: path}))
}

func (b *Builder) onCacheMiss(ctx context.Context, id core.BucketID) error {
	return b.hookManager.Trigger(ctx, hooks.NewPreBucketDownloadEvent(hooks.BucketPayload{ID: id, Path: b.cache.Path(id)}))
}

func (b *Builder) onDownloaded(id core.BucketID, path string, n int64, d time.Duration) {
	b.hookManager.Trigger(context.Background(), hooks.NewPostBucketDownloadEvent(hooks.PostBucketDownloadPayload{
		ID:       id,
		Path:     path,
		Bytes:    n,
		Duration: d,
	}))
}

// scannerOptions raises the bucket scan events of one pass and feeds the
// scan counters.
func (b *Builder) scannerOptions(pass hooks.ScanPass) scanner.Options {
	opts := scanner.Options{
		Logger: b.opts.Logger,
		OnBucketStart: func(ctx context.Context, ref levels.BucketRef) error {
			return b.hookManager.Trigger(ctx, hooks.NewPreBucketScanEvent(hooks.BucketScanPayload{Bucket: ref, Pass: pass}))
		},
		OnBucketDone: func(ctx context.Context, ref levels.BucketRef, stats scanner.BucketStats) {
			b.metrics.BucketsScannedTotal.Add(1)
			b.metrics.RecordsScannedTotal.Add(int64(stats.Records))
			b.metrics.EntriesRetainedTotal.Add(int64(stats.Retained))
			b.hookManager.Trigger(ctx, hooks.NewPostBucketScanEvent(hooks.PostBucketScanPayload{
				Bucket:   ref,
				Pass:     pass,
				Records:  stats.Records,
				Retained: stats.Retained,
			}))
		},
	}
	if pass == hooks.PassFilter {
		opts.OnCodeDiscovered = func(ctx context.Context, contract core.Address, hash core.Hash) {
			b.metrics.CodeDiscoveredTotal.Add(1)
			b.hookManager.Trigger(ctx, hooks.NewOnCodeDiscoveredEvent(hooks.CodeDiscoveredPayload{Contract: contract, WasmHash: hash}))
		}
	}
	return opts
}
