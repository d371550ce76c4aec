package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/hooks"
	"github.com/INLOpen/ledgersnap/levels"
	"github.com/INLOpen/ledgersnap/scanner"
	"github.com/INLOpen/ledgersnap/snapshot"
	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/xdr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request describes one snapshot.
type Request struct {
	// Ledger is the checkpoint ledger to snapshot. Zero means the archive's
	// latest checkpoint.
	Ledger uint32
	Filter *scanner.Filter
	// Output is the destination file.
	Output string
	Write  snapshot.WriteOptions
}

// Report summarises a finished run.
type Report struct {
	RunID  string
	Ledger uint32
	// Entries is the number of ledger entries written.
	Entries    int
	Discovered int
	Resolved   int
	Buckets    int
	Output     string
	Duration   time.Duration
	Counts     map[xdr.LedgerEntryType]int
	Snapshot   *snapshot.LedgerSnapshot
}

// Run fetches the checkpoint, makes its buckets local, scans them for the
// filtered entries and the code they reference, and writes the snapshot.
func (b *Builder) Run(ctx context.Context, req Request) (report *Report, err error) {
	if req.Output == "" {
		return nil, &core.ValidationError{Field: "output", Message: "output path is required"}
	}
	if req.Filter == nil {
		req.Filter = scanner.NewFilter()
	}

	runID := uuid.NewString()
	logger := b.logger.With("run_id", runID)
	start := time.Now()

	ctx, span := b.tracer.Start(ctx, "engine.Run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("archive.url", b.archive.URL()),
		attribute.Int64("ledger.requested", int64(req.Ledger)),
	)
	b.metrics.RunsTotal.Add(1)
	b.metrics.ActiveRuns.Add(1)
	defer func() {
		b.metrics.ActiveRuns.Add(-1)
		elapsed := time.Since(start)
		b.metrics.LastRunDuration.Set(elapsed.Seconds())
		observeLatency(b.metrics.RunLatencyHist, elapsed.Seconds())
		if err != nil {
			b.metrics.RunErrorsTotal.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Snapshot run failed", "error", err, "duration", elapsed)
		}
		span.End()
	}()

	if req.Filter.Empty() {
		logger.Warn("Filter is empty, the snapshot will contain no entries")
	}
	accounts, contracts, code := req.Filter.Counts()
	logger.Info("Starting snapshot run", "archive", b.archive.URL(), "ledger", req.Ledger,
		"accounts", accounts, "contracts", contracts, "wasm_hashes", code, "output", req.Output)

	cp, list, err := b.fetchCheckpoint(ctx, req.Ledger)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("ledger.sequence", int64(cp.CurrentLedger)))
	logger = logger.With("ledger", cp.CurrentLedger)

	if err := b.precache(ctx, list); err != nil {
		return nil, err
	}

	order := list.ScanOrder()
	result, err := b.scan(ctx, order, req.Filter)
	if err != nil {
		return nil, err
	}
	resolved, err := b.resolve(ctx, order, result.Discovered)
	if err != nil {
		return nil, err
	}

	snap, err := snapshot.Assemble(cp, result, resolved)
	if err != nil {
		return nil, err
	}
	if err := b.write(ctx, req.Output, snap, req.Write); err != nil {
		return nil, err
	}

	report = &Report{
		RunID:      runID,
		Ledger:     cp.CurrentLedger,
		Entries:    snap.Len(),
		Discovered: result.Discovered.Len(),
		Resolved:   len(resolved),
		Buckets:    len(list.UniqueIDs()),
		Output:     req.Output,
		Duration:   time.Since(start),
		Counts:     snap.CountByType(),
		Snapshot:   snap,
	}
	span.SetAttributes(attribute.Int("snapshot.entries", report.Entries))
	logger.Info("Snapshot run complete", "entries", report.Entries, "resolved_code", report.Resolved, "duration", report.Duration)
	return report, nil
}

func (b *Builder) fetchCheckpoint(ctx context.Context, ledger uint32) (*core.Checkpoint, *levels.BucketList, error) {
	ctx, span := b.tracer.Start(ctx, "engine.FetchCheckpoint")
	defer span.End()
	start := time.Now()

	cp, err := b.archive.GetCheckpoint(ctx, ledger)
	if err != nil {
		return nil, nil, spanError(span, err)
	}
	list, err := levels.FromCheckpoint(cp)
	if err != nil {
		return nil, nil, spanError(span, err)
	}
	elapsed := time.Since(start)
	observeLatency(b.metrics.CheckpointLatencyHist, elapsed.Seconds())
	b.metrics.CheckpointsFetchedTotal.Add(1)

	buckets := len(list.UniqueIDs())
	span.SetAttributes(
		attribute.Int64("ledger.sequence", int64(cp.CurrentLedger)),
		attribute.Int("buckets", buckets),
	)
	b.hookManager.Trigger(ctx, hooks.NewPostFetchCheckpointEvent(hooks.CheckpointPayload{
		ArchiveURL: b.archive.URL(),
		Checkpoint: cp,
		Buckets:    buckets,
		Duration:   elapsed,
	}))
	return cp, list, nil
}

func (b *Builder) precache(ctx context.Context, list *levels.BucketList) error {
	ctx, span := b.tracer.Start(ctx, "engine.Precache")
	defer span.End()
	start := time.Now()

	ids := list.UniqueIDs()
	span.SetAttributes(attribute.Int("buckets", len(ids)), attribute.Int("workers", b.opts.Workers))
	if err := b.cache.Precache(ctx, ids, b.opts.Workers); err != nil {
		return spanError(span, err)
	}
	observeLatency(b.metrics.PrecacheLatencyHist, time.Since(start).Seconds())
	return nil
}

func (b *Builder) scan(ctx context.Context, order []levels.BucketRef, filter *scanner.Filter) (*scanner.Result, error) {
	ctx, span := b.tracer.Start(ctx, "engine.Scan")
	defer span.End()
	start := time.Now()

	result, err := scanner.New(b.cache, b.scannerOptions(hooks.PassFilter)).Scan(ctx, order, filter)
	if err != nil {
		return nil, spanError(span, err)
	}
	observeLatency(b.metrics.ScanLatencyHist, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("records", result.Stats.Records),
		attribute.Int("retained", result.Stats.Retained),
		attribute.Int("discovered_code", result.Discovered.Len()),
	)
	return result, nil
}

func (b *Builder) resolve(ctx context.Context, order []levels.BucketRef, discovered scanner.HashSet) ([]scanner.Retained, error) {
	ctx, span := b.tracer.Start(ctx, "engine.Resolve")
	defer span.End()
	start := time.Now()

	span.SetAttributes(attribute.Int("requested", discovered.Len()))
	code, err := scanner.New(b.cache, b.scannerOptions(hooks.PassCode)).Resolve(ctx, order, discovered)
	if err != nil {
		return nil, spanError(span, err)
	}
	observeLatency(b.metrics.ResolveLatencyHist, time.Since(start).Seconds())
	b.metrics.CodeResolvedTotal.Add(int64(len(code)))
	span.SetAttributes(attribute.Int("resolved", len(code)))
	return code, nil
}

func (b *Builder) write(ctx context.Context, path string, snap *snapshot.LedgerSnapshot, opts snapshot.WriteOptions) error {
	ctx, span := b.tracer.Start(ctx, "engine.Write")
	defer span.End()
	span.SetAttributes(attribute.String("path", path), attribute.Int("entries", snap.Len()))

	if err := b.hookManager.Trigger(ctx, hooks.NewPreSnapshotWriteEvent(hooks.PreSnapshotWritePayload{
		Path:    path,
		Ledger:  snap.SequenceNumber,
		Entries: snap.Len(),
	})); err != nil {
		return spanError(span, fmt.Errorf("snapshot write vetoed: %w", err))
	}

	start := time.Now()
	err := snapshot.Write(path, snap, opts)
	elapsed := time.Since(start)
	b.hookManager.Trigger(ctx, hooks.NewPostSnapshotWriteEvent(hooks.PostSnapshotWritePayload{
		Path:     path,
		Ledger:   snap.SequenceNumber,
		Entries:  snap.Len(),
		Duration: elapsed,
		Error:    err,
	}))
	if err != nil {
		return spanError(span, err)
	}
	observeLatency(b.metrics.WriteLatencyHist, elapsed.Seconds())
	b.metrics.SnapshotsWrittenTotal.Add(1)
	b.metrics.SnapshotEntriesWrittenTotal.Add(int64(snap.Len()))
	b.logger.Debug("Snapshot written", slog.String("path", path), slog.Int("entries", snap.Len()), slog.Duration("duration", elapsed))
	return nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
