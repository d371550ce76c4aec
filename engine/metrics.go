package engine

import (
	"expvar"
	"fmt"
)

// Metrics holds the expvar variables of a Builder.
type Metrics struct {
	PublishedGlobally bool // Indicates if the metrics are published to the global expvar namespace.

	RunsTotal       *expvar.Int
	RunErrorsTotal  *expvar.Int
	ActiveRuns      *expvar.Int
	LastRunDuration *expvar.Float

	CheckpointsFetchedTotal *expvar.Int

	CacheHits                  *expvar.Int
	CacheMisses                *expvar.Int
	BucketBytesDownloadedTotal *expvar.Int

	BucketsScannedTotal  *expvar.Int
	RecordsScannedTotal  *expvar.Int
	EntriesRetainedTotal *expvar.Int
	CodeDiscoveredTotal  *expvar.Int
	CodeResolvedTotal    *expvar.Int

	SnapshotsWrittenTotal       *expvar.Int
	SnapshotEntriesWrittenTotal *expvar.Int

	RunLatencyHist        *expvar.Map
	CheckpointLatencyHist *expvar.Map
	PrecacheLatencyHist   *expvar.Map
	ScanLatencyHist       *expvar.Map
	ResolveLatencyHist    *expvar.Map
	WriteLatencyHist      *expvar.Map
}

// NewMetrics creates the metric set. Unpublished metrics are private to the
// returned struct, which is what tests use.
func NewMetrics(publishGlobally bool, prefix string) *Metrics {
	var newIntFunc func(string) *expvar.Int
	var newFloatFunc func(string) *expvar.Float
	var newMapFunc func(string) *expvar.Map

	if publishGlobally {
		newIntFunc = publishExpvarInt
		newFloatFunc = publishExpvarFloat
		newMapFunc = publishExpvarMap
	} else {
		newIntFunc = func(_ string) *expvar.Int { return new(expvar.Int) }
		newFloatFunc = func(_ string) *expvar.Float { return new(expvar.Float) }
		newMapFunc = func(_ string) *expvar.Map {
			m := new(expvar.Map)
			m.Init()
			return m
		}
	}

	m := &Metrics{
		PublishedGlobally: publishGlobally,
		RunsTotal:         newIntFunc(prefix + "runs_total"),
		RunErrorsTotal:    newIntFunc(prefix + "run_errors_total"),
		ActiveRuns:        newIntFunc(prefix + "active_runs"),
		LastRunDuration:   newFloatFunc(prefix + "last_run_duration_seconds"),

		CheckpointsFetchedTotal: newIntFunc(prefix + "checkpoints_fetched_total"),

		CacheHits:                  newIntFunc(prefix + "bucket_cache_hits"),
		CacheMisses:                newIntFunc(prefix + "bucket_cache_misses"),
		BucketBytesDownloadedTotal: newIntFunc(prefix + "bucket_bytes_downloaded_total"),

		BucketsScannedTotal:  newIntFunc(prefix + "buckets_scanned_total"),
		RecordsScannedTotal:  newIntFunc(prefix + "records_scanned_total"),
		EntriesRetainedTotal: newIntFunc(prefix + "entries_retained_total"),
		CodeDiscoveredTotal:  newIntFunc(prefix + "code_discovered_total"),
		CodeResolvedTotal:    newIntFunc(prefix + "code_resolved_total"),

		SnapshotsWrittenTotal:       newIntFunc(prefix + "snapshots_written_total"),
		SnapshotEntriesWrittenTotal: newIntFunc(prefix + "snapshot_entries_written_total"),

		RunLatencyHist:        newMapFunc(prefix + "run_latency_seconds"),
		CheckpointLatencyHist: newMapFunc(prefix + "checkpoint_latency_seconds"),
		PrecacheLatencyHist:   newMapFunc(prefix + "precache_latency_seconds"),
		ScanLatencyHist:       newMapFunc(prefix + "scan_latency_seconds"),
		ResolveLatencyHist:    newMapFunc(prefix + "resolve_latency_seconds"),
		WriteLatencyHist:      newMapFunc(prefix + "write_latency_seconds"),
	}

	histMaps := []*expvar.Map{
		m.RunLatencyHist, m.CheckpointLatencyHist, m.PrecacheLatencyHist,
		m.ScanLatencyHist, m.ResolveLatencyHist, m.WriteLatencyHist,
	}
	for _, h := range histMaps {
		h.Set("count", new(expvar.Int))
		h.Set("sum", new(expvar.Float))
		for _, b := range latencyBuckets {
			h.Set(fmt.Sprintf("le_%.3f", b), new(expvar.Int))
		}
		h.Set("le_inf", new(expvar.Int))
	}

	if publishGlobally {
		hits, misses := m.CacheHits, m.CacheMisses
		publishExpvarFunc(prefix+"bucket_cache_hit_ratio", func() interface{} {
			total := hits.Value() + misses.Value()
			if total == 0 {
				return 0.0
			}
			return float64(hits.Value()) / float64(total)
		})
	}
	return m
}
