package listeners

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"sync"

	"github.com/INLOpen/ledgersnap/hooks"
)

var (
	// expvar names are process global; registration happens once.
	scanMetricsOnce sync.Once
	scanRecords     *expvar.Int
	scanRetained    *expvar.Int
	scanBuckets     *expvar.Int
	discoveredCode  *expvar.Int
)

func initScanMetrics() {
	scanMetricsOnce.Do(func() {
		scanRecords = expvar.NewInt("ledgersnap_scan_records_total")
		scanRetained = expvar.NewInt("ledgersnap_scan_retained_total")
		scanBuckets = expvar.NewInt("ledgersnap_scan_buckets_total")
		discoveredCode = expvar.NewInt("ledgersnap_scan_discovered_code_total")
		// Share of decoded records that ended up in a snapshot.
		expvar.Publish("ledgersnap_scan_retention_ratio", expvar.Func(func() interface{} {
			records := scanRecords.Value()
			if records == 0 {
				return 0.0
			}
			return float64(scanRetained.Value()) / float64(records)
		}))
	})
}

// ScanStatsListener accumulates scan counters into expvar.
type ScanStatsListener struct {
	logger *slog.Logger

	records    *expvar.Int
	retained   *expvar.Int
	buckets    *expvar.Int
	discovered *expvar.Int
}

// NewScanStatsListener creates the listener. Register it for
// EventPostBucketScan and EventOnCodeDiscovered.
func NewScanStatsListener(logger *slog.Logger) *ScanStatsListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	initScanMetrics()
	return &ScanStatsListener{
		logger:     logger.With("component", "ScanStatsListener"),
		records:    scanRecords,
		retained:   scanRetained,
		buckets:    scanBuckets,
		discovered: discoveredCode,
	}
}

func (l *ScanStatsListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	switch payload := event.Payload().(type) {
	case hooks.PostBucketScanPayload:
		l.records.Add(int64(payload.Records))
		l.retained.Add(int64(payload.Retained))
		l.buckets.Add(1)
		l.logger.Debug("Bucket scan recorded",
			"bucket", payload.Bucket.String(),
			"pass", payload.Pass.String(),
			"records", payload.Records,
			"retained", payload.Retained,
		)
	case hooks.CodeDiscoveredPayload:
		l.discovered.Add(1)
	}
	return nil
}

// Priority defines the execution order. Lower numbers run first.
func (l *ScanStatsListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *ScanStatsListener) IsAsync() bool { return true }
