package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/INLOpen/ledgersnap/hooks"
)

// DownloadThresholds bounds what counts as a healthy bucket download. Zero
// values disable a check.
type DownloadThresholds struct {
	MaxDuration       time.Duration
	MinBytesPerSecond float64
}

// SlowDownloadListener warns about bucket downloads that fall outside the
// configured thresholds. It never fails the download.
type SlowDownloadListener struct {
	logger     *slog.Logger
	thresholds DownloadThresholds
}

// NewSlowDownloadListener creates the listener. Register it for
// EventPostBucketDownload.
func NewSlowDownloadListener(logger *slog.Logger, thresholds DownloadThresholds) *SlowDownloadListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SlowDownloadListener{
		logger:     logger.With("component", "SlowDownloadListener"),
		thresholds: thresholds,
	}
}

// OnEvent handles PostBucketDownload events.
func (l *SlowDownloadListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPostBucketDownload {
		return nil
	}
	payload, ok := event.Payload().(hooks.PostBucketDownloadPayload)
	if !ok {
		l.logger.Error("Received PostBucketDownload event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	if limit := l.thresholds.MaxDuration; limit > 0 && payload.Duration > limit {
		l.logger.Warn("Slow bucket download",
			"bucket", payload.ID.String(),
			"duration", payload.Duration,
			"max_duration", limit,
		)
	}
	if floor := l.thresholds.MinBytesPerSecond; floor > 0 && payload.Duration > 0 {
		rate := float64(payload.Bytes) / payload.Duration.Seconds()
		if rate < floor {
			l.logger.Warn("Low bucket download throughput",
				"bucket", payload.ID.String(),
				"bytes", payload.Bytes,
				"bytes_per_second", rate,
				"min_bytes_per_second", floor,
			)
		}
	}
	return nil
}

// Priority defines the execution order.
func (l *SlowDownloadListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *SlowDownloadListener) IsAsync() bool { return true }
