// Package engine ties the archive client, the bucket cache, the scanner and
// the snapshot writer into a single snapshot run.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/INLOpen/ledgersnap/archive"
	"github.com/INLOpen/ledgersnap/cache"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/hooks"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultWorkers is the number of concurrent bucket downloads.
const DefaultWorkers = 4

// Options configures a Builder.
type Options struct {
	ArchiveURL          string
	CheckpointFrequency uint32
	// BucketCompression is the codec the archive publishes buckets with.
	BucketCompression core.StreamCodec
	RequestTimeout    time.Duration
	MaxAttempts       int
	RetryInterval     time.Duration
	HTTPClient        *http.Client

	CacheDir     string
	Workers      int
	SkipVerify   bool
	MinFreeBytes uint64
	// UseCheckpointIndex keeps fetched checkpoints in a bbolt database in
	// CacheDir so that a repeated run for the same ledger needs no request.
	UseCheckpointIndex bool

	Metrics        *Metrics
	HookManager    hooks.HookManager
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
}

// Builder produces ledger snapshots from one archive. Runs on the same
// Builder share its cache and may execute concurrently.
type Builder struct {
	opts        Options
	archive     *archive.Client
	cache       *cache.Store
	index       *cache.CheckpointIndex
	hookManager hooks.HookManager
	metrics     *Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewBuilder validates opts and opens the bucket cache.
func NewBuilder(opts Options) (*Builder, error) {
	var logger *slog.Logger
	if opts.Logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)).With("component", "Builder")
	} else {
		logger = opts.Logger.With("component", "Builder")
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}

	b := &Builder{
		opts:        opts,
		hookManager: opts.HookManager,
		metrics:     opts.Metrics,
		logger:      logger,
	}
	if b.hookManager == nil {
		b.hookManager = hooks.NewHookManager(logger)
	}
	if b.metrics == nil {
		b.metrics = NewMetrics(false, "")
	}
	if opts.TracerProvider != nil {
		b.tracer = opts.TracerProvider.Tracer("github.com/INLOpen/ledgersnap/engine")
	} else {
		b.tracer = noop.NewTracerProvider().Tracer("")
	}

	var err error
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if opts.CacheDir == "" {
		return nil, fmt.Errorf("%w: cache directory not set", core.ErrCacheIO)
	}
	var store archive.CheckpointStore
	if opts.UseCheckpointIndex {
		// The index lives in the cache directory, which cache.New creates.
		if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating cache directory %s: %v", core.ErrCacheIO, opts.CacheDir, err)
		}
		b.index, err = cache.OpenCheckpointIndex(opts.CacheDir)
		if err != nil {
			return nil, err
		}
		store = b.index.ForArchive(opts.ArchiveURL)
	}

	b.archive, err = archive.New(opts.ArchiveURL, archive.Options{
		CheckpointFrequency:  opts.CheckpointFrequency,
		BucketCompression:    opts.BucketCompression,
		Timeout:              opts.RequestTimeout,
		MaxAttempts:          opts.MaxAttempts,
		RetryInitialInterval: opts.RetryInterval,
		HTTPClient:           opts.HTTPClient,
		Store:                store,
		Logger:               opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	b.cache, err = cache.New(b.archive, cache.Options{
		Dir:          opts.CacheDir,
		SkipVerify:   opts.SkipVerify,
		MinFreeBytes: opts.MinFreeBytes,
		Logger:       opts.Logger,
		OnHit:        b.onCacheHit,
		OnMiss:       b.onCacheMiss,
		OnDownloaded: b.onDownloaded,
	})
	if err != nil {
		return nil, err
	}
	b.cache.SetMetrics(b.metrics.CacheHits, b.metrics.CacheMisses, b.metrics.BucketBytesDownloadedTotal)
	return b, nil
}

// ArchiveURL returns the archive the builder reads from.
func (b *Builder) ArchiveURL() string { return b.archive.URL() }

// CacheDir returns the bucket cache directory.
func (b *Builder) CacheDir() string { return b.cache.Dir() }

// Metrics returns the builder's metric set.
func (b *Builder) Metrics() *Metrics { return b.metrics }

// HookManager returns the manager events are raised on.
func (b *Builder) HookManager() hooks.HookManager { return b.hookManager }

// Close waits for asynchronous listeners and releases the checkpoint index.
func (b *Builder) Close() error {
	var closeErr error
	if b.hookManager != nil {
		b.hookManager.Stop()
	}
	if b.index != nil {
		closeErr = errors.Join(closeErr, b.index.Close())
		b.index = nil
	}
	return closeErr
}
