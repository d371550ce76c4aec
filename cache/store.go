// Package cache keeps decompressed buckets on local disk, keyed by bucket id.
//
// Bucket ids are content hashes, so a cached file never goes stale: once
// bucket-<id>.xdr exists in the cache directory it is used as is. Files only
// appear through an atomic rename of a fully written and synced temp file.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/sys"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Fetcher streams the decompressed content of a remote bucket.
type Fetcher interface {
	FetchBucket(ctx context.Context, id core.BucketID) (io.ReadCloser, error)
}

// Options configures a Store.
type Options struct {
	Dir string
	// SkipVerify disables checking downloaded content against the bucket id.
	SkipVerify bool
	// MinFreeBytes triggers a warning before a download when the cache file
	// system has less free space. Zero disables the check.
	MinFreeBytes uint64
	Logger       *slog.Logger

	OnHit        func(id core.BucketID, path string)                          // Optional: called when a bucket is already cached.
	OnMiss       func(ctx context.Context, id core.BucketID) error            // Optional: called before a download; an error aborts it.
	OnDownloaded func(id core.BucketID, path string, n int64, d time.Duration) // Optional: called after a download is committed.
}

// Store is a content-addressed bucket cache. It is safe for concurrent use.
type Store struct {
	dir     string
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
	group   singleflight.Group

	// Metrics
	hits            *expvar.Int
	misses          *expvar.Int
	downloadedBytes *expvar.Int
}

// New opens (creating if needed) the cache directory.
func New(fetcher Fetcher, opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: cache directory not set", core.ErrCacheIO)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache directory %s: %v", core.ErrCacheIO, opts.Dir, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		dir:             opts.Dir,
		fetcher:         fetcher,
		opts:            opts,
		logger:          logger.With("component", "BucketCache"),
		hits:            new(expvar.Int),
		misses:          new(expvar.Int),
		downloadedBytes: new(expvar.Int),
	}, nil
}

// SetMetrics replaces the store's counters, typically with published ones.
func (s *Store) SetMetrics(hits, misses, downloadedBytes *expvar.Int) {
	if hits != nil {
		s.hits = hits
	}
	if misses != nil {
		s.misses = misses
	}
	if downloadedBytes != nil {
		s.downloadedBytes = downloadedBytes
	}
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where the bucket with id is (or would be) cached.
func (s *Store) Path(id core.BucketID) string {
	return filepath.Join(s.dir, FileName(id))
}

// FileName is the cache file name of a bucket.
func FileName(id core.BucketID) string {
	return "bucket-" + id.String() + ".xdr"
}

// Contains reports whether id is cached, without touching the network.
func (s *Store) Contains(id core.BucketID) (bool, error) {
	ok, err := sys.Exists(s.Path(id))
	if err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrCacheIO, err)
	}
	return ok, nil
}

// EnsureLocal returns the path of the cached bucket, downloading it first if
// needed. Concurrent calls for the same id share one download.
func (s *Store) EnsureLocal(ctx context.Context, id core.BucketID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := s.Path(id)
	cached, err := s.Contains(id)
	if err != nil {
		return "", err
	}
	if cached {
		s.hits.Add(1)
		if s.opts.OnHit != nil {
			s.opts.OnHit(id, path)
		}
		return path, nil
	}

	// The download is shared, so it must not die with the caller that
	// happened to start it. Each caller still stops waiting on its own ctx.
	dlCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id.String(), func() (any, error) {
		// Another caller may have finished between our check and now.
		if ok, _ := sys.Exists(path); ok {
			return path, nil
		}
		return path, s.download(dlCtx, id, path)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return path, nil
	}
}

// Open returns the cached bucket for reading, downloading it if needed.
func (s *Store) Open(ctx context.Context, id core.BucketID) (io.ReadCloser, error) {
	path, err := s.EnsureLocal(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", core.ErrCacheIO, path, err)
	}
	return f, nil
}

// Precache makes every id local, running at most workers downloads at once.
// Zero ids are skipped. The first failure cancels the rest.
func (s *Store) Precache(ctx context.Context, ids []core.BucketID, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	seen := make(map[core.BucketID]struct{}, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g.Go(func() error {
			_, err := s.EnsureLocal(gctx, id)
			return err
		})
	}
	return g.Wait()
}

func (s *Store) download(ctx context.Context, id core.BucketID, path string) error {
	s.misses.Add(1)
	if s.opts.OnMiss != nil {
		if err := s.opts.OnMiss(ctx, id); err != nil {
			return err
		}
	}
	s.checkFreeSpace()

	start := time.Now()
	body, err := s.fetcher.FetchBucket(ctx, id)
	if err != nil {
		if !errors.Is(err, core.ErrFetchFailed) {
			err = fmt.Errorf("%w: bucket %s: %w", core.ErrFetchFailed, id, err)
		}
		return err
	}
	defer body.Close()

	tmp, err := sys.CreateTemp(s.dir, "bucket-"+id.String()+"-*.dl")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for bucket %s: %v", core.ErrCacheIO, id, err)
	}

	out := &errWriter{w: tmp}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hasher), body)
	if err != nil {
		sys.Discard(tmp)
		if out.err != nil {
			return fmt.Errorf("%w: writing bucket %s: %v", core.ErrCacheIO, id, out.err)
		}
		return fmt.Errorf("%w: downloading bucket %s: %w", core.ErrFetchFailed, id, err)
	}

	if !s.opts.SkipVerify {
		var got core.BucketID
		copy(got[:], hasher.Sum(nil))
		if got != id {
			sys.Discard(tmp)
			return fmt.Errorf("%w: bucket %s hashed to %s", core.ErrBucketHashMismatch, id, got)
		}
	}

	if err := sys.Commit(tmp, path); err != nil {
		return fmt.Errorf("%w: committing bucket %s: %v", core.ErrCacheIO, id, err)
	}

	elapsed := time.Since(start)
	s.downloadedBytes.Add(n)
	s.logger.Debug("Bucket downloaded", "bucket", id.String(), "bytes", n, "duration", elapsed)
	if s.opts.OnDownloaded != nil {
		s.opts.OnDownloaded(id, path, n, elapsed)
	}
	return nil
}

func (s *Store) checkFreeSpace() {
	if s.opts.MinFreeBytes == 0 {
		return
	}
	usage, err := disk.Usage(s.dir)
	if err != nil {
		s.logger.Debug("Could not determine free space of cache directory", "dir", s.dir, "error", err)
		return
	}
	if usage.Free < s.opts.MinFreeBytes {
		s.logger.Warn("Cache directory is low on free space", "dir", s.dir, "free_bytes", usage.Free, "min_free_bytes", s.opts.MinFreeBytes)
	}
}

// errWriter remembers the first write error so a failed copy can be blamed
// on the disk rather than the network.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}
