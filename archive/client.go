// Package archive talks to a remote history archive over HTTP: it fetches
// checkpoint state documents and streams bucket objects.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/INLOpen/ledgersnap/compressors"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/cenkalti/backoff/v5"
)

// CheckpointStore persists specific-ledger checkpoints between runs.
type CheckpointStore interface {
	// LoadCheckpoint returns the stored checkpoint for ledger, or nil when absent.
	LoadCheckpoint(ledger uint32) (*core.Checkpoint, error)
	StoreCheckpoint(cp *core.Checkpoint) error
}

// Options configures a Client.
type Options struct {
	// CheckpointFrequency is the expected checkpoint cadence, used only to
	// warn about unaligned ledgers. Defaults to core.DefaultCheckpointFrequency.
	CheckpointFrequency uint32
	// BucketCompression is the codec bucket objects are published with. Defaults to gzip.
	BucketCompression core.StreamCodec
	// Timeout bounds each checkpoint request. Bucket downloads are bounded
	// only by the caller's context.
	Timeout time.Duration
	// MaxAttempts is the number of tries for a request failing with a
	// transport error or a 5xx. Values below 1 mean a single attempt.
	MaxAttempts int
	// RetryInitialInterval is the first backoff delay. Defaults to 500ms.
	RetryInitialInterval time.Duration
	HTTPClient           *http.Client
	Store                CheckpointStore
	Logger               *slog.Logger
}

// Client fetches checkpoints and buckets from one archive.
type Client struct {
	baseURL string
	opts    Options
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the archive rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, core.ErrArchiveURLNotConfigured
	}
	if opts.CheckpointFrequency == 0 {
		opts.CheckpointFrequency = core.DefaultCheckpointFrequency
	}
	if opts.BucketCompression == nil {
		opts.BucketCompression = compressors.NewGzipCompressor()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		opts:    opts,
		http:    httpClient,
		logger:  logger.With("component", "ArchiveClient", "archive", baseURL),
	}, nil
}

// URL returns the archive root.
func (c *Client) URL() string { return c.baseURL }

// GetCheckpoint fetches the bucket list state for ledger. Zero means the
// archive's latest checkpoint. A ledger that does not close a checkpoint
// is requested anyway after a warning naming the nearest aligned ledgers.
func (c *Client) GetCheckpoint(ctx context.Context, ledger uint32) (*core.Checkpoint, error) {
	var rel string
	if ledger == 0 {
		rel = wellKnownStatePath
	} else {
		if !core.IsCheckpointLedger(ledger, c.opts.CheckpointFrequency) {
			prev, next := core.NearestCheckpoints(ledger, c.opts.CheckpointFrequency)
			c.logger.Warn("Ledger is not a checkpoint ledger, the archive may not have it",
				"ledger", ledger, "previous_checkpoint", prev, "next_checkpoint", next)
		}
		if c.opts.Store != nil {
			cp, err := c.opts.Store.LoadCheckpoint(ledger)
			if err != nil {
				c.logger.Warn("Failed to read checkpoint index, fetching from archive", "ledger", ledger, "error", err)
			} else if cp != nil {
				c.logger.Debug("Checkpoint served from index", "ledger", ledger)
				return cp, nil
			}
		}
		rel = CheckpointPath(ledger)
	}

	reqCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	url := c.baseURL + "/" + rel
	body, err := c.get(reqCtx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrArchiveUnavailable, err)
	}
	defer body.Close()

	var cp core.Checkpoint
	if err := json.NewDecoder(body).Decode(&cp); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", core.ErrMalformedCheckpoint, url, err)
	}
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	c.logger.Info("Fetched checkpoint", "ledger", cp.CurrentLedger, "levels", len(cp.CurrentBuckets))

	if ledger != 0 && c.opts.Store != nil {
		if err := c.opts.Store.StoreCheckpoint(&cp); err != nil {
			c.logger.Warn("Failed to record checkpoint in index", "ledger", cp.CurrentLedger, "error", err)
		}
	}
	return &cp, nil
}

// FetchBucket opens the remote object for id and returns its decompressed
// content. The caller must close the returned reader.
func (c *Client) FetchBucket(ctx context.Context, id core.BucketID) (io.ReadCloser, error) {
	url := c.baseURL + "/" + BucketPath(id, c.opts.BucketCompression.Extension())
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: bucket %s: %w", core.ErrFetchFailed, id, err)
	}
	dec, err := c.opts.BucketCompression.NewReader(body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("%w: bucket %s: opening %s stream: %v", core.ErrFetchFailed, id, c.opts.BucketCompression.Type(), err)
	}
	return &bucketBody{ReadCloser: dec, body: body}, nil
}

// bucketBody closes both the decompressor and the response body.
type bucketBody struct {
	io.ReadCloser
	body io.Closer
}

func (b *bucketBody) Close() error {
	return errors.Join(b.ReadCloser.Close(), b.body.Close())
}

// get performs a GET, retrying transport failures and 5xx responses up to
// MaxAttempts times. Non-2xx responses become *core.FetchError.
func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInitialInterval

	attempt := 0
	operation := func() (io.ReadCloser, error) {
		attempt++
		body, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		var fetchErr *core.FetchError
		if errors.As(err, &fetchErr) && !fetchErr.Retryable() {
			return nil, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		if attempt < c.opts.MaxAttempts {
			c.logger.Warn("Archive request failed, retrying", "url", url, "attempt", attempt, "error", err)
		}
		return nil, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)))
}

func (c *Client) getOnce(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.FetchError{URL: url, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &core.FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		return nil, &core.FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
