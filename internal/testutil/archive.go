package testutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/INLOpen/ledgersnap/bucket"
	"github.com/INLOpen/ledgersnap/compressors"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// FakeArchive is an in-process history archive. It serves whatever objects
// the test registered and counts every request it sees.
type FakeArchive struct {
	Server *httptest.Server
	Codec  core.StreamCodec

	mu       sync.Mutex
	objects  map[string][]byte
	failures map[string][]int
	requests map[string]int
	total    int
}

// NewFakeArchive starts a fake archive publishing gzip buckets. It is shut
// down when the test ends.
func NewFakeArchive(t testing.TB) *FakeArchive {
	t.Helper()
	a := &FakeArchive{
		Codec:    compressors.NewGzipCompressor(),
		objects:  make(map[string][]byte),
		failures: make(map[string][]int),
		requests: make(map[string]int),
	}
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.Server.Close)
	return a
}

func (a *FakeArchive) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	a.mu.Lock()
	a.total++
	a.requests[path]++
	var status int
	if queued := a.failures[path]; len(queued) > 0 {
		status, a.failures[path] = queued[0], queued[1:]
	}
	body, ok := a.objects[path]
	a.mu.Unlock()

	switch {
	case status != 0:
		http.Error(w, http.StatusText(status), status)
	case !ok:
		http.NotFound(w, r)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}
}

// URL is the archive root.
func (a *FakeArchive) URL() string { return a.Server.URL }

// Put publishes raw bytes at an archive-relative path.
func (a *FakeArchive) Put(path string, body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[path] = body
}

// Remove unpublishes path.
func (a *FakeArchive) Remove(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, path)
}

// FailNext makes the next len(statuses) requests for path answer with the
// given status codes before the object is served normally.
func (a *FakeArchive) FailNext(path string, statuses ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[path] = append(a.failures[path], statuses...)
}

// AddBucket frames, compresses and publishes entries as a bucket and
// returns its id.
func (a *FakeArchive) AddBucket(t testing.TB, entries ...xdr.BucketEntry) core.BucketID {
	t.Helper()
	raw, err := bucket.Encode(entries...)
	if err != nil {
		t.Fatalf("encoding bucket: %v", err)
	}
	id := core.BucketID(sha256.Sum256(raw))

	var compressed bytes.Buffer
	w, err := a.Codec.NewWriter(&compressed)
	if err != nil {
		t.Fatalf("compressing bucket: %v", err)
	}
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("compressing bucket: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compressing bucket: %v", err)
	}
	a.Put(BucketPath(id, a.Codec.Extension()), compressed.Bytes())
	return id
}

// SetCheckpoint publishes a checkpoint at ledger, both under its history
// path and as the archive's latest state. Each level is a curr/snap pair;
// the zero id marks an empty slot.
func (a *FakeArchive) SetCheckpoint(t testing.TB, ledger uint32, passphrase string, levels ...[2]core.BucketID) *core.Checkpoint {
	t.Helper()
	cp := &core.Checkpoint{
		Version:           1,
		Server:            "fake-archive",
		CurrentLedger:     ledger,
		NetworkPassphrase: passphrase,
	}
	for _, level := range levels {
		cp.CurrentBuckets = append(cp.CurrentBuckets, core.BucketLevel{Curr: level[0].String(), Snap: level[1].String()})
	}
	doc, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("encoding checkpoint: %v", err)
	}
	a.Put(CheckpointPath(ledger), doc)
	a.Put(".well-known/stellar-history.json", doc)
	return cp
}

// Requests is the total number of requests served.
func (a *FakeArchive) Requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// RequestsFor is the number of requests for one archive-relative path.
func (a *FakeArchive) RequestsFor(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[path]
}

// BucketRequests counts requests under bucket/.
func (a *FakeArchive) BucketRequests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for path, count := range a.requests {
		if strings.HasPrefix(path, "bucket/") {
			n += count
		}
	}
	return n
}

// CheckpointPath mirrors the archive layout for history state documents.
func CheckpointPath(ledger uint32) string {
	hex := fmt.Sprintf("%08x", ledger)
	return fmt.Sprintf("history/%s/%s/%s/history-%s.json", hex[0:2], hex[2:4], hex[4:6], hex)
}

// BucketPath mirrors the archive layout for bucket objects.
func BucketPath(id core.BucketID, ext string) string {
	xx, yy, zz := id.Shards()
	name := "bucket-" + id.String() + ".xdr"
	if ext != "" {
		name += "." + ext
	}
	return fmt.Sprintf("bucket/%s/%s/%s/%s", xx, yy, zz, name)
}
