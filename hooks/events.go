package hooks

import (
	"time"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/levels"
)

// EventType names a hook event. Types starting with "Pre" can abort the
// operation that raised them.
type EventType string

const (
	EventPostFetchCheckpoint EventType = "PostFetchCheckpoint"

	// Bucket cache
	EventPreBucketDownload  EventType = "PreBucketDownload"
	EventPostBucketDownload EventType = "PostBucketDownload"
	EventOnBucketCacheHit   EventType = "OnBucketCacheHit"

	// Scanning, both the filter pass and code resolution
	EventPreBucketScan    EventType = "PreBucketScan"
	EventPostBucketScan   EventType = "PostBucketScan"
	EventOnCodeDiscovered EventType = "OnCodeDiscovered"

	// Output
	EventPreSnapshotWrite  EventType = "PreSnapshotWrite"
	EventPostSnapshotWrite EventType = "PostSnapshotWrite"
)

// HookEvent is an event passed to listeners.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent is the HookEvent implementation used by every constructor below.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// CheckpointPayload describes the checkpoint a run will snapshot.
type CheckpointPayload struct {
	ArchiveURL string
	Checkpoint *core.Checkpoint
	// Buckets is the number of distinct non-empty buckets it references.
	Buckets  int
	Duration time.Duration
}

func NewPostFetchCheckpointEvent(payload CheckpointPayload) HookEvent {
	return &BaseEvent{eventType: EventPostFetchCheckpoint, payload: payload}
}

// BucketPayload identifies a bucket and its cache file.
type BucketPayload struct {
	ID   core.BucketID
	Path string
}

// NewPreBucketDownloadEvent is raised on a cache miss, before the request.
func NewPreBucketDownloadEvent(payload BucketPayload) HookEvent {
	return &BaseEvent{eventType: EventPreBucketDownload, payload: payload}
}

// NewOnBucketCacheHitEvent is raised when a bucket is already cached.
func NewOnBucketCacheHitEvent(payload BucketPayload) HookEvent {
	return &BaseEvent{eventType: EventOnBucketCacheHit, payload: payload}
}

// PostBucketDownloadPayload reports a verified download.
type PostBucketDownloadPayload struct {
	ID       core.BucketID
	Path     string
	Bytes    int64
	Duration time.Duration
}

func NewPostBucketDownloadEvent(payload PostBucketDownloadPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBucketDownload, payload: payload}
}

// ScanPass tells the filter pass apart from code resolution.
type ScanPass int

const (
	PassFilter ScanPass = 1
	PassCode   ScanPass = 2
)

func (p ScanPass) String() string {
	if p == PassCode {
		return "code"
	}
	return "filter"
}

// BucketScanPayload identifies the bucket about to be read.
type BucketScanPayload struct {
	Bucket levels.BucketRef
	Pass   ScanPass
}

func NewPreBucketScanEvent(payload BucketScanPayload) HookEvent {
	return &BaseEvent{eventType: EventPreBucketScan, payload: payload}
}

// PostBucketScanPayload reports what one bucket contributed.
type PostBucketScanPayload struct {
	Bucket   levels.BucketRef
	Pass     ScanPass
	Records  int
	Retained int
}

func NewPostBucketScanEvent(payload PostBucketScanPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBucketScan, payload: payload}
}

// CodeDiscoveredPayload names a contract whose wasm was not requested but
// will be resolved.
type CodeDiscoveredPayload struct {
	Contract core.Address
	WasmHash core.Hash
}

func NewOnCodeDiscoveredEvent(payload CodeDiscoveredPayload) HookEvent {
	return &BaseEvent{eventType: EventOnCodeDiscovered, payload: payload}
}

// PreSnapshotWritePayload describes the snapshot about to be written.
type PreSnapshotWritePayload struct {
	Path    string
	Ledger  uint32
	Entries int
}

func NewPreSnapshotWriteEvent(payload PreSnapshotWritePayload) HookEvent {
	return &BaseEvent{eventType: EventPreSnapshotWrite, payload: payload}
}

// PostSnapshotWritePayload reports the outcome of the write.
type PostSnapshotWritePayload struct {
	Path     string
	Ledger   uint32
	Entries  int
	Duration time.Duration
	Error    error
}

func NewPostSnapshotWriteEvent(payload PostSnapshotWritePayload) HookEvent {
	return &BaseEvent{eventType: EventPostSnapshotWrite, payload: payload}
}
