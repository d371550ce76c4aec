package listeners

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/INLOpen/ledgersnap/hooks"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// ColorEnabled reports whether progress written to w should be coloured:
// w must be a terminal and NO_COLOR must be unset.
func ColorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ProgressListener prints one human readable line per run milestone.
type ProgressListener struct {
	mu  sync.Mutex
	out io.Writer

	info    *color.Color
	fetch   *color.Color
	found   *color.Color
	success *color.Color
}

// NewProgressListener writes progress to out. Register it with
// ProgressEvents.
func NewProgressListener(out io.Writer, useColor bool) *ProgressListener {
	l := &ProgressListener{
		out:     out,
		info:    color.New(color.FgCyan),
		fetch:   color.New(color.FgBlue),
		found:   color.New(color.FgYellow),
		success: color.New(color.FgGreen, color.Bold),
	}
	for _, c := range []*color.Color{l.info, l.fetch, l.found, l.success} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return l
}

// ProgressEvents lists the events a ProgressListener reports on.
var ProgressEvents = []hooks.EventType{
	hooks.EventPostFetchCheckpoint,
	hooks.EventPreBucketDownload,
	hooks.EventPostBucketDownload,
	hooks.EventPreBucketScan,
	hooks.EventPostBucketScan,
	hooks.EventOnCodeDiscovered,
	hooks.EventPostSnapshotWrite,
}

func (l *ProgressListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch p := event.Payload().(type) {
	case hooks.CheckpointPayload:
		l.info.Fprintf(l.out, "ℹ️  Ledger: %d\n", p.Checkpoint.CurrentLedger)
		l.info.Fprintf(l.out, "ℹ️  Network passphrase: %s\n", p.Checkpoint.NetworkPassphrase)
		l.info.Fprintf(l.out, "ℹ️  Buckets: %d\n", p.Buckets)
	case hooks.BucketPayload:
		l.fetch.Fprintf(l.out, "🌎 Downloading bucket %s\n", p.ID)
	case hooks.PostBucketDownloadPayload:
		l.fetch.Fprintf(l.out, "🌎 Downloaded bucket %s (%s)\n", p.ID, formatBytes(p.Bytes))
	case hooks.BucketScanPayload:
		verb := "Searching"
		if p.Pass == hooks.PassCode {
			verb = "Searching for code in"
		}
		l.info.Fprintf(l.out, "🔎 %s bucket %s\n", verb, p.Bucket)
	case hooks.PostBucketScanPayload:
		if p.Retained > 0 {
			l.found.Fprintf(l.out, "ℹ️  Found %d entries\n", p.Retained)
		}
	case hooks.CodeDiscoveredPayload:
		l.found.Fprintf(l.out, "ℹ️  Contract %s runs wasm %s\n", p.Contract, p.WasmHash)
	case hooks.PostSnapshotWritePayload:
		if p.Error == nil {
			l.success.Fprintf(l.out, "💾 Saved %d entries to %q\n", p.Entries, p.Path)
		}
	}
	return nil
}

// Priority runs progress output after logging-only listeners.
func (l *ProgressListener) Priority() int { return 200 }

// IsAsync is false so lines appear in event order.
func (l *ProgressListener) IsAsync() bool { return false }

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
