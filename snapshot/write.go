package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/INLOpen/ledgersnap/sys"
)

// Format selects the document encoding of a written snapshot.
type Format string

const (
	FormatJSON Format = "json"
)

// ParseFormat resolves a configuration name. The empty string means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", &core.ValidationError{Field: "format", Value: s, Message: "unsupported output format"}
	}
}

// WriteOptions controls how a snapshot is persisted.
type WriteOptions struct {
	Format Format
	// Compression wraps the encoded document. Nil writes it as is.
	Compression core.StreamCodec
	// Indent pretty-prints JSON output.
	Indent bool
}

// Encode writes the snapshot document to w.
func Encode(w io.Writer, snap *LedgerSnapshot, opts WriteOptions) error {
	format := opts.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON {
		return &core.ValidationError{Field: "format", Value: string(format), Message: "unsupported output format"}
	}
	enc := json.NewEncoder(w)
	if opts.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(snap)
}

// Write persists snap at path. The document is written to a temporary file
// next to path, synced and renamed over it, so a failed write leaves any
// previous file at path untouched. Errors are *core.PersistError.
func Write(path string, snap *LedgerSnapshot, opts WriteOptions) error {
	fail := func(err error) error { return &core.PersistError{Path: path, Err: err} }

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(err)
	}
	f, err := sys.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fail(err)
	}
	committed := false
	defer func() {
		if !committed {
			sys.Discard(f)
		}
	}()

	bw := bufio.NewWriterSize(f, 256*1024)
	var w io.Writer = bw
	var cw io.WriteCloser
	if opts.Compression != nil {
		if cw, err = opts.Compression.NewWriter(bw); err != nil {
			return fail(fmt.Errorf("creating %s writer: %w", opts.Compression.Type(), err))
		}
		w = cw
	}
	if err := Encode(w, snap, opts); err != nil {
		return fail(fmt.Errorf("encoding snapshot: %w", err))
	}
	if cw != nil {
		if err := cw.Close(); err != nil {
			return fail(fmt.Errorf("closing %s writer: %w", opts.Compression.Type(), err))
		}
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}

	committed = true
	if err := sys.Commit(f, path); err != nil {
		return fail(err)
	}
	return nil
}
