package archive

import (
	"fmt"
	"path"

	"github.com/INLOpen/ledgersnap/core"
)

const wellKnownStatePath = ".well-known/stellar-history.json"

// CheckpointPath returns the archive-relative path of the history archive
// state for a specific ledger, e.g. history/00/00/00/history-0000003f.json.
func CheckpointPath(ledger uint32) string {
	hex := fmt.Sprintf("%08x", ledger)
	return path.Join("history", hex[0:2], hex[2:4], hex[4:6], "history-"+hex+".json")
}

// BucketPath returns the archive-relative path of a bucket object. ext is the
// compression suffix without a dot; empty means the object is uncompressed.
func BucketPath(id core.BucketID, ext string) string {
	xx, yy, zz := id.Shards()
	name := "bucket-" + id.String() + ".xdr"
	if ext != "" {
		name += "." + ext
	}
	return path.Join("bucket", xx, yy, zz, name)
}
