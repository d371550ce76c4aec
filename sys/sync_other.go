//go:build !linux

package sys

import "os"

// SyncFile flushes file data to stable storage.
func SyncFile(f *os.File) error {
	return f.Sync()
}
