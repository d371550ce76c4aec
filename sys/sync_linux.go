//go:build linux

package sys

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// SyncFile flushes file data to stable storage. On Linux fdatasync is enough
// since only the data and size need to be durable before the rename.
func SyncFile(f *os.File) error {
	for {
		err := unix.Fdatasync(int(f.Fd()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTSUP) {
			// Not supported by this file system, fall back to fsync.
			return f.Sync()
		}
		return err
	}
}
