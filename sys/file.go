// Package sys holds the small file-system primitives the cache and the
// snapshot writer build their write-then-rename persistence on.
package sys

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"time"
)

// renameRetries bounds retries of a rename that fails because another
// handle still has the target open. Only Windows reports that case.
const renameRetries = 5

// CreateTemp creates a uniquely named file in dir. The pattern follows
// os.CreateTemp: the last "*" is replaced by a random string.
func CreateTemp(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}

// Rename atomically replaces newpath with oldpath. Both must be on the same
// file system.
func Rename(oldpath, newpath string) error {
	var err error
	for i := 0; i < renameRetries; i++ {
		if err = os.Rename(oldpath, newpath); err == nil {
			return nil
		}
		if runtime.GOOS != "windows" || errors.Is(err, fs.ErrNotExist) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 20 * time.Millisecond)
	}
	return err
}

// Remove deletes name. A missing file is not an error.
func Remove(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Commit makes the content of a temporary file durable and moves it over
// finalPath: fsync, close, rename. The temp file is removed if any step
// fails, so finalPath either keeps its old content or gets the complete new
// content.
func Commit(f *os.File, finalPath string) error {
	tempPath := f.Name()
	if err := SyncFile(f); err != nil {
		f.Close()
		_ = Remove(tempPath)
		return err
	}
	// Close the file BEFORE renaming. This is crucial for Windows compatibility.
	if err := f.Close(); err != nil {
		_ = Remove(tempPath)
		return err
	}
	if err := Rename(tempPath, finalPath); err != nil {
		_ = Remove(tempPath)
		return err
	}
	return nil
}

// Discard closes and removes a temporary file that will not be committed.
func Discard(f *os.File) {
	_ = f.Close()
	_ = Remove(f.Name())
}
