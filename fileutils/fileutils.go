// Package fileutils holds the filesystem helpers shared by the API
// client and the sync engine: atomic downloads and the platform stat
// fields Go does not expose portably (birth time, access time).
package fileutils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFileAtomic writes data to path through a temp file in the same
// directory:
// 1. MkdirAll the parent
// 2. Write to path.mgost-tmp
// 3. Set atime/mtime on the temp file
// 4. Atomic rename tmp → path
//
// Readers never observe a partially written file. mtime is applied so
// a downloaded file carries the remote record's modified timestamp; a
// zero mtime leaves the write time untouched.
func WriteFileAtomic(path string, data []byte, atime, mtime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}

	tmpPath := path + ".mgost-tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}

	if !mtime.IsZero() {
		if atime.IsZero() {
			atime = time.Now()
		}
		if err := os.Chtimes(tmpPath, atime, mtime); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("chtimes tmp: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename tmp to dst: %w", err)
	}

	return nil
}
