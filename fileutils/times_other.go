//go:build !linux && !darwin

package fileutils

import (
	"os"
	"time"
)

// BirthTime returns the modification time on platforms where the
// creation timestamp is not exposed through stat.
func BirthTime(path string, fi os.FileInfo) time.Time {
	return fi.ModTime()
}

// Atime returns the current time on platforms where the access
// timestamp is not exposed through stat.
func Atime(fi os.FileInfo) time.Time {
	return time.Now()
}
