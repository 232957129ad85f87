package fileutils

import (
	"os"
	"syscall"
	"time"
)

// BirthTime returns the creation timestamp of the file at path.
func BirthTime(path string, fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Birthtimespec.Sec), int64(st.Birthtimespec.Nsec))
	}
	return fi.ModTime()
}

// Atime returns the access timestamp recorded in fi.
func Atime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Atimespec.Sec), int64(st.Atimespec.Nsec))
	}
	return time.Now()
}
