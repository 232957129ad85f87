package fileutils

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// BirthTime returns the creation timestamp of the file at path, read
// through statx. Falls back to the modification time when the kernel
// or filesystem does not report one.
func BirthTime(path string, fi os.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(int64(stx.Btime.Sec), int64(stx.Btime.Nsec))
	}
	return fi.ModTime()
}

// Atime returns the access timestamp recorded in fi, or the current
// time when the platform stat does not carry one.
func Atime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))
	}
	return time.Now()
}
