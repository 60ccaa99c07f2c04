package reaper

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// CreationTime returns the birth time of path, falling back to the
// modification time.
func CreationTime(path string, info fs.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return info.ModTime()
	}
	return time.Unix(st.Btim.Unix())
}
