//go:build !linux && !darwin

package reaper

import (
	"io/fs"
	"time"
)

// CreationTime falls back to the modification time where no birth time is
// available.
func CreationTime(path string, info fs.FileInfo) time.Time {
	return info.ModTime()
}
