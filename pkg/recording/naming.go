package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DirLayout is the timestamp layout used in chunk directory names.
const DirLayout = "02.01.2006-15.04.05"

const dirPrefix = "rec-"

// CameraDir returns the directory holding all chunks of one camera.
func CameraDir(root string, idx int) string {
	return filepath.Join(root, "cam-"+strconv.Itoa(idx))
}

// ChunkDirName returns the base name of a chunk created at t.
func ChunkDirName(t time.Time) string {
	return dirPrefix + t.Format(DirLayout)
}

// ParseChunkName recovers the creation time from a chunk directory or video
// file name. Collision suffixes and extensions are ignored.
func ParseChunkName(name string) (time.Time, bool) {
	if len(name) < len(dirPrefix)+len(DirLayout) || name[:len(dirPrefix)] != dirPrefix {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DirLayout, name[len(dirPrefix):len(dirPrefix)+len(DirLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NewChunkDir creates a fresh chunk directory for a camera. When a chunk
// with the same second already exists a -N suffix is appended.
func NewChunkDir(root string, idx int, now time.Time) (string, error) {
	parent := CameraDir(root, idx)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("failed to create camera directory %s: %w", parent, err)
	}

	base := ChunkDirName(now)
	name := base
	for n := 1; ; n++ {
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create chunk directory %s: %w", dir, err)
		}
		name = fmt.Sprintf("%s-%d", base, n)
	}
}
