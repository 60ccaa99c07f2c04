package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wachiwi/camwatch/pkg/recording"
)

type Recording struct {
	Camera  string    `json:"camera"`
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Started time.Time `json:"started"`
	Size    int64     `json:"size"`
}

type RecordingsHandler struct {
	Root     string
	VideoExt string
}

// Recordings lists encoded chunks, newest first. Raw chunk directories that
// are still being written are not listed.
func (h *RecordingsHandler) Recordings() ([]Recording, error) {
	cams, err := os.ReadDir(h.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Recording{}, nil
		}
		return nil, err
	}

	recordings := []Recording{}
	for _, cam := range cams {
		if !cam.IsDir() || !strings.HasPrefix(cam.Name(), "cam-") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(h.Root, cam.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != "."+h.VideoExt {
				continue
			}
			started, ok := recording.ParseChunkName(f.Name())
			if !ok {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			recordings = append(recordings, Recording{
				Camera:  cam.Name(),
				Name:    f.Name(),
				Path:    "/recordings/" + cam.Name() + "/" + f.Name(),
				Started: started,
				Size:    info.Size(),
			})
		}
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Started.After(recordings[j].Started)
	})
	return recordings, nil
}

func (h *RecordingsHandler) List(c *gin.Context) {
	recordings, err := h.Recordings()
	if err != nil {
		slog.Error("Failed to list recordings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recordings"})
		return
	}
	c.JSON(http.StatusOK, recordings)
}

// Download serves one encoded chunk.
func (h *RecordingsHandler) Download(c *gin.Context) {
	cam := c.Param("camera")
	name := c.Param("name")
	if !strings.HasPrefix(cam, "cam-") || filepath.Base(cam) != cam || filepath.Base(name) != name ||
		filepath.Ext(name) != "."+h.VideoExt {
		c.String(http.StatusBadRequest, "Invalid recording")
		return
	}

	path := filepath.Join(h.Root, cam, name)
	if _, err := os.Stat(path); err != nil {
		c.String(http.StatusNotFound, "Recording not found")
		return
	}
	c.FileAttachment(path, name)
}
