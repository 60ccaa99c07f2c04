package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/wachiwi/camwatch/pkg/camera"
)

var viewers metric.Int64UpDownCounter

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/camwatch/cmd/camwatch")
	viewers, err = meter.Int64UpDownCounter("camwatch.viewers",
		metric.WithDescription("Connected live view clients"),
		metric.WithUnit("{clients}"),
	)
	if err != nil {
		slog.Error("Failed to create viewer metrics", "error", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// frameInterval is how often streaming clients poll for a new frame.
const frameInterval = 16 * time.Millisecond // ~60 fps

type CameraHandler struct {
	Registry *camera.Registry
	// Ctx is the process context restarted sessions run under.
	Ctx     context.Context
	Quality int
}

func (h *CameraHandler) session(c *gin.Context) (*camera.Session, bool) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera index"})
		return nil, false
	}
	s, ok := h.Registry.Get(idx)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("camera %d not configured", idx)})
		return nil, false
	}
	return s, true
}

// encode returns the newest frame as JPEG if its sequence differs from last.
// The frame is copied out of the slot first so encoding never holds up the
// capture loop.
func (h *CameraHandler) encode(s *camera.Session, last uint64) ([]byte, uint64, error) {
	if seq := s.Slot.Seq(); seq == last {
		return nil, seq, nil
	}
	seq, img := s.Slot.SnapshotSince(last)
	if img == nil {
		return nil, seq, nil
	}

	quality := h.Quality
	if quality <= 0 {
		quality = 80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, seq, err
	}
	return buf.Bytes(), seq, nil
}

func (h *CameraHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.Registry.Statuses())
}

// Frame serves the newest frame as a single JPEG.
func (h *CameraHandler) Frame(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	frame, seq, err := h.encode(s, 0)
	if err != nil {
		slog.Error("Failed to encode frame", "camera", s.Index, "error", err)
		c.String(http.StatusInternalServerError, "Failed to encode frame")
		return
	}
	if len(frame) == 0 {
		c.String(http.StatusServiceUnavailable, "Camera not available")
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("X-Frame-Sequence", strconv.FormatUint(seq, 10))
	c.Data(http.StatusOK, "image/jpeg", frame)
}

// Stream serves the live view as multipart MJPEG. Frames are only encoded
// when the camera produced a new one.
func (h *CameraHandler) Stream(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if s.Errored() {
		c.String(http.StatusServiceUnavailable, "Camera not available")
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "Streaming not supported")
		return
	}

	ctx := c.Request.Context()
	viewers.Add(ctx, 1)
	defer viewers.Add(context.Background(), -1)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, seq, err := h.encode(s, last)
			if err != nil {
				slog.Error("Failed to encode frame", "camera", s.Index, "error", err)
				return
			}
			if len(frame) == 0 {
				continue
			}
			last = seq

			// Write MJPEG frame
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			w.Write(frame)
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
	}
}

// Socket pushes new frames as binary JPEG messages over a websocket.
func (h *CameraHandler) Socket(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Failed to upgrade to websocket", "camera", s.Index, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	viewers.Add(ctx, 1)
	defer viewers.Add(context.Background(), -1)
	slog.Info("Viewer connected", "camera", s.Index, "remote", conn.RemoteAddr().String())

	// The client never sends anything useful; reading detects a close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			slog.Info("Viewer disconnected", "camera", s.Index)
			return
		case <-ticker.C:
			frame, seq, err := h.encode(s, last)
			if err != nil {
				slog.Error("Failed to encode frame", "camera", s.Index, "error", err)
				return
			}
			if len(frame) == 0 {
				continue
			}
			last = seq

			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				slog.Debug("Websocket write failed", "camera", s.Index, "error", err)
				return
			}
		}
	}
}

// Restart brings a failed camera back. Cameras that are running or have
// not failed are left alone.
func (h *CameraHandler) Restart(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	err := s.Restart(h.Ctx)
	switch {
	case errors.Is(err, camera.ErrRunning), errors.Is(err, camera.ErrNotErrored):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, s.Status())
	}
}
