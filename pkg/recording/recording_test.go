package recording

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEncoder struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (f *fakeEncoder) Encode(_ context.Context, job Job) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return []byte("boom"), f.err
	}
	return []byte("ok"), os.WriteFile(job.Output, []byte("video"), 0644)
}

func solid(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func newTestChunk(t *testing.T) *Chunk {
	t.Helper()
	dir, err := NewChunkDir(t.TempDir(), 0, time.Now())
	require.NoError(t, err)
	return NewChunk(dir, 10, BMPCodec{}, "mp4")
}

func frameNumbers(t *testing.T, dir string) []int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var nums []int
	for _, e := range entries {
		n, err := strconv.Atoi(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		require.NoError(t, err, e.Name())
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func TestChunkDirNaming(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 3, 7, 9, 5, 1, 0, time.Local)

	first, err := NewChunkDir(root, 2, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cam-2", "rec-07.03.2024-09.05.01"), first)

	// Same second: suffix instead of reusing the directory.
	second, err := NewChunkDir(root, 2, now)
	require.NoError(t, err)
	assert.Equal(t, first+"-1", second)

	parsed, ok := ParseChunkName(filepath.Base(second) + ".mp4")
	require.True(t, ok)
	assert.True(t, parsed.Equal(now))

	_, ok = ParseChunkName("notes.txt")
	assert.False(t, ok)
}

func TestWriteNumbersFramesFromZero(t *testing.T) {
	c := newTestChunk(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Write(solid(4, 4, uint8(i))))
	}

	assert.Equal(t, 3, c.Frames())
	assert.Equal(t, []int{0, 1, 2}, frameNumbers(t, c.Dir()))
}

func TestConcurrentBatchesStayContiguous(t *testing.T) {
	c := newTestChunk(t)

	const batches, size = 12, 5
	var wg sync.WaitGroup
	for b := 0; b < batches; b++ {
		frames := make([]*image.RGBA, size)
		for i := range frames {
			frames[i] = solid(2, 2, uint8(b))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := c.SaveBatch(frames)
			assert.NoError(t, err)
			assert.Equal(t, size, n)
		}()
	}
	wg.Wait()

	nums := frameNumbers(t, c.Dir())
	require.Len(t, nums, batches*size)
	for i, n := range nums {
		assert.Equal(t, i, n)
	}

	// Each batch is written as one run: frames 5k..5k+4 share a value.
	for start := 0; start < batches*size; start += size {
		var first color.Color
		for i := start; i < start+size; i++ {
			f, err := os.Open(filepath.Join(c.Dir(), strconv.Itoa(i)+".bmp"))
			require.NoError(t, err)
			img, _, err := image.Decode(f)
			f.Close()
			require.NoError(t, err)
			px := img.At(0, 0)
			if first == nil {
				first = px
			}
			assert.Equal(t, first, px, "frame %d interleaved with another batch", i)
		}
	}
}

func TestFinalizeEncodesAndRemovesRawFrames(t *testing.T) {
	c := newTestChunk(t)
	require.NoError(t, c.Write(solid(2, 2, 1)))

	enc := &fakeEncoder{}
	require.NoError(t, c.Finalize(context.Background(), enc))

	require.Len(t, enc.jobs, 1)
	assert.Equal(t, 10, enc.jobs[0].FrameRate)
	assert.Equal(t, "bmp", enc.jobs[0].ImageExt)

	_, err := os.Stat(c.Dir())
	assert.True(t, os.IsNotExist(err), "raw directory should be gone")
	_, err = os.Stat(c.VideoPath())
	assert.NoError(t, err)

	assert.ErrorIs(t, c.Write(solid(2, 2, 1)), ErrFinalized)
	assert.ErrorIs(t, c.Finalize(context.Background(), enc), ErrFinalized)
}

func TestFinalizeFailureStillRemovesDirectory(t *testing.T) {
	c := newTestChunk(t)
	require.NoError(t, c.Write(solid(2, 2, 1)))

	err := c.Finalize(context.Background(), &fakeEncoder{err: errors.New("exit status 1")})
	assert.ErrorIs(t, err, ErrEncode)

	_, statErr := os.Stat(c.Dir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestFinalizeKeepsFramesWhenEncoderMissing(t *testing.T) {
	c := newTestChunk(t)
	require.NoError(t, c.Write(solid(2, 2, 1)))

	err := c.Finalize(context.Background(), FFmpeg{Binary: "camwatch-no-such-encoder"})
	assert.ErrorIs(t, err, ErrEncode)
	assert.ErrorIs(t, err, ErrEncoderUnavailable)

	_, statErr := os.Stat(c.Dir())
	assert.NoError(t, statErr)
}

func TestFinalizeEmptyChunk(t *testing.T) {
	c := newTestChunk(t)
	enc := &fakeEncoder{}

	require.NoError(t, c.Finalize(context.Background(), enc))
	assert.Empty(t, enc.jobs)
	_, err := os.Stat(c.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestFinalizeWaitsForReservedBatches(t *testing.T) {
	c := newTestChunk(t)
	c.Reserve()

	done := make(chan error, 1)
	go func() { done <- c.Finalize(context.Background(), &fakeEncoder{}) }()

	select {
	case <-done:
		t.Fatal("Finalize returned before the reserved batch was written")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := c.SaveBatch([]*image.RGBA{solid(2, 2, 1)})
	require.NoError(t, err)
	c.Done()

	require.NoError(t, <-done)
	_, err = os.Stat(c.VideoPath())
	assert.NoError(t, err)
}

func TestFFmpegArgs(t *testing.T) {
	job := Job{
		Dir:       "/rec/cam-0/rec-07.03.2024-09.05.01",
		ImageExt:  "bmp",
		FrameRate: 30,
		Output:    "/rec/cam-0/rec-07.03.2024-09.05.01.mp4",
	}
	args := FFmpeg{}.Args(job)
	assert.Equal(t, []string{
		"-hide_banner",
		"-framerate", "30",
		"-start_number", "0",
		"-i", "rec-07.03.2024-09.05.01/%d.bmp",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		"rec-07.03.2024-09.05.01.mp4",
	}, args)
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor(".BMP")
	require.NoError(t, err)
	assert.Equal(t, "bmp", c.Ext())

	c, err = CodecFor("jpeg")
	require.NoError(t, err)
	assert.Equal(t, "jpg", c.Ext())

	_, err = CodecFor("tiff")
	assert.Error(t, err)
}
