package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camwatch", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.VideoDevices, 1)
	assert.Equal(t, 0, cfg.VideoDevices[0].Idx)
	assert.False(t, cfg.VideoDevices[0].Recording.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Recording.RingDuration)
	assert.Equal(t, 4*time.Minute, cfg.Recording.ClipDuration)
	assert.Equal(t, 48*time.Hour, cfg.Reaper.MaxAge)
	assert.Equal(t, 6*time.Hour, cfg.Reaper.Interval)

	// The defaults are persisted so the user has something to edit.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
recordings_dir: /srv/recordings
video_devices:
  - idx: 0
    recording:
      enabled: true
    max_resolution_width: 640
  - idx: 2
retry:
  max_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/recordings", cfg.RecordingsDir)
	require.Len(t, cfg.VideoDevices, 2)
	assert.True(t, cfg.VideoDevices[0].Recording.Enabled)
	assert.Equal(t, 640, cfg.VideoDevices[0].MaxWidth())
	assert.Equal(t, 0, cfg.VideoDevices[1].MaxWidth())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	// untouched sections keep their defaults
	assert.Equal(t, 2*time.Hour, cfg.Retry.ResetAfter)
	assert.Equal(t, "ffmpeg", cfg.Encoder.Binary)

	// Saved file round-trips through the loader.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
recordings_dir: ""
video_devices:
  - idx: 0
    max_resolution_width: 0
recording:
  ring_duration: 0s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recordings_dir")
	assert.Contains(t, err.Error(), "max_resolution_width")
	assert.Contains(t, err.Error(), "ring_duration")
}

func TestLoadGeneratesSessionSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  user: admin
  password: secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Server.AuthEnabled())
	require.NotEmpty(t, cfg.Server.SessionSecret)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.SessionSecret, again.Server.SessionSecret)
}

func TestUniqueDevices(t *testing.T) {
	width := 320
	cfg := Default()
	cfg.VideoDevices = []VideoDeviceConfig{
		{Idx: 1, MaxResolutionWidth: &width},
		{Idx: 0},
		{Idx: 1, Recording: DeviceRecordingConfig{Enabled: true}},
	}

	devices := cfg.UniqueDevices()
	require.Len(t, devices, 2)
	assert.Equal(t, 1, devices[0].Idx)
	assert.Equal(t, 320, devices[0].MaxWidth())
	assert.False(t, devices[0].Recording.Enabled, "first entry for an index wins")
	assert.Equal(t, 0, devices[1].Idx)
}

func TestDefaultPathFromEnv(t *testing.T) {
	t.Setenv(EnvPath, "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultPath())
}
