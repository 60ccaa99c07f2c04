package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// EnvPath overrides the config file location when set.
const EnvPath = "CAMWATCH_CONFIG"

// Config is the on-disk application configuration.
type Config struct {
	RecordingsDir string              `yaml:"recordings_dir"`
	VideoDevices  []VideoDeviceConfig `yaml:"video_devices"`
	Capture       CaptureConfig       `yaml:"capture"`
	Recording     RecordingConfig     `yaml:"recording"`
	Encoder       EncoderConfig       `yaml:"encoder"`
	Retry         RetryConfig         `yaml:"retry"`
	Reaper        ReaperConfig        `yaml:"reaper"`
	Server        ServerConfig        `yaml:"server"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Log           LogConfig           `yaml:"log"`
}

// VideoDeviceConfig describes one capture device.
type VideoDeviceConfig struct {
	Idx                int                   `yaml:"idx"`
	Recording          DeviceRecordingConfig `yaml:"recording"`
	MaxResolutionWidth *int                  `yaml:"max_resolution_width,omitempty"`
}

type DeviceRecordingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MaxWidth returns the configured maximum output width or 0 when unset.
func (d VideoDeviceConfig) MaxWidth() int {
	if d.MaxResolutionWidth == nil {
		return 0
	}
	return *d.MaxResolutionWidth
}

// CaptureConfig selects how devices are opened.
type CaptureConfig struct {
	Backend     string  `yaml:"backend"`      // "opencv" or "ffmpeg"
	InputFormat string  `yaml:"input_format"` // ffmpeg backend only, e.g. v4l2 or avfoundation
	FPS         float64 `yaml:"fps"`          // ffmpeg backend only
	Width       int     `yaml:"width"`        // ffmpeg backend only
	Height      int     `yaml:"height"`       // ffmpeg backend only
}

type RecordingConfig struct {
	ImageExt     string        `yaml:"image_ext"`
	VideoExt     string        `yaml:"video_ext"`
	RingDuration time.Duration `yaml:"ring_duration"`
	ClipDuration time.Duration `yaml:"clip_duration"`
	QueueSize    int           `yaml:"queue_size"`
}

type EncoderConfig struct {
	Binary      string `yaml:"binary"`
	Codec       string `yaml:"codec"`
	PixelFormat string `yaml:"pixel_format"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	ResetAfter  time.Duration `yaml:"reset_after"`
	Backoff     time.Duration `yaml:"backoff"`
}

type ReaperConfig struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	User          string `yaml:"user,omitempty"`
	Password      string `yaml:"password,omitempty"`
	SessionSecret string `yaml:"session_secret,omitempty"`
}

// AuthEnabled reports whether the viewer requires a login.
func (s ServerConfig) AuthEnabled() bool {
	return s.User != "" && s.Password != ""
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		RecordingsDir: defaultRecordingsDir(),
		VideoDevices:  []VideoDeviceConfig{{Idx: 0}},
		Capture: CaptureConfig{
			Backend:     "opencv",
			InputFormat: defaultInputFormat(),
			FPS:         30,
			Width:       1280,
			Height:      720,
		},
		Recording: RecordingConfig{
			ImageExt:     "bmp",
			VideoExt:     "mp4",
			RingDuration: 2 * time.Second,
			ClipDuration: 4 * time.Minute,
			QueueSize:    32,
		},
		Encoder: EncoderConfig{
			Binary:      "ffmpeg",
			Codec:       "libx264",
			PixelFormat: "yuv420p",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			ResetAfter:  2 * time.Hour,
			Backoff:     time.Second,
		},
		Reaper: ReaperConfig{
			MaxAge:   48 * time.Hour,
			Interval: 6 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "otel-collector:4317",
			ServiceName: "camwatch",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config location, honouring CAMWATCH_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "camwatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "camwatch", "config.yaml")
}

// Load reads the config at path, filling unset fields with defaults.
// The merged result is written back so new options show up in the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first start, keep defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	// Generated once and persisted so logins survive restarts.
	if cfg.Server.AuthEnabled() && cfg.Server.SessionSecret == "" {
		cfg.Server.SessionSecret = uuid.NewString()
	}

	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.RecordingsDir) == "" {
		errs = append(errs, errors.New("recordings_dir must be set"))
	}
	for _, d := range c.VideoDevices {
		if d.Idx < 0 {
			errs = append(errs, fmt.Errorf("video device index %d is negative", d.Idx))
		}
		if d.MaxResolutionWidth != nil && *d.MaxResolutionWidth <= 0 {
			errs = append(errs, fmt.Errorf("video device %d: max_resolution_width must be positive", d.Idx))
		}
	}
	switch c.Capture.Backend {
	case "opencv", "ffmpeg":
	default:
		errs = append(errs, fmt.Errorf("unknown capture backend %q", c.Capture.Backend))
	}
	if c.Recording.RingDuration <= 0 {
		errs = append(errs, errors.New("recording.ring_duration must be positive"))
	}
	if c.Recording.ClipDuration < c.Recording.RingDuration {
		errs = append(errs, errors.New("recording.clip_duration must not be shorter than ring_duration"))
	}
	if c.Recording.QueueSize <= 0 {
		errs = append(errs, errors.New("recording.queue_size must be positive"))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry.max_attempts must not be negative"))
	}
	if c.Reaper.MaxAge <= 0 || c.Reaper.Interval <= 0 {
		errs = append(errs, errors.New("reaper.max_age and reaper.interval must be positive"))
	}

	return errors.Join(errs...)
}

// UniqueDevices drops devices whose index was already listed; the first
// entry for an index wins.
func (c *Config) UniqueDevices() []VideoDeviceConfig {
	seen := make(map[int]bool, len(c.VideoDevices))
	devices := make([]VideoDeviceConfig, 0, len(c.VideoDevices))
	for _, d := range c.VideoDevices {
		if seen[d.Idx] {
			continue
		}
		seen[d.Idx] = true
		devices = append(devices, d)
	}
	return devices
}

func defaultRecordingsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "recordings"
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Movies", "camwatch")
	}
	return filepath.Join(home, "Videos", "camwatch")
}

func defaultInputFormat() string {
	if runtime.GOOS == "darwin" {
		return "avfoundation"
	}
	return "v4l2"
}
