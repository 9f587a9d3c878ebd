package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Backend    BackendConfig
	Camera     CameraConfig
	Scan       ScanConfig
	Enrollment EnrollmentConfig
	Admin      AdminConfig
	Web        WebConfig
	LogLevel   string
}

type BackendConfig struct {
	URL     string        // base URL of the attendance backend (e.g., http://localhost:5000)
	Timeout time.Duration // per-request deadline for recognition and detection calls
}

type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type ScanConfig struct {
	Interval          time.Duration `yaml:"interval"`
	FrameRetry        time.Duration `yaml:"frame_retry"`
	RecognizedBackoff int           `yaml:"recognized_backoff"`
	ModeSwitchPause   time.Duration `yaml:"mode_switch_pause"`
}

type EnrollmentConfig struct {
	PresenceInterval time.Duration `yaml:"presence_interval"`
	CountdownTick    time.Duration `yaml:"countdown_tick"`
	CountdownStart   int           `yaml:"countdown_start"`
	DetectorFallback bool          `yaml:"detector_fallback"` // treat detector errors as a presence sample
}

type AdminConfig struct {
	Token string // shared secret for mode switches; empty disables them
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins string // comma-separated CORS origins besides localhost
}

// defaults mirrors the layout of defaults.yaml.
type defaults struct {
	Scan       ScanConfig       `yaml:"scan"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Camera     CameraConfig     `yaml:"camera"`
	Backend    struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegativeInt is like envInt but accepts zero (camera index 0).
func envNonNegativeInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a duration such as "2s" or a bare number of milliseconds.
// Non-positive or unparsable values fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if ms, err := strconv.Atoi(s); err == nil {
		if ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envBool reads a boolean env var; anything strconv.ParseBool rejects keeps the default.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func loadDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := loadDefaults()

	return &Config{
		Backend: BackendConfig{
			URL:     strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
			Timeout: envDuration("BACKEND_TIMEOUT", d.Backend.Timeout),
		},
		Camera: CameraConfig{
			Device: envNonNegativeInt("CAMERA_DEVICE", d.Camera.Device),
			Width:  envInt("CAMERA_WIDTH", d.Camera.Width),
			Height: envInt("CAMERA_HEIGHT", d.Camera.Height),
		},
		Scan: ScanConfig{
			Interval:          envDuration("SCAN_INTERVAL", d.Scan.Interval),
			FrameRetry:        envDuration("SCAN_FRAME_RETRY", d.Scan.FrameRetry),
			RecognizedBackoff: envInt("SCAN_RECOGNIZED_BACKOFF", d.Scan.RecognizedBackoff),
			ModeSwitchPause:   envDuration("SCAN_MODE_SWITCH_PAUSE", d.Scan.ModeSwitchPause),
		},
		Enrollment: EnrollmentConfig{
			PresenceInterval: envDuration("ENROLL_PRESENCE_INTERVAL", d.Enrollment.PresenceInterval),
			CountdownTick:    envDuration("ENROLL_COUNTDOWN_TICK", d.Enrollment.CountdownTick),
			CountdownStart:   envInt("ENROLL_COUNTDOWN_START", d.Enrollment.CountdownStart),
			DetectorFallback: envBool("DETECTOR_FALLBACK", d.Enrollment.DetectorFallback),
		},
		Admin: AdminConfig{
			Token: os.Getenv("ADMIN_TOKEN"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}
