// Package config loads the application configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/squatcoach/internal/logging"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// maxFileSize caps config files read from disk.
const maxFileSize = 1 << 20

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Store    StoreConfig    `yaml:"store"`
	LogLevel string         `yaml:"logLevel"`

	// Profile names the threshold profile to analyse with: a preset or a
	// stored profile name. The active_profile setting wins when set.
	Profile string `yaml:"profile"`
	// Thresholds are applied on top of the resolved profile.
	Thresholds map[string]any `yaml:"thresholds"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"staticDir"`
}

// CameraConfig selects the frame source. File wins over Device when set.
type CameraConfig struct {
	Device int    `yaml:"device"`
	File   string `yaml:"file"`
	FPS    int    `yaml:"fps"`
	Loop   bool   `yaml:"loop"`

	// Width and Height are requested from a device. Zero keeps the
	// capture default sized for full-body framing.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// Rotate turns frames clockwise by 0, 90, 180 or 270 degrees.
	Rotate int `yaml:"rotate"`
}

// DetectorConfig configures the pose service.
type DetectorConfig struct {
	ModelComplexity int     `yaml:"modelComplexity"`
	MinConfidence   float64 `yaml:"minConfidence"`
	MinTracking     float64 `yaml:"minTracking"`
}

// StoreConfig locates the profile database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := DataDir()
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Camera: CameraConfig{FPS: 15},
		Detector: DetectorConfig{
			ModelComplexity: 1,
			MinConfidence:   0.5,
			MinTracking:     0.5,
		},
		Store:    StoreConfig{Path: filepath.Join(dataDir, "squatcoach.db")},
		LogLevel: "info",
		Profile:  "beginner",
	}
}

// DataDir returns ~/.squatcoach, or .squatcoach when the home directory is
// unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".squatcoach"
	}
	return filepath.Join(home, ".squatcoach")
}

// Load reads a YAML config file over Default. Fields missing from the file
// keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that cannot be checked later.
func (c Config) Validate() error {
	var errs []error
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps must be > 0, got %d", c.Camera.FPS))
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		errs = append(errs, fmt.Errorf("camera.width and camera.height must be >= 0, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	switch c.Camera.Rotate {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, fmt.Errorf("camera.rotate must be 0, 90, 180 or 270, got %d", c.Camera.Rotate))
	}
	if c.Detector.ModelComplexity < 0 || c.Detector.ModelComplexity > 2 {
		errs = append(errs, fmt.Errorf("detector.modelComplexity must be 0, 1 or 2, got %d", c.Detector.ModelComplexity))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Thresholds != nil {
		if _, err := thresholds.Decode(thresholds.Beginner(), c.Thresholds); err != nil {
			errs = append(errs, fmt.Errorf("thresholds: %w", err))
		}
	}
	return errors.Join(errs...)
}
