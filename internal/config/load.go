package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrBadProfile   = errors.New("profile must be geodetic or mercator")
	ErrBadFormat    = errors.New("format must be Terrain or Mesh")
	ErrBadZoomRange = errors.New("start zoom must not be less than end zoom")
	ErrBadTileSize  = errors.New("tile size must be at least 2")
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	switch c.Tiling.Profile {
	case ProfileGeodetic, ProfileMercator:
	default:
		return fmt.Errorf("%w: got %q", ErrBadProfile, c.Tiling.Profile)
	}

	switch c.Tiling.Format {
	case FormatTerrain, FormatMesh:
	default:
		return fmt.Errorf("%w: got %q", ErrBadFormat, c.Tiling.Format)
	}

	if c.Tiling.StartZoom != ZoomAuto && c.Tiling.StartZoom < c.Tiling.EndZoom {
		return fmt.Errorf("%w: %d < %d", ErrBadZoomRange, c.Tiling.StartZoom, c.Tiling.EndZoom)
	}

	if c.Tiling.EndZoom < 0 {
		return fmt.Errorf("%w: end zoom %d is negative", ErrBadZoomRange, c.Tiling.EndZoom)
	}

	if c.Tiling.TileSize < 2 {
		return fmt.Errorf("%w: got %d", ErrBadTileSize, c.Tiling.TileSize)
	}

	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./terrain-tiler.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "terrain-tiler")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "terrain-tiler")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "terrain-tiler")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "terrain-tiler")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
