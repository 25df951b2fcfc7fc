// Package config handles tiler configuration loading and management.
package config

// Profile names the supported tiling grid profiles.
const (
	ProfileGeodetic = "geodetic"
	ProfileMercator = "mercator"
)

// Format names the supported tile output formats.
const (
	FormatTerrain = "Terrain"
	FormatMesh    = "Mesh"
)

// ZoomAuto selects the zoom level from the dataset resolution.
const ZoomAuto = -1

// Config holds all tiler settings.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Tiling  TilingConfig  `yaml:"tiling"`
	Warp    WarpConfig    `yaml:"warp"`
	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig holds tile output settings.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Resume    bool   `yaml:"resume"`
	LayerJSON bool   `yaml:"layer_json"`
}

// TilingConfig holds grid and tile production settings.
type TilingConfig struct {
	Profile           string  `yaml:"profile"`
	Format            string  `yaml:"format"`
	TileSize          int     `yaml:"tile_size"`
	StartZoom         int     `yaml:"start_zoom"` // ZoomAuto derives it from the raster
	EndZoom           int     `yaml:"end_zoom"`
	Workers           int     `yaml:"workers"` // 0 means NumCPU
	VertexNormals     bool    `yaml:"vertex_normals"`
	MeshQualityFactor float64 `yaml:"mesh_quality_factor"`
	DetectWater       bool    `yaml:"detect_water"`
}

// WarpConfig holds raster warp settings.
type WarpConfig struct {
	Resample       string  `yaml:"resample"`
	ErrorThreshold float64 `yaml:"error_threshold"`
	MemoryLimit    float64 `yaml:"memory_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Directory: ".",
			Resume:    false,
			LayerJSON: true,
		},
		Tiling: TilingConfig{
			Profile:           ProfileGeodetic,
			Format:            FormatTerrain,
			TileSize:          65,
			StartZoom:         ZoomAuto,
			EndZoom:           0,
			Workers:           0,
			MeshQualityFactor: 1.0,
		},
		Warp: WarpConfig{
			Resample:       "average",
			ErrorThreshold: 0.125,
			MemoryLimit:    0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
