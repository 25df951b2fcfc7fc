package config

import "flag"

var (
	flagConfig        = flag.String("config", "", "Path to config file")
	flagOutput        = flag.String("o", "", "Output directory")
	flagProfile       = flag.String("p", "", "Tiling profile (geodetic or mercator)")
	flagFormat        = flag.String("f", "", "Tile format (Terrain or Mesh)")
	flagStartZoom     = flag.Int("s", ZoomAuto, "Zoom level to start at (default: derived from the raster)")
	flagEndZoom       = flag.Int("e", 0, "Zoom level to end at")
	flagQuiet         = flag.Bool("q", false, "Only log errors")
	flagVerbose       = flag.Bool("v", false, "Enable debug logging")
	flagResume        = flag.Bool("r", false, "Skip tiles that already exist")
	flagWorkers       = flag.Int("workers", 0, "Number of worker goroutines (default: number of CPUs)")
	flagVertexNormals = flag.Bool("vertex-normals", false, "Accepted for compatibility; vertex normals are not written")
	flagMeshQuality   = flag.Float64("mesh-quality-factor", 0, "Mesh quality factor")
	flagNoLayerJSON   = flag.Bool("no-layer-json", false, "Do not write the layer.json metadata sidecar")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via -config flag.
func ConfigPath() string {
	return *flagConfig
}

// InputFile returns the positional input raster path, if any.
func InputFile() string {
	return flag.Arg(0)
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagOutput != "" {
		cfg.Output.Directory = *flagOutput
	}
	if *flagProfile != "" {
		cfg.Tiling.Profile = *flagProfile
	}
	if *flagFormat != "" {
		cfg.Tiling.Format = *flagFormat
	}
	if *flagStartZoom != ZoomAuto {
		cfg.Tiling.StartZoom = *flagStartZoom
	}
	if *flagEndZoom != 0 {
		cfg.Tiling.EndZoom = *flagEndZoom
	}
	if *flagWorkers > 0 {
		cfg.Tiling.Workers = *flagWorkers
	}
	if *flagVertexNormals {
		cfg.Tiling.VertexNormals = true
	}
	if *flagMeshQuality > 0 {
		cfg.Tiling.MeshQualityFactor = *flagMeshQuality
	}
	if *flagResume {
		cfg.Output.Resume = true
	}
	if *flagNoLayerJSON {
		cfg.Output.LayerJSON = false
	}
	if *flagQuiet {
		cfg.Logging.Level = "error"
	}
	if *flagVerbose {
		cfg.Logging.Level = "debug"
	}
}
