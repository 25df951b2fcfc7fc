// terrain-tiler converts a GDAL-readable digital terrain model into a
// pyramid of Cesium terrain tiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Spacesium/spacesium-terrain-tiler/internal/config"
	"github.com/Spacesium/spacesium-terrain-tiler/internal/logger"
	"github.com/Spacesium/spacesium-terrain-tiler/internal/raster"
	"github.com/Spacesium/spacesium-terrain-tiler/internal/tiler"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/terrain"
)

// Exit codes.
const (
	exitOK = iota
	exitInputError
	exitIOError
)

func main() {
	flag.Usage = printUsage
	config.ParseFlags()

	os.Exit(run())
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `terrain-tiler - create Cesium terrain tiles from a GDAL raster

Usage:
  terrain-tiler [options] <input-file>

Options:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  terrain-tiler -o ./tiles dem.tif
  terrain-tiler -f Mesh -p geodetic -o ./tiles dem.tif
  terrain-tiler -r -s 12 -e 4 -o ./tiles dem.vrt
`)
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInputError
	}
	defer logger.Sync()

	input := config.InputFile()
	if input == "" {
		printUsage()
		return exitInputError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := raster.Open(input)
	if err != nil {
		logger.Error("opening input raster failed", zap.String("path", input), zap.Error(err))
		return exitInputError
	}
	defer ds.Close()

	g := buildGrid(cfg)

	options := tiler.Options{
		Resample:          cfg.Warp.Resample,
		ErrorThreshold:    cfg.Warp.ErrorThreshold,
		WarpMemoryLimit:   cfg.Warp.MemoryLimit,
		MeshQualityFactor: cfg.Tiling.MeshQualityFactor,
		DetectWater:       cfg.Tiling.DetectWater,
	}

	if cfg.Tiling.VertexNormals {
		logger.Warn("vertex normals are not written yet; the flag is accepted for compatibility")
	}

	// the metadata source never reads windows, so overview selection and
	// warp settings do not matter for it
	meta := raster.NewReader(ds.Ref(), raster.WarpOptions{})
	defer meta.Close()

	producer, t, err := buildProducer(cfg, meta, &g, options)
	if err != nil {
		logger.Error("initializing tiler failed", zap.Error(err))
		return exitInputError
	}

	startZoom := uint8(0)
	if cfg.Tiling.StartZoom == config.ZoomAuto {
		startZoom = t.MaxZoom()
	} else {
		startZoom = uint8(cfg.Tiling.StartZoom)
	}
	endZoom := uint8(cfg.Tiling.EndZoom)
	if startZoom < endZoom {
		logger.Error("start zoom is less than end zoom",
			zap.Uint8("start_zoom", startZoom), zap.Uint8("end_zoom", endZoom))
		return exitInputError
	}

	logger.Info("tiling dataset",
		zap.String("input", input),
		zap.String("profile", cfg.Tiling.Profile),
		zap.String("format", cfg.Tiling.Format),
		zap.Uint8("max_zoom", t.MaxZoom()),
		zap.Float64("resolution", t.Resolution()),
		zap.Bool("reprojecting", t.RequiresReprojection()),
	)

	serializer := tiler.NewSerializer(cfg.Output.Directory, cfg.Output.Resume)

	newSource := func() (tiler.RasterSource, func(), error) {
		reader := raster.NewReader(ds.Ref(), raster.WarpOptions{
			Resample:       cfg.Warp.Resample,
			ErrorThreshold: cfg.Warp.ErrorThreshold,
			MemoryLimit:    cfg.Warp.MemoryLimit,
			BaseResolution: t.Resolution(),
		})
		return reader, func() { reader.Close() }, nil
	}

	pipeline := tiler.NewPipeline(producer, serializer, newSource, cfg.Tiling.Workers)

	stats, err := pipeline.Run(ctx, startZoom, endZoom)
	if err != nil {
		logger.Error("tile production aborted", zap.Error(err))
		return exitIOError
	}

	if cfg.Output.LayerJSON {
		if err := writeLayerJSON(cfg, input, &g, t, endZoom, startZoom); err != nil {
			logger.Error("writing layer.json failed", zap.Error(err))
			return exitIOError
		}
	}

	fmt.Printf("%d tiles written, %d skipped, %d failed (of %d)\n",
		stats.Written, stats.Skipped, stats.Failed, stats.Total)

	if stats.Failed > 0 {
		return exitIOError
	}
	return exitOK
}

// buildGrid constructs the tiling grid for the configured profile.
func buildGrid(cfg *config.Config) grid.Grid {
	tileSize := uint32(cfg.Tiling.TileSize)

	if cfg.Tiling.Profile == config.ProfileMercator {
		return grid.NewGlobalMercator(tileSize)
	}
	return grid.NewGlobalGeodetic(tileSize, true)
}

// buildProducer constructs the tile producer for the configured format.
func buildProducer(cfg *config.Config, src tiler.RasterSource, g *grid.Grid, options tiler.Options) (tiler.TileProducer, *tiler.Tiler, error) {
	if cfg.Tiling.Format == config.FormatMesh {
		mt, err := tiler.NewMeshTiler(src, g, options)
		if err != nil {
			return nil, nil, err
		}
		return tiler.MeshProducer{MeshTiler: mt}, mt.Tiler, nil
	}

	tt, err := tiler.NewTerrainTiler(src, g, options)
	if err != nil {
		return nil, nil, err
	}
	return tiler.HeightmapProducer{TerrainTiler: tt}, tt.Tiler, nil
}

// writeLayerJSON writes the metadata sidecar next to the tiles.
func writeLayerJSON(cfg *config.Config, input string, g *grid.Grid, t *tiler.Tiler, minZoom, maxZoom uint8) error {
	format := terrain.FormatHeightmap
	if cfg.Tiling.Format == config.FormatMesh {
		format = terrain.FormatQuantizedMesh
	}

	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	layer := terrain.NewLayerJSON(name, g, t.Bounds(), minZoom, maxZoom, format)

	return layer.WriteFile(cfg.Output.Directory)
}
