package tiler

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Spacesium/spacesium-terrain-tiler/internal/logger"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// TileProducer turns a tile coordinate into an encoded payload using a
// worker's raster source. Both tile formats implement it.
type TileProducer interface {
	// Produce creates and encodes the tile for a coordinate.
	Produce(src RasterSource, coord grid.TileCoordinate) ([]byte, error)

	// Iterator enumerates the coordinates covering the dataset.
	Iterator(startZoom, endZoom uint8) (*grid.GridIterator, error)
}

// HeightmapProducer adapts a TerrainTiler to the pipeline.
type HeightmapProducer struct {
	*TerrainTiler
}

// Produce creates and encodes a heightmap tile.
func (p HeightmapProducer) Produce(src RasterSource, coord grid.TileCoordinate) ([]byte, error) {
	tile, err := p.CreateTile(src, coord)
	if err != nil {
		return nil, err
	}
	return tile.Encode()
}

// MeshProducer adapts a MeshTiler to the pipeline.
type MeshProducer struct {
	*MeshTiler
}

// Produce creates and encodes a quantized-mesh tile.
func (p MeshProducer) Produce(src RasterSource, coord grid.TileCoordinate) ([]byte, error) {
	tile, err := p.CreateTile(src, coord)
	if err != nil {
		return nil, err
	}
	return tile.Encode(p.Grid().TileBounds(coord))
}

// Stats summarize a pipeline run.
type Stats struct {
	Total   uint64
	Written uint64
	Skipped uint64
	Failed  uint64
}

// Pipeline drives tile production across parallel workers. Workers share
// an atomic cursor over the tile sweep: each advances a private iterator
// to the cursor position and post-increments it, so every coordinate is
// visited exactly once in an order consistent with the single-threaded
// sweep.
type Pipeline struct {
	producer   TileProducer
	serializer *Serializer
	newSource  func() (RasterSource, func(), error)
	workers    int
}

// NewPipeline creates a pipeline. newSource constructs a per-worker raster
// source and its cleanup function.
func NewPipeline(producer TileProducer, serializer *Serializer, newSource func() (RasterSource, func(), error), workers int) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Pipeline{
		producer:   producer,
		serializer: serializer,
		newSource:  newSource,
		workers:    workers,
	}
}

// Run produces every tile between the two zoom levels. Per-tile failures
// are logged and counted but do not stop other workers; the run aborts
// only on context cancellation or when a worker cannot be set up.
func (p *Pipeline) Run(ctx context.Context, startZoom, endZoom uint8) (Stats, error) {
	probe, err := p.producer.Iterator(startZoom, endZoom)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: probe.Size()}
	logger.Info("starting tile production",
		zap.Uint64("tiles", stats.Total),
		zap.Int("workers", p.workers),
		zap.Uint8("start_zoom", startZoom),
		zap.Uint8("end_zoom", endZoom),
	)

	var cursor atomic.Uint64
	group, ctx := errgroup.WithContext(ctx)

	for w := 0; w < p.workers; w++ {
		group.Go(func() error {
			src, cleanup, err := p.newSource()
			if err != nil {
				return fmt.Errorf("setting up worker raster source: %w", err)
			}
			defer cleanup()

			it, err := p.producer.Iterator(startZoom, endZoom)
			if err != nil {
				return err
			}

			for {
				if err := ctx.Err(); err != nil {
					return err
				}

				next := cursor.Add(1) - 1
				it.Seek(next)
				if it.Exhausted() {
					return nil
				}

				p.processTile(src, it.Value(), &stats)

				// drop per-tile source state such as a grown overview chain
				if r, ok := src.(interface{ Reset() }); ok {
					r.Reset()
				}
			}
		})
	}

	err = group.Wait()
	logger.Info("tile production finished",
		zap.Uint64("written", atomic.LoadUint64(&stats.Written)),
		zap.Uint64("skipped", atomic.LoadUint64(&stats.Skipped)),
		zap.Uint64("failed", atomic.LoadUint64(&stats.Failed)),
	)

	return stats, err
}

func (p *Pipeline) processTile(src RasterSource, coord grid.TileCoordinate, stats *Stats) {
	if p.serializer.ShouldSkip(coord) {
		atomic.AddUint64(&stats.Skipped, 1)
		return
	}

	payload, err := p.producer.Produce(src, coord)
	if err != nil {
		atomic.AddUint64(&stats.Failed, 1)
		logger.Error("tile production failed",
			zap.Uint8("z", coord.Zoom),
			zap.Uint32("x", coord.X),
			zap.Uint32("y", coord.Y),
			zap.Error(err),
		)
		return
	}

	written, err := p.serializer.Store(coord, payload)
	switch {
	case err != nil:
		atomic.AddUint64(&stats.Failed, 1)
		logger.Error("tile write failed",
			zap.Uint8("z", coord.Zoom),
			zap.Uint32("x", coord.X),
			zap.Uint32("y", coord.Y),
			zap.Error(err),
		)
	case written:
		atomic.AddUint64(&stats.Written, 1)
		logger.Debug("tile written",
			zap.Uint8("z", coord.Zoom),
			zap.Uint32("x", coord.X),
			zap.Uint32("y", coord.Y),
		)
	default:
		atomic.AddUint64(&stats.Skipped, 1)
	}
}
