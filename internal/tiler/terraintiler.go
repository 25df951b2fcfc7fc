package tiler

import (
	"fmt"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/terrain"
)

// TerrainTiler produces heightmap terrain tiles.
type TerrainTiler struct {
	*Tiler
}

// NewTerrainTiler constructs a heightmap tiler for a raster source.
func NewTerrainTiler(src RasterSource, g *grid.Grid, options Options) (*TerrainTiler, error) {
	t, err := New(src, g, options)
	if err != nil {
		return nil, err
	}
	return &TerrainTiler{Tiler: t}, nil
}

// CreateTile reads the height window for a tile coordinate through the
// worker's raster source and quantizes it into a heightmap tile.
func (t *TerrainTiler) CreateTile(src RasterSource, coord grid.TileCoordinate) (*terrain.Heightmap, error) {
	rasterHeights, err := t.readTileHeights(src, coord)
	if err != nil {
		return nil, fmt.Errorf("tile %d/%d/%d: %w", coord.Zoom, coord.X, coord.Y, err)
	}

	tile, err := terrain.HeightmapFromRaster(coord, rasterHeights)
	if err != nil {
		return nil, err
	}

	t.setChildren(tile.SetChild, tile.SetAllChildren, coord)

	if t.options.DetectWater && allBelowSeaLevel(rasterHeights) {
		tile.SetIsWater()
	}

	return tile, nil
}

func allBelowSeaLevel(heights []float32) bool {
	for _, h := range heights {
		if h > 0 {
			return false
		}
	}
	return true
}
