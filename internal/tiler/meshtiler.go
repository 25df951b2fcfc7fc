package tiler

import (
	"fmt"
	"math"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/terrain"
)

// heightmapTerrainQuality is the default quality of terrain created from
// heightmaps, matching the Cesium terrain provider.
const heightmapTerrainQuality = 0.25

// smoothingMaxZoom is the deepest zoom level at which the globe silhouette
// is smoothed; beyond it neighbour seams are matched instead.
const smoothingMaxZoom = 6

// neighbourCacheTTL bounds how long a labeled neighbour heightfield stays
// cached. Neighbour reuse is temporally local: at most the four adjacent
// tiles of the sweep want the same labeling.
const neighbourCacheTTL = 5 * time.Minute

// MeshTiler produces quantized-mesh terrain tiles by simplifying the
// height window of each tile within a geometric error bound.
type MeshTiler struct {
	*Tiler

	neighbours *ccache.Cache[*terrain.Heightfield]
	group      singleflight.Group
}

// NewMeshTiler constructs a mesh tiler for a raster source.
func NewMeshTiler(src RasterSource, g *grid.Grid, options Options) (*MeshTiler, error) {
	t, err := New(src, g, options)
	if err != nil {
		return nil, err
	}

	return &MeshTiler{
		Tiler:      t,
		neighbours: ccache.New(ccache.Configure[*terrain.Heightfield]().MaxSize(128)),
	}, nil
}

// LevelZeroGeometricError estimates the level zero geometric error for a
// heightmap-sourced terrain, as the Cesium terrain provider does.
func LevelZeroGeometricError(maximumRadius, quality float64, tileWidth, rootTiles int) float64 {
	return maximumRadius * 2 * math.Pi * quality / float64(tileWidth*rootTiles)
}

// geometricError returns the maximum geometric error budget for a zoom.
func (t *MeshTiler) geometricError(zoom uint8) float64 {
	resolutionAtLevelZero := t.grid.Resolution(0)
	rootTiles := int(math.Round(t.grid.Extent().Width() / (float64(t.grid.TileSize()) * resolutionAtLevelZero)))

	err := LevelZeroGeometricError(
		grid.SemiMajorAxis,
		heightmapTerrainQuality*t.options.MeshQualityFactor,
		int(t.grid.TileSize()),
		rootTiles,
	)

	return err / float64(uint64(1)<<zoom)
}

// CreateTile reads the height window for a tile coordinate, applies the
// chunked LOD simplification and emits the resulting mesh tile.
func (t *MeshTiler) CreateTile(src RasterSource, coord grid.TileCoordinate) (*terrain.MeshTile, error) {
	rasterHeights, err := t.readTileHeights(src, coord)
	if err != nil {
		return nil, fmt.Errorf("tile %d/%d/%d: %w", coord.Zoom, coord.X, coord.Y, err)
	}

	tileSize := int(t.grid.TileSize())
	hf, err := terrain.NewHeightfield(rasterHeights, tileSize)
	if err != nil {
		return nil, err
	}

	maxError := t.geometricError(coord.Zoom)
	hf.ApplyGeometricError(maxError, coord.Zoom <= smoothingMaxZoom)

	// propagate the activation state of neighbours to avoid seam cracks
	if coord.Zoom > smoothingMaxZoom {
		if err := t.applyNeighbourBorders(src, hf, coord, maxError); err != nil {
			return nil, err
		}
	}

	tile := terrain.NewMeshTile(coord)
	builder := terrain.NewStripBuilder(t.grid.TileBounds(coord), &tile.Mesh, tileSize, tileSize)
	hf.GenerateMesh(builder, 0)

	t.setChildren(tile.SetChild, tile.SetAllChildren, coord)

	return tile, nil
}

// applyNeighbourBorders labels each existing neighbour heightfield and
// copies its shared border activation state onto hf.
func (t *MeshTiler) applyNeighbourBorders(src RasterSource, hf *terrain.Heightfield, coord grid.TileCoordinate, maxError float64) error {
	for _, border := range []terrain.Border{
		terrain.BorderLeft, terrain.BorderTop, terrain.BorderRight, terrain.BorderBottom,
	} {
		neighbourCoord, ok := terrain.NeighborCoord(t.grid, coord, border)
		if !ok {
			continue
		}
		if !t.bounds.Overlaps(t.grid.TileBounds(neighbourCoord)) {
			continue
		}

		neighbour, err := t.neighbourHeightfield(src, neighbourCoord, maxError)
		if err != nil {
			return err
		}

		hf.ApplyBorderActivationState(neighbour, border)
	}

	return nil
}

// neighbourHeightfield returns the labeled heightfield of a neighbour
// tile. Labelings are cached because every interior tile is wanted by up
// to four neighbours, and concurrent workers asking for the same tile are
// collapsed into a single read.
func (t *MeshTiler) neighbourHeightfield(src RasterSource, coord grid.TileCoordinate, maxError float64) (*terrain.Heightfield, error) {
	key := fmt.Sprintf("%d/%d/%d", coord.Zoom, coord.X, coord.Y)

	if item := t.neighbours.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := t.group.Do(key, func() (interface{}, error) {
		heights, err := t.readTileHeights(src, coord)
		if err != nil {
			return nil, fmt.Errorf("neighbour tile %s: %w", key, err)
		}

		hf, err := terrain.NewHeightfield(heights, int(t.grid.TileSize()))
		if err != nil {
			return nil, err
		}
		hf.ApplyGeometricError(maxError, false)

		t.neighbours.Set(key, hf, neighbourCacheTTL)
		return hf, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*terrain.Heightfield), nil
}
