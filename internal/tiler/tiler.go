package tiler

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/terrain"
)

// Tiler errors.
var (
	ErrNoGeoTransform = errors.New("could not get transformation information from source dataset")
	ErrReprojection   = errors.New("could not transform dataset bounds to grid SRS")
)

// boundsMu serializes dataset-bounds reprojection across Tiler
// construction: coordinate transformer bootstrapping is historically not
// re-entrant, and transformed bounds can differ slightly between threads
// otherwise.
var boundsMu sync.Mutex

// Tiler binds a grid to a raster source. It knows the dataset bounds in
// grid CRS coordinates, the native resolution and from those the maximum
// zoom level worth producing. Tilers are immutable after construction.
type Tiler struct {
	grid    *grid.Grid
	src     RasterSource
	options Options

	bounds               geom.Bounds
	resolution           float64
	requiresReprojection bool
}

// New constructs a tiler for a raster source on a grid.
func New(src RasterSource, g *grid.Grid, options Options) (*Tiler, error) {
	boundsMu.Lock()
	defer boundsMu.Unlock()

	gt, err := src.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGeoTransform, err)
	}

	width, height := src.Size()
	bounds := geom.Bounds{
		MinX: gt[0],
		MinY: gt[3] + float64(height)*gt[5],
		MaxX: gt[0] + float64(width)*gt[1],
		MaxY: gt[3],
	}

	t := &Tiler{grid: g, src: src, options: options}

	same, err := src.MatchesSRS(g.SRS())
	if err != nil {
		return nil, err
	}

	if same {
		t.bounds = bounds
		t.resolution = math.Abs(gt[1])
		return t, nil
	}

	// transform the four dataset corners to the grid SRS and take the
	// axis-aligned envelope
	xs := []float64{bounds.MinX, bounds.MaxX, bounds.MaxX, bounds.MinX}
	ys := []float64{bounds.MinY, bounds.MinY, bounds.MaxY, bounds.MaxY}
	if err := src.TransformToSRS(g.SRS(), xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReprojection, err)
	}

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = math.Min(minX, xs[i])
		maxX = math.Max(maxX, xs[i])
		minY = math.Min(minY, ys[i])
		maxY = math.Max(maxY, ys[i])
	}

	t.bounds = geom.Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
	t.resolution = t.bounds.Width() / float64(width)
	t.requiresReprojection = true

	return t, nil
}

// Grid returns the grid the tiler is bound to.
func (t *Tiler) Grid() *grid.Grid {
	return t.grid
}

// Options returns the tiler options.
func (t *Tiler) Options() Options {
	return t.options
}

// Bounds returns the dataset bounds in grid CRS coordinates.
func (t *Tiler) Bounds() geom.Bounds {
	return t.bounds
}

// Resolution returns the dataset resolution in grid CRS units per pixel.
func (t *Tiler) Resolution() float64 {
	return t.resolution
}

// RequiresReprojection reports whether the dataset SRS differs from the
// grid SRS.
func (t *Tiler) RequiresReprojection() bool {
	return t.requiresReprojection
}

// MaxZoom returns the deepest zoom level at which the grid resolution
// still matches the native dataset resolution.
func (t *Tiler) MaxZoom() uint8 {
	return t.grid.ZoomForResolution(t.resolution)
}

// TileExtent returns the tile rectangle covering the dataset at a zoom.
func (t *Tiler) TileExtent(zoom uint8) grid.TileBounds {
	ll := t.grid.CRSToTile(t.bounds.LowerLeft(), zoom)
	ur := t.grid.CRSToTile(t.bounds.UpperRight(), zoom)

	return grid.TileBounds{MinX: ll.X, MinY: ll.Y, MaxX: ur.X, MaxY: ur.Y}
}

// Iterator returns a grid iterator over the dataset extent.
func (t *Tiler) Iterator(startZoom, endZoom uint8) (*grid.GridIterator, error) {
	return grid.NewGridIterator(t.grid, t.bounds, startZoom, endZoom)
}

// terrainTileBounds returns the CRS bounds of the height window for a tile
// shifted to introduce the one-pixel overlap the heightmap specification
// demands: sampled cell centres align with tile grid vertices, and the
// edge rows of a tile equal those of its neighbours. The returned
// resolution is the sample spacing.
func (t *Tiler) terrainTileBounds(coord grid.TileCoordinate) (geom.Bounds, float64) {
	lTileSize := float64(t.grid.TileSize() - 1)
	tile := t.grid.TileBounds(coord)
	resolution := tile.Width() / lTileSize

	tile.MinX -= resolution
	tile.MaxY -= resolution

	return tile, resolution
}

// WindowGeoTransform returns the destination geotransform of the shifted
// height window for a tile.
func (t *Tiler) WindowGeoTransform(coord grid.TileCoordinate) [6]float64 {
	bounds, resolution := t.terrainTileBounds(coord)

	return [6]float64{
		bounds.MinX, // west edge of the window
		resolution,
		0,
		bounds.MaxY, // north edge of the window
		0,
		-resolution,
	}
}

// readTileHeights reads the height window of a tile through a worker's
// raster source.
func (t *Tiler) readTileHeights(src RasterSource, coord grid.TileCoordinate) ([]float32, error) {
	tileSize := int(t.grid.TileSize())
	return src.ReadHeights(t.WindowGeoTransform(coord), t.grid.SRS().WKT, tileSize, tileSize)
}

// setChildren flags the quadrants of a tile that overlap the dataset at
// the next zoom level. Tiles at the maximum zoom have no children.
func (t *Tiler) setChildren(setChild func(uint8), setAll func(bool), coord grid.TileCoordinate) {
	if coord.Zoom == t.MaxZoom() {
		setAll(false)
		return
	}

	tileBounds := t.grid.TileBounds(coord)
	if !t.bounds.Overlaps(tileBounds) {
		setAll(false)
		return
	}

	if t.bounds.Overlaps(tileBounds.SW()) {
		setChild(terrain.ChildSW)
	}
	if t.bounds.Overlaps(tileBounds.NW()) {
		setChild(terrain.ChildNW)
	}
	if t.bounds.Overlaps(tileBounds.NE()) {
		setChild(terrain.ChildNE)
	}
	if t.bounds.Overlaps(tileBounds.SE()) {
		setChild(terrain.ChildSE)
	}
}
