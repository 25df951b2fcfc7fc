package grid

import (
	"math"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
)

// DefaultTileSize is the width and height of height data in a heightmap tile.
const DefaultTileSize = 65

// MaskSize is the width and height of water mask data in a tile.
const MaskSize = 256

// Grid models a TMS tiling profile. It is immutable after construction.
type Grid struct {
	tileSize          uint32
	extent            geom.Bounds
	srs               SRS
	rootTiles         uint32
	zoomFactor        float64
	initialResolution float64
	xOriginShift      float64
	yOriginShift      float64
}

// NewGrid initializes a grid from a tile size, the CRS extent it covers at
// zoom zero, a spatial reference system, the number of tiles along the wider
// axis at zoom zero and the per-zoom scale factor.
func NewGrid(tileSize uint32, extent geom.Bounds, srs SRS, rootTiles uint32, zoomFactor float64) Grid {
	return Grid{
		tileSize:          tileSize,
		extent:            extent,
		srs:               srs,
		rootTiles:         rootTiles,
		zoomFactor:        zoomFactor,
		initialResolution: extent.Width() / float64(rootTiles) / float64(tileSize),
		xOriginShift:      extent.Width() / 2,
		yOriginShift:      extent.Height() / 2,
	}
}

// TileSize returns the tile side length in pixels.
func (g *Grid) TileSize() uint32 {
	return g.tileSize
}

// SRS returns the spatial reference system of the grid.
func (g *Grid) SRS() SRS {
	return g.srs
}

// Extent returns the area covered by the grid in CRS coordinates.
func (g *Grid) Extent() geom.Bounds {
	return g.extent
}

// Resolution returns the size of a pixel in CRS units at a zoom level.
func (g *Grid) Resolution(zoom uint8) float64 {
	return g.initialResolution / math.Pow(g.zoomFactor, float64(zoom))
}

// ZoomForResolution returns the zoom level for a particular resolution.
// If the resolution does not exactly match a zoom level then the zoom level
// is rounded up to the next level, so the returned zoom's resolution is
// always at least as fine as the requested one.
func (g *Grid) ZoomForResolution(resolution float64) uint8 {
	// the epsilon keeps an exact zoom resolution from rounding up to the
	// next level through log noise
	zoom := math.Ceil(
		(math.Log(g.initialResolution)-math.Log(resolution))/math.Log(g.zoomFactor) - 1e-9,
	)
	if zoom < 0 {
		return 0
	}
	return uint8(zoom)
}

// CRSToPixels returns the pixel location of a CRS point at a zoom level.
func (g *Grid) CRSToPixels(coord geom.Point, zoom uint8) geom.Point {
	res := g.Resolution(zoom)
	return geom.Point{
		X: (g.xOriginShift + coord.X) / res,
		Y: (g.yOriginShift + coord.Y) / res,
	}
}

// PixelsToCRS converts pixel coordinates at a zoom level to CRS coordinates.
func (g *Grid) PixelsToCRS(pixel geom.Point, zoom uint8) geom.Point {
	res := g.Resolution(zoom)
	return geom.Point{
		X: pixel.X*res - g.xOriginShift,
		Y: pixel.Y*res - g.yOriginShift,
	}
}

// PixelsToTile returns the tile covering a pixel location. A pixel on a
// tile boundary belongs to the tile to the east or north of it.
func (g *Grid) PixelsToTile(pixel geom.Point) (x, y uint32) {
	return uint32(math.Floor(pixel.X / float64(g.tileSize))),
		uint32(math.Floor(pixel.Y / float64(g.tileSize)))
}

// CRSToTile returns the tile in which a CRS point falls at a zoom level.
func (g *Grid) CRSToTile(coord geom.Point, zoom uint8) TileCoordinate {
	x, y := g.PixelsToTile(g.CRSToPixels(coord, zoom))
	return TileCoordinate{Zoom: zoom, X: x, Y: y}
}

// TileBounds returns the CRS bounds of a particular tile.
func (g *Grid) TileBounds(coord TileCoordinate) geom.Bounds {
	lowerLeft := g.PixelsToCRS(geom.Point{
		X: float64(coord.X) * float64(g.tileSize),
		Y: float64(coord.Y) * float64(g.tileSize),
	}, coord.Zoom)
	upperRight := g.PixelsToCRS(geom.Point{
		X: float64(coord.X+1) * float64(g.tileSize),
		Y: float64(coord.Y+1) * float64(g.tileSize),
	}, coord.Zoom)

	return geom.Bounds{
		MinX: lowerLeft.X, MinY: lowerLeft.Y,
		MaxX: upperRight.X, MaxY: upperRight.Y,
	}
}

// TileExtent returns the extent covered by the grid in tile coordinates
// for a zoom level.
func (g *Grid) TileExtent(zoom uint8) TileBounds {
	ll := g.CRSToTile(g.extent.LowerLeft(), zoom)
	ur := g.CRSToTile(g.extent.UpperRight(), zoom)

	return TileBounds{MinX: ll.X, MinY: ll.Y, MaxX: ur.X, MaxY: ur.Y}
}
