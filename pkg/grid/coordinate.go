// Package grid implements TMS tiling grids and tile coordinate algebra.
//
// A grid divides a projected extent into square tiles at successive zoom
// levels. Tile axes follow the TMS convention: x increases eastward, y
// increases northward, and y=0 is the southernmost row.
package grid

// TileCoordinate identifies a single tile by zoom level and tile point.
type TileCoordinate struct {
	Zoom uint8
	X    uint32
	Y    uint32
}

// NewTileCoordinate creates a tile coordinate from a zoom, x and y.
func NewTileCoordinate(zoom uint8, x, y uint32) TileCoordinate {
	return TileCoordinate{Zoom: zoom, X: x, Y: y}
}

// TileBounds is a closed rectangle of tile coordinates at one zoom level.
type TileBounds struct {
	MinX, MinY, MaxX, MaxY uint32
}

// Width returns the number of tile columns minus one.
func (b TileBounds) Width() uint32 {
	return b.MaxX - b.MinX
}

// Height returns the number of tile rows minus one.
func (b TileBounds) Height() uint32 {
	return b.MaxY - b.MinY
}

// Contains reports whether the tile point (x, y) lies within the rectangle.
func (b TileBounds) Contains(x, y uint32) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}
