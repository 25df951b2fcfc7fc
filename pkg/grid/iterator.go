package grid

import (
	"errors"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
)

// ErrZoomRange is returned when an iterator would start below its end zoom.
var ErrZoomRange = errors.New("start zoom is less than end zoom")

// GridIterator forward iterates over the tiles of a grid, starting at a
// maximum zoom level and sweeping up to a minimum zoom level.
//
// Iteration covers, at each zoom, the closed tile rectangle derived from a
// CRS extent. Within a zoom the column is fixed and rows are swept south to
// north; columns advance west to east; then the next lower zoom begins.
//
//	it, err := NewGridIterator(grid, extent, start, end)
//	for ; !it.Exhausted(); it.Next() {
//	    coord := it.Value()
//	}
type GridIterator struct {
	grid      *Grid
	startZoom uint8
	endZoom   uint8
	extent    geom.Bounds
	bounds    TileBounds
	current   TileCoordinate
	exhausted bool
}

// NewGridIterator creates an iterator over the tiles of a grid covered by
// the given CRS extent between two zoom levels, startZoom >= endZoom.
func NewGridIterator(g *Grid, extent geom.Bounds, startZoom, endZoom uint8) (*GridIterator, error) {
	if startZoom < endZoom {
		return nil, ErrZoomRange
	}

	it := &GridIterator{
		grid:      g,
		startZoom: startZoom,
		endZoom:   endZoom,
		extent:    extent,
	}
	it.setTileBounds(startZoom)

	return it, nil
}

// NewGridExtentIterator creates an iterator over the full extent of a grid.
func NewGridExtentIterator(g *Grid, startZoom, endZoom uint8) (*GridIterator, error) {
	return NewGridIterator(g, g.Extent(), startZoom, endZoom)
}

// setTileBounds derives the tile rectangle of the extent for a zoom level
// and positions the cursor at its lower left corner.
func (it *GridIterator) setTileBounds(zoom uint8) {
	ll := it.grid.CRSToTile(it.extent.LowerLeft(), zoom)
	ur := it.grid.CRSToTile(it.extent.UpperRight(), zoom)

	it.bounds = TileBounds{MinX: ll.X, MinY: ll.Y, MaxX: ur.X, MaxY: ur.Y}
	it.current = TileCoordinate{Zoom: zoom, X: ll.X, Y: ll.Y}
}

// Value returns the tile coordinate the iterator points at.
func (it *GridIterator) Value() TileCoordinate {
	return it.current
}

// Exhausted reports whether the iterator has passed the last tile.
func (it *GridIterator) Exhausted() bool {
	return it.exhausted
}

// Next advances the iterator by one tile.
func (it *GridIterator) Next() {
	if it.exhausted {
		return
	}

	switch {
	case it.current.Y < it.bounds.MaxY:
		it.current.Y++
	case it.current.X < it.bounds.MaxX:
		it.current.X++
		it.current.Y = it.bounds.MinY
	case it.current.Zoom > it.endZoom:
		it.setTileBounds(it.current.Zoom - 1)
	default:
		it.exhausted = true
	}
}

// Seek advances the iterator so that exactly n tiles precede the cursor.
// It is a no-op when the cursor is already at or beyond that position.
func (it *GridIterator) Seek(n uint64) {
	for pos := it.Position(); pos < n && !it.exhausted; pos++ {
		it.Next()
	}
}

// Position returns the number of tiles preceding the cursor in the sweep.
func (it *GridIterator) Position() uint64 {
	var pos uint64
	for zoom := it.startZoom; zoom > it.current.Zoom; zoom-- {
		ll := it.grid.CRSToTile(it.extent.LowerLeft(), zoom)
		ur := it.grid.CRSToTile(it.extent.UpperRight(), zoom)
		pos += uint64(ur.X-ll.X+1) * uint64(ur.Y-ll.Y+1)
	}

	rows := uint64(it.bounds.MaxY - it.bounds.MinY + 1)
	pos += uint64(it.current.X-it.bounds.MinX) * rows
	pos += uint64(it.current.Y - it.bounds.MinY)
	if it.exhausted {
		pos++
	}
	return pos
}

// Size returns the total number of tiles in the iteration.
func (it *GridIterator) Size() uint64 {
	var size uint64
	for zoom := int(it.endZoom); zoom <= int(it.startZoom); zoom++ {
		ll := it.grid.CRSToTile(it.extent.LowerLeft(), uint8(zoom))
		ur := it.grid.CRSToTile(it.extent.UpperRight(), uint8(zoom))
		size += uint64(ur.X-ll.X+1) * uint64(ur.Y-ll.Y+1)
	}
	return size
}

// Reset repositions the iterator at the start of a new zoom sweep.
func (it *GridIterator) Reset(startZoom, endZoom uint8) error {
	if startZoom < endZoom {
		return ErrZoomRange
	}

	it.startZoom = startZoom
	it.endZoom = endZoom
	it.exhausted = false
	it.setTileBounds(startZoom)

	return nil
}
