package geom

import (
	"errors"
	"fmt"
)

// ErrInvalidBounds is returned when a bounds would violate min <= max.
var ErrInvalidBounds = errors.New("invalid bounds: minimum exceeds maximum")

// Bounds is an axis-aligned extent as {minx, miny, maxx, maxy}.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBounds creates a bounds from individual extents.
func NewBounds(minx, miny, maxx, maxy float64) (Bounds, error) {
	if minx > maxx {
		return Bounds{}, fmt.Errorf("%w: minx %g > maxx %g", ErrInvalidBounds, minx, maxx)
	}
	if miny > maxy {
		return Bounds{}, fmt.Errorf("%w: miny %g > maxy %g", ErrInvalidBounds, miny, maxy)
	}
	return Bounds{MinX: minx, MinY: miny, MaxX: maxx, MaxY: maxy}, nil
}

// MustBounds creates a bounds from extents known to be valid at compile time.
// It panics on invalid input.
func MustBounds(minx, miny, maxx, maxy float64) Bounds {
	b, err := NewBounds(minx, miny, maxx, maxy)
	if err != nil {
		panic(err)
	}
	return b
}

// BoundsFromCorners creates a bounds from lower-left and upper-right corners.
func BoundsFromCorners(lowerLeft, upperRight Point) (Bounds, error) {
	return NewBounds(lowerLeft.X, lowerLeft.Y, upperRight.X, upperRight.Y)
}

// Width returns the horizontal extent.
func (b Bounds) Width() float64 {
	return b.MaxX - b.MinX
}

// Height returns the vertical extent.
func (b Bounds) Height() float64 {
	return b.MaxY - b.MinY
}

// LowerLeft returns the lower left corner.
func (b Bounds) LowerLeft() Point {
	return Point{b.MinX, b.MinY}
}

// LowerRight returns the lower right corner.
func (b Bounds) LowerRight() Point {
	return Point{b.MaxX, b.MinY}
}

// UpperLeft returns the upper left corner.
func (b Bounds) UpperLeft() Point {
	return Point{b.MinX, b.MaxY}
}

// UpperRight returns the upper right corner.
func (b Bounds) UpperRight() Point {
	return Point{b.MaxX, b.MaxY}
}

// SW returns the lower left quadrant.
func (b Bounds) SW() Bounds {
	return Bounds{b.MinX, b.MinY, b.MinX + b.Width()/2, b.MinY + b.Height()/2}
}

// NW returns the upper left quadrant.
func (b Bounds) NW() Bounds {
	return Bounds{b.MinX, b.MaxY - b.Height()/2, b.MinX + b.Width()/2, b.MaxY}
}

// NE returns the upper right quadrant.
func (b Bounds) NE() Bounds {
	return Bounds{b.MaxX - b.Width()/2, b.MaxY - b.Height()/2, b.MaxX, b.MaxY}
}

// SE returns the lower right quadrant.
func (b Bounds) SE() Bounds {
	return Bounds{b.MaxX - b.Width()/2, b.MinY, b.MaxX, b.MinY + b.Height()/2}
}

// Overlaps reports whether the two extents share interior area.
// Extents that only touch at an edge do not overlap.
func (b Bounds) Overlaps(other Bounds) bool {
	return b.MinX < other.MaxX && other.MinX < b.MaxX &&
		b.MinY < other.MaxY && other.MinY < b.MaxY
}
