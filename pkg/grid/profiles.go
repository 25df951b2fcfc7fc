package grid

import (
	"math"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
)

// SemiMajorAxis is the semi major axis of the WGS84 ellipsoid in meters.
const SemiMajorAxis = 6378137.0

// EarthCircumference is the equatorial circumference of the earth in meters.
var EarthCircumference = 2 * math.Pi * SemiMajorAxis

// OriginShift is the distance from the Mercator grid origin to its edge.
var OriginShift = EarthCircumference / 2

// NewGlobalGeodetic returns the TMS Global Geodetic profile: an EPSG:4326
// grid over [-180,-90,180,90]. When tmsCompatible is true the grid has two
// root tiles side by side at zoom zero, as the TMS specification requires;
// otherwise a single root tile is used.
func NewGlobalGeodetic(tileSize uint32, tmsCompatible bool) Grid {
	rootTiles := uint32(1)
	if tmsCompatible {
		rootTiles = 2
	}

	return NewGrid(
		tileSize,
		geom.Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90},
		EPSG4326,
		rootTiles,
		2,
	)
}

// NewGlobalMercator returns the TMS Global Mercator profile: an EPSG:3857
// grid with a single square root tile spanning the earth's circumference.
func NewGlobalMercator(tileSize uint32) Grid {
	return NewGrid(
		tileSize,
		geom.Bounds{
			MinX: -OriginShift, MinY: -OriginShift,
			MaxX: OriginShift, MaxY: OriginShift,
		},
		EPSG3857,
		1,
		2,
	)
}
