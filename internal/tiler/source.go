// Package tiler binds a tiling grid to a raster source and produces
// terrain tiles from it.
package tiler

import (
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// Resampling algorithms accepted by a raster source.
const (
	ResampleNearest     = "near"
	ResampleBilinear    = "bilinear"
	ResampleCubic       = "cubic"
	ResampleCubicSpline = "cubicspline"
	ResampleLanczos     = "lanczos"
	ResampleAverage     = "average"
	ResampleMode        = "mode"
)

// RasterSource is the narrow surface the tiler needs from a geospatial
// raster library: dataset metadata, corner reprojection, and warped
// fixed-size float window reads.
//
// ReadHeights implementations are expected to pick a suitable raster
// overview for the requested resolution and may be stateful; the tiler
// uses one RasterSource per worker.
type RasterSource interface {
	// Size returns the raster width and height in pixels.
	Size() (int, int)

	// GeoTransform returns the affine transform of the dataset as the
	// six-element GDAL convention.
	GeoTransform() ([6]float64, error)

	// MatchesSRS reports whether the dataset spatial reference equals the
	// given one. It fails when the dataset has no or a corrupt SRS.
	MatchesSRS(srs grid.SRS) (bool, error)

	// TransformToSRS reprojects points from the dataset SRS to the given
	// SRS in place.
	TransformToSRS(srs grid.SRS, xs, ys []float64) error

	// ReadHeights warps the dataset into the window described by the
	// destination geotransform and spatial reference, returning
	// width*height float heights, row-major from the north-west corner.
	ReadHeights(geoTransform [6]float64, srsWKT string, width, height int) ([]float32, error)
}

// Options configure tile production.
type Options struct {
	// Resample names the warp resampling algorithm.
	Resample string

	// ErrorThreshold is the approximation error tolerance of the warp
	// transformer, in pixels.
	ErrorThreshold float64

	// WarpMemoryLimit caps the warper memory use in bytes; zero uses the
	// library default.
	WarpMemoryLimit float64

	// MeshQualityFactor scales the geometric error budget of mesh tiles.
	// Values above 1 allow more error and so produce coarser meshes.
	MeshQualityFactor float64

	// DetectWater marks tiles whose heights are all at or below sea level
	// as water.
	DetectWater bool
}

// DefaultOptions returns the option defaults.
func DefaultOptions() Options {
	return Options{
		Resample:          ResampleAverage,
		ErrorThreshold:    0.125,
		MeshQualityFactor: 1.0,
	}
}
