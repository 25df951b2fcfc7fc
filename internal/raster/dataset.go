// Package raster adapts a GDAL dataset, through the godal bindings, to the
// narrow raster-source surface the tiler consumes.
package raster

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/airbusgeo/godal"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// Dataset errors.
var (
	ErrNoBands        = errors.New("at least one band must be present in the dataset")
	ErrMissingSRS     = errors.New("the source dataset does not have a spatial reference system assigned")
	ErrCorruptSRS     = errors.New("the source spatial reference system could not be parsed")
	ErrUnsupportedSRS = errors.New("the spatial reference system is not supported")
	ErrRasterRead     = errors.New("could not read heights from raster")
)

// defaultNoData substitutes for datasets that do not declare a nodata
// value.
const defaultNoData = -32768.0

var registerOnce sync.Once

// Dataset is a shared, reference-counted handle on an open GDAL raster.
// Every consumer holding a reference calls Close; the native handle is
// released when the last reference is dropped.
//
// Reads are serialized through an internal mutex because GDAL raster IO is
// not re-entrant on a single dataset handle.
type Dataset struct {
	ds   *godal.Dataset
	path string

	nodata    float64
	hasNodata bool

	mu   sync.Mutex
	refs atomic.Int32
}

// Open opens a GDAL-readable raster.
func Open(path string) (*Dataset, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if ds.Structure().NBands < 1 {
		ds.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNoBands)
	}

	d := &Dataset{ds: ds, path: path}
	d.refs.Store(1)

	band := ds.Bands()[0]
	d.nodata, d.hasNodata = band.NoData()

	return d, nil
}

// Path returns the path the dataset was opened from.
func (d *Dataset) Path() string {
	return d.path
}

// Ref acquires another reference to the dataset.
func (d *Dataset) Ref() *Dataset {
	d.refs.Add(1)
	return d
}

// Close drops a reference, releasing the native handle with the last one.
func (d *Dataset) Close() error {
	if d.refs.Add(-1) > 0 {
		return nil
	}
	return d.ds.Close()
}

// Size returns the raster width and height in pixels.
func (d *Dataset) Size() (int, int) {
	st := d.ds.Structure()
	return st.SizeX, st.SizeY
}

// GeoTransform returns the affine transform of the dataset.
func (d *Dataset) GeoTransform() ([6]float64, error) {
	return d.ds.GeoTransform()
}

// ProjectionWKT returns the dataset spatial reference in WKT form.
func (d *Dataset) ProjectionWKT() string {
	return d.ds.Projection()
}

// NoData returns the nodata value of the first band, substituting a
// default when the dataset does not declare one.
func (d *Dataset) NoData() float64 {
	if d.hasNodata {
		return d.nodata
	}
	return defaultNoData
}

// spatialRef parses the dataset SRS.
func (d *Dataset) spatialRef() (*godal.SpatialRef, error) {
	wkt := d.ds.Projection()
	if wkt == "" {
		return nil, ErrMissingSRS
	}

	sr, err := godal.NewSpatialRefFromWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSRS, err)
	}
	return sr, nil
}

// MatchesSRS reports whether the dataset SRS is the same as srs.
func (d *Dataset) MatchesSRS(srs grid.SRS) (bool, error) {
	srcSRS, err := d.spatialRef()
	if err != nil {
		return false, err
	}
	defer srcSRS.Close()

	dstSRS, err := godal.NewSpatialRefFromEPSG(srs.EPSG)
	if err != nil {
		return false, fmt.Errorf("%w: EPSG:%d: %v", ErrUnsupportedSRS, srs.EPSG, err)
	}
	defer dstSRS.Close()

	return srcSRS.IsSame(dstSRS), nil
}

// TransformToSRS reprojects points from the dataset SRS into srs in place.
func (d *Dataset) TransformToSRS(srs grid.SRS, xs, ys []float64) error {
	srcSRS, err := d.spatialRef()
	if err != nil {
		return err
	}
	defer srcSRS.Close()

	dstSRS, err := godal.NewSpatialRefFromEPSG(srs.EPSG)
	if err != nil {
		return fmt.Errorf("%w: EPSG:%d: %v", ErrUnsupportedSRS, srs.EPSG, err)
	}
	defer dstSRS.Close()

	tr, err := godal.NewTransform(srcSRS, dstSRS)
	if err != nil {
		return fmt.Errorf("creating coordinate transformation: %w", err)
	}
	defer tr.Close()

	zs := make([]float64, len(xs))
	if err := tr.TransformEx(xs, ys, zs, nil); err != nil {
		return fmt.Errorf("transforming dataset corners: %w", err)
	}
	return nil
}
