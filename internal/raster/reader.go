package raster

import (
	"fmt"
	"math"
	"strconv"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"

	"github.com/Spacesium/spacesium-terrain-tiler/internal/logger"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// overviewRatioTolerance accepts an overview whose downscale ratio is
// within this distance of the target ratio.
const overviewRatioTolerance = 0.1

// minOverviewSize stops the overview chain once a raster axis would drop
// below this many pixels.
const minOverviewSize = 5

// WarpOptions configure window reads.
type WarpOptions struct {
	// Resample names the warp resampling algorithm (gdalwarp -r).
	Resample string

	// ErrorThreshold is the approximation tolerance of the warp
	// transformer in pixels (gdalwarp -et).
	ErrorThreshold float64

	// MemoryLimit caps warper memory use in bytes (gdalwarp -wm).
	MemoryLimit float64

	// BaseResolution is the dataset resolution expressed in destination
	// CRS units per pixel; it anchors the overview selection ratio.
	BaseResolution float64
}

// Reader reads reprojected, resampled height windows from a shared
// dataset. It selects the raster overview best matching each requested
// resolution, and extends a chain of in-memory overviews whenever a read
// fails, working around integer overflow on extreme downsampling.
//
// A Reader is not safe for concurrent use; the pipeline gives one to each
// worker.
type Reader struct {
	d    *Dataset
	opts WarpOptions

	// in-memory overview datasets built after read failures, finest first
	overviews []*godal.Dataset
}

// NewReader creates a reader over a referenced dataset.
func NewReader(d *Dataset, opts WarpOptions) *Reader {
	return &Reader{d: d, opts: opts}
}

// Size returns the raster size of the underlying dataset.
func (r *Reader) Size() (int, int) {
	return r.d.Size()
}

// GeoTransform returns the affine transform of the underlying dataset.
func (r *Reader) GeoTransform() ([6]float64, error) {
	return r.d.GeoTransform()
}

// MatchesSRS reports whether the dataset SRS is the same as srs.
func (r *Reader) MatchesSRS(srs grid.SRS) (bool, error) {
	return r.d.MatchesSRS(srs)
}

// TransformToSRS reprojects points from the dataset SRS into srs in place.
func (r *Reader) TransformToSRS(srs grid.SRS, xs, ys []float64) error {
	return r.d.TransformToSRS(srs, xs, ys)
}

// ReadHeights warps the dataset into the window described by the
// destination geotransform and SRS, returning width*height heights.
//
// A failed read is recovered once per overview step: the reader builds the
// next coarser in-memory overview and retries; when no further overview
// can be built the read fails for good.
func (r *Reader) ReadHeights(geoTransform [6]float64, srsWKT string, width, height int) ([]float32, error) {
	for {
		heights, err := r.readWindow(r.source(), geoTransform, srsWKT, width, height)
		if err == nil {
			return heights, nil
		}

		if ovErr := r.extendOverviews(); ovErr != nil {
			return nil, fmt.Errorf("%w: %v (no further overview: %v)", ErrRasterRead, err, ovErr)
		}

		logger.Debug("raster read failed, retrying on a coarser overview",
			zap.Int("overviews", len(r.overviews)),
			zap.Error(err),
		)
	}
}

// Reset releases the in-memory overview chain. Call between tiles so one
// pathological window does not pin coarse overviews for the whole run.
func (r *Reader) Reset() {
	for i := len(r.overviews) - 1; i >= 0; i-- {
		r.overviews[i].Close()
	}
	r.overviews = r.overviews[:0]
}

// Close releases the overview chain and the reader's dataset reference.
func (r *Reader) Close() error {
	r.Reset()
	return r.d.Close()
}

// source returns the dataset reads should go through: the coarsest
// overview when the chain is non-empty, the shared base otherwise.
func (r *Reader) source() *godal.Dataset {
	if n := len(r.overviews); n > 0 {
		return r.overviews[n-1]
	}
	return r.d.ds
}

// readWindow performs one warped read attempt.
func (r *Reader) readWindow(src *godal.Dataset, geoTransform [6]float64, srsWKT string, width, height int) ([]float32, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	minX := geoTransform[0]
	maxY := geoTransform[3]
	maxX := minX + float64(width)*geoTransform[1]
	minY := maxY + float64(height)*geoTransform[5]

	nodata := strconv.FormatFloat(r.d.NoData(), 'f', -1, 64)

	switches := []string{
		"-of", "MEM",
		"-ot", "Float32",
		"-t_srs", srsWKT,
		"-te", formatFloat(minX), formatFloat(minY), formatFloat(maxX), formatFloat(maxY),
		"-ts", strconv.Itoa(width), strconv.Itoa(height),
		"-r", r.opts.Resample,
		"-srcnodata", nodata,
		"-dstnodata", nodata,
	}
	if r.opts.ErrorThreshold > 0 {
		switches = append(switches, "-et", formatFloat(r.opts.ErrorThreshold))
	}
	if r.opts.MemoryLimit > 0 {
		switches = append(switches, "-wm", formatFloat(r.opts.MemoryLimit))
	}
	if ovr := r.selectOverview(src, geoTransform[1]); ovr >= 0 {
		switches = append(switches, "-ovr", strconv.Itoa(ovr))
	} else {
		switches = append(switches, "-ovr", "NONE")
	}

	warped, err := godal.Warp("", []*godal.Dataset{src}, switches)
	if err != nil {
		return nil, fmt.Errorf("warping window: %w", err)
	}
	defer warped.Close()

	heights := make([]float32, width*height)
	if err := warped.Bands()[0].Read(0, 0, heights, width, height); err != nil {
		return nil, fmt.Errorf("reading warped window: %w", err)
	}

	return heights, nil
}

// selectOverview picks the pre-built overview level best matching the
// destination resolution, or -1 when the full-resolution raster should be
// used.
func (r *Reader) selectOverview(src *godal.Dataset, dstResolution float64) int {
	if r.opts.BaseResolution <= 0 {
		return -1
	}

	targetRatio := dstResolution / r.opts.BaseResolution

	overviews := src.Bands()[0].Overviews()
	srcXSize := float64(src.Structure().SizeX)

	ratios := make([]float64, len(overviews))
	for i, ov := range overviews {
		ratios[i] = srcXSize / float64(ov.Structure().SizeX)
	}

	return SelectOverviewLevel(targetRatio, ratios)
}

// SelectOverviewLevel picks the overview index whose downscale ratio best
// matches targetRatio, or -1 for the full-resolution raster. The scan
// mirrors gdalwarp's overview auto selection: walk the chain from fine to
// coarse and keep the last overview still finer than the target ratio,
// accepting a near-exact ratio outright.
func SelectOverviewLevel(targetRatio float64, ratios []float64) int {
	if targetRatio <= 1 {
		// upsampling; overviews cannot help
		return -1
	}
	if len(ratios) == 0 {
		return -1
	}

	selected := -1
	for i := -1; i < len(ratios)-1; i++ {
		ratio := 1.0
		if i >= 0 {
			ratio = ratios[i]
		}
		nextRatio := ratios[i+1]

		if ratio < targetRatio && nextRatio > targetRatio {
			selected = i
			break
		}
		if math.Abs(ratio-targetRatio) < overviewRatioTolerance {
			selected = i
			break
		}
		selected = i + 1
	}

	return selected
}

// extendOverviews builds the next coarser in-memory overview by halving
// the resolution of the current source.
func (r *Reader) extendOverviews() error {
	src := r.source()
	st := src.Structure()

	width := st.SizeX / 2
	height := st.SizeY / 2
	if width < minOverviewSize || height < minOverviewSize {
		return fmt.Errorf("raster too small to downsample below %dx%d", st.SizeX, st.SizeY)
	}

	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	overview, err := godal.Warp("", []*godal.Dataset{src}, []string{
		"-of", "MEM",
		"-ts", strconv.Itoa(width), strconv.Itoa(height),
		"-r", "average",
	})
	if err != nil {
		return fmt.Errorf("building overview: %w", err)
	}

	r.overviews = append(r.overviews, overview)
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
