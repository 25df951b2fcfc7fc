package terrain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// Heightmap tile dimensions.
const (
	// HeightmapSize is the width and height of the height grid in a tile.
	HeightmapSize = 65

	// HeightmapCellCount is the number of height samples in a tile.
	HeightmapCellCount = HeightmapSize * HeightmapSize

	// MaskCellCount is the number of bytes in a full water mask.
	MaskCellCount = grid.MaskSize * grid.MaskSize
)

// Heightmap format errors.
var (
	ErrTruncatedHeightmap = errors.New("truncated heightmap data")
	ErrHeightmapMask      = errors.New("heightmap water mask must be 1 or 65536 bytes")
)

// Child tile flags.
const (
	ChildSW uint8 = 1 << iota
	ChildSE
	ChildNW
	ChildNE
)

// QuantizeHeight converts a height in meters to the tile unit: the number
// of 1/5 meter units above -1000 meters, clamped to the uint16 range.
func QuantizeHeight(meters float64) uint16 {
	q := (meters + 1000) * 5
	if q < 0 {
		return 0
	}
	if q > 65535 {
		return 65535
	}
	return uint16(q)
}

// DequantizeHeight converts a tile height unit back to meters.
func DequantizeHeight(quantized uint16) float64 {
	return float64(quantized)/5 - 1000
}

// Heightmap is a Cesium heightmap terrain tile: a 65x65 grid of quantized
// heights, child-presence flags and a land/water mask.
type Heightmap struct {
	Coord    grid.TileCoordinate
	Heights  []uint16
	Children uint8
	Mask     []byte
}

// NewHeightmap creates an empty land tile for a tile coordinate.
func NewHeightmap(coord grid.TileCoordinate) *Heightmap {
	return &Heightmap{
		Coord:   coord,
		Heights: make([]uint16, HeightmapCellCount),
		Mask:    []byte{0},
	}
}

// HeightmapFromRaster quantizes a 65x65 float height window into a tile.
// The input is assumed to be meters above sea level, row-major from the
// north-west corner.
func HeightmapFromRaster(coord grid.TileCoordinate, rasterHeights []float32) (*Heightmap, error) {
	if len(rasterHeights) != HeightmapCellCount {
		return nil, fmt.Errorf("expected %d raster heights, got %d", HeightmapCellCount, len(rasterHeights))
	}

	t := NewHeightmap(coord)
	for i, h := range rasterHeights {
		t.Heights[i] = QuantizeHeight(float64(h))
	}
	return t, nil
}

// HasChildren reports whether any child flag is set.
func (t *Heightmap) HasChildren() bool {
	return t.Children != 0
}

// HasChild reports whether the given child flag is set.
func (t *Heightmap) HasChild(flag uint8) bool {
	return t.Children&flag == flag
}

// SetChild sets a child flag.
func (t *Heightmap) SetChild(flag uint8) {
	t.Children |= flag
}

// SetAllChildren sets or clears all four child flags.
func (t *Heightmap) SetAllChildren(on bool) {
	if on {
		t.Children = ChildSW | ChildSE | ChildNW | ChildNE
	} else {
		t.Children = 0
	}
}

// SetIsWater marks the whole tile as water.
func (t *Heightmap) SetIsWater() {
	t.Mask = []byte{1}
}

// SetIsLand marks the whole tile as land.
func (t *Heightmap) SetIsLand() {
	t.Mask = []byte{0}
}

// IsWater reports whether the whole tile is water.
func (t *Heightmap) IsWater() bool {
	return len(t.Mask) == 1 && t.Mask[0] != 0
}

// IsLand reports whether the whole tile is land.
func (t *Heightmap) IsLand() bool {
	return len(t.Mask) == 1 && t.Mask[0] == 0
}

// HasWaterMask reports whether the tile carries a full 256x256 water mask.
func (t *Heightmap) HasWaterMask() bool {
	return len(t.Mask) == MaskCellCount
}

// Encode serializes the tile to its binary wire format: heights as
// little-endian uint16s, the child flag byte, then the water mask.
func (t *Heightmap) Encode() ([]byte, error) {
	if len(t.Heights) != HeightmapCellCount {
		return nil, fmt.Errorf("heightmap needs %d heights, got %d", HeightmapCellCount, len(t.Heights))
	}
	if len(t.Mask) != 1 && len(t.Mask) != MaskCellCount {
		return nil, ErrHeightmapMask
	}

	buf := make([]byte, 0, HeightmapCellCount*2+1+len(t.Mask))
	for _, h := range t.Heights {
		buf = binary.LittleEndian.AppendUint16(buf, h)
	}
	buf = append(buf, t.Children)
	buf = append(buf, t.Mask...)

	return buf, nil
}

// ParseHeightmap parses a raw (uncompressed) heightmap tile payload.
func ParseHeightmap(data []byte) (*Heightmap, error) {
	const heightBytes = HeightmapCellCount * 2

	var maskLen int
	switch len(data) {
	case heightBytes + 1 + 1:
		maskLen = 1
	case heightBytes + 1 + MaskCellCount:
		maskLen = MaskCellCount
	default:
		if len(data) < heightBytes+2 {
			return nil, ErrTruncatedHeightmap
		}
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrHeightmapMask, len(data))
	}

	t := &Heightmap{
		Heights: make([]uint16, HeightmapCellCount),
		Mask:    make([]byte, maskLen),
	}
	for i := range t.Heights {
		t.Heights[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	t.Children = data[heightBytes]
	copy(t.Mask, data[heightBytes+1:])

	return t, nil
}

// ParseHeightmapFile reads a gzip-compressed heightmap tile from disk.
func ParseHeightmapFile(path string, coord grid.TileCoordinate) (*Heightmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening terrain file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading terrain file %s: %w", path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing terrain file %s: %w", path, err)
	}

	t, err := ParseHeightmap(data)
	if err != nil {
		return nil, err
	}
	t.Coord = coord

	return t, nil
}
