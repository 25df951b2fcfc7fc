package terrain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// Quantized-mesh format errors.
var (
	ErrEncode            = errors.New("mesh tile cannot be encoded")
	ErrTruncatedMeshTile = errors.New("truncated quantized-mesh data")
)

// WGS84 ellipsoid constants.
const (
	wgs84A  = 6378137.0          // semi-major axis
	wgs84B  = 6356752.3142451793 // semi-minor axis
	wgs84E2 = 0.0066943799901975848
)

// maxQuantized is the largest quantized u, v or height coordinate.
const maxQuantized = 32767.0

// byteOrder is the wire byte order of terrain tiles.
var byteOrder = binary.LittleEndian

// LLHToECEF converts a geographic vertex (longitude and latitude in
// degrees, height in meters) to earth-centered earth-fixed coordinates.
func LLHToECEF(v geom.Vertex) geom.Vertex {
	lon := v.X * (math.Pi / 180)
	lat := v.Y * (math.Pi / 180)
	alt := v.Z

	sinLat := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return geom.Vertex{
		X: (n + alt) * math.Cos(lat) * math.Cos(lon),
		Y: (n + alt) * math.Cos(lat) * math.Sin(lon),
		Z: (n*(1-wgs84E2) + alt) * sinLat,
	}
}

// scaleToEllipsoid brings an ECEF point into the ellipsoid-scaled frame
// where the WGS84 ellipsoid becomes the unit sphere.
func scaleToEllipsoid(v geom.Vertex) geom.Vertex {
	return geom.Vertex{X: v.X / wgs84A, Y: v.Y / wgs84A, Z: v.Z / wgs84B}
}

// occlusionMagnitude computes the scale along the sphere-centre direction
// beyond which the given point no longer occludes the horizon.
func occlusionMagnitude(position, direction geom.Vertex) float64 {
	magnitudeSquared := position.MagnitudeSquared()
	magnitude := math.Sqrt(magnitudeSquared)

	// points below the ellipsoid are treated as being on it
	magnitudeSquared = math.Max(1, magnitudeSquared)
	magnitude = math.Max(1, magnitude)

	pointDirection := position.Scale(1 / magnitude)

	cosAlpha := pointDirection.Dot(direction)
	sinAlpha := pointDirection.Cross(direction).Magnitude()
	cosBeta := 1 / magnitude
	sinBeta := math.Sqrt(magnitudeSquared-1) * cosBeta

	return 1 / (cosAlpha*cosBeta - sinAlpha*sinBeta)
}

// HorizonOcclusionPoint computes the point from which, if occluded, every
// vertex of the tile is occluded. Points and the bounding sphere centre
// are ECEF coordinates.
func HorizonOcclusionPoint(points []geom.Vertex, sphereCenter geom.Vertex) geom.Vertex {
	scaledCenter := scaleToEllipsoid(sphereCenter)
	direction := scaledCenter.Normalize()

	maxMagnitude := math.Inf(-1)
	for _, p := range points {
		magnitude := occlusionMagnitude(scaleToEllipsoid(p), direction)
		if magnitude > maxMagnitude {
			maxMagnitude = magnitude
		}
	}

	return scaledCenter.Scale(maxMagnitude)
}

// zigZagEncode maps a signed delta onto an unsigned value
// (0 = 0, -1 = 1, 1 = 2, -2 = 3, ...).
func zigZagEncode(n int) uint16 {
	return uint16((n << 1) ^ (n >> 31))
}

// zigZagDecode reverses zigZagEncode.
func zigZagDecode(u uint16) int {
	return int(u>>1) ^ -int(u&1)
}

// meshTileHeader is the fixed-size header of a quantized-mesh tile.
type meshTileHeader struct {
	CenterX, CenterY, CenterZ float64

	MinimumHeight float32
	MaximumHeight float32

	BoundingSphereCenterX float64
	BoundingSphereCenterY float64
	BoundingSphereCenterZ float64
	BoundingSphereRadius  float64

	HorizonOcclusionPointX float64
	HorizonOcclusionPointY float64
	HorizonOcclusionPointZ float64
}

// MeshTile is a terrain tile in the Cesium quantized-mesh-1.0 format: an
// irregular triangle mesh in grid CRS coordinates with heights in meters.
type MeshTile struct {
	Coord    grid.TileCoordinate
	Mesh     Mesh
	Children uint8
}

// NewMeshTile creates an empty mesh tile for a tile coordinate.
func NewMeshTile(coord grid.TileCoordinate) *MeshTile {
	return &MeshTile{Coord: coord}
}

// HasChildren reports whether any child flag is set.
func (t *MeshTile) HasChildren() bool {
	return t.Children != 0
}

// SetChild sets a child flag.
func (t *MeshTile) SetChild(flag uint8) {
	t.Children |= flag
}

// SetAllChildren sets or clears all four child flags.
func (t *MeshTile) SetAllChildren(on bool) {
	if on {
		t.Children = ChildSW | ChildSE | ChildNW | ChildNE
	} else {
		t.Children = 0
	}
}

// reindexed returns a mesh whose vertices are ordered by first use in the
// index list, as the high water mark index encoding requires. Unreferenced
// vertices are dropped.
func (m *Mesh) reindexed() (*Mesh, error) {
	remap := make(map[uint32]uint32, len(m.Vertices))
	out := &Mesh{
		Vertices: make([]geom.Vertex, 0, len(m.Vertices)),
		Indices:  make([]uint32, len(m.Indices)),
	}

	for i, index := range m.Indices {
		if index >= uint32(len(m.Vertices)) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrEncode, index)
		}

		mapped, ok := remap[index]
		if !ok {
			mapped = uint32(len(out.Vertices))
			out.Vertices = append(out.Vertices, m.Vertices[index])
			remap[index] = mapped
		}
		out.Indices[i] = mapped
	}

	return out, nil
}

// quantize maps value within [origin, origin+span] onto [0, 32767].
func quantize(origin, span, value float64) int {
	if span == 0 {
		return 0
	}
	return int(math.Round((value - origin) / span * maxQuantized))
}

// Encode serializes the tile to the quantized-mesh-1.0 wire format. The
// tile CRS bounds scale vertex positions into the quantized u/v space.
func (t *MeshTile) Encode(bounds geom.Bounds) ([]byte, error) {
	if len(t.Mesh.Indices) < 3 || len(t.Mesh.Indices)%3 != 0 {
		return nil, fmt.Errorf("%w: mesh has %d indices", ErrEncode, len(t.Mesh.Indices))
	}
	if len(t.Mesh.Vertices) < 3 {
		return nil, fmt.Errorf("%w: mesh has %d vertices", ErrEncode, len(t.Mesh.Vertices))
	}

	mesh, err := t.Mesh.reindexed()
	if err != nil {
		return nil, err
	}

	minHeight, maxHeight := mesh.Vertices[0].Z, mesh.Vertices[0].Z
	for _, v := range mesh.Vertices[1:] {
		minHeight = math.Min(minHeight, v.Z)
		maxHeight = math.Max(maxHeight, v.Z)
	}

	// the header works on earth-centered coordinates
	ecef := make([]geom.Vertex, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		ecef[i] = LLHToECEF(v)
	}
	sphere := geom.BoundingSphereFromPoints(ecef)
	occlusion := HorizonOcclusionPoint(ecef, sphere.Center)

	header := meshTileHeader{
		CenterX:                sphere.Center.X,
		CenterY:                sphere.Center.Y,
		CenterZ:                sphere.Center.Z,
		MinimumHeight:          float32(minHeight),
		MaximumHeight:          float32(maxHeight),
		BoundingSphereCenterX:  sphere.Center.X,
		BoundingSphereCenterY:  sphere.Center.Y,
		BoundingSphereCenterZ:  sphere.Center.Z,
		BoundingSphereRadius:   sphere.Radius,
		HorizonOcclusionPointX: occlusion.X,
		HorizonOcclusionPointY: occlusion.Y,
		HorizonOcclusionPointZ: occlusion.Z,
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, byteOrder, header); err != nil {
		return nil, fmt.Errorf("writing mesh header: %w", err)
	}

	// vertex data: zigzag-encoded deltas of quantized u, v and height
	vertexCount := uint32(len(mesh.Vertices))
	if err := binary.Write(buf, byteOrder, vertexCount); err != nil {
		return nil, fmt.Errorf("writing vertex count: %w", err)
	}

	us := make([]uint16, vertexCount)
	vs := make([]uint16, vertexCount)
	hs := make([]uint16, vertexCount)
	heightSpan := maxHeight - minHeight

	prevU, prevV, prevH := 0, 0, 0
	for i, v := range mesh.Vertices {
		u := quantize(bounds.MinX, bounds.Width(), v.X)
		vv := quantize(bounds.MinY, bounds.Height(), v.Y)
		h := quantize(minHeight, heightSpan, v.Z)

		us[i] = zigZagEncode(u - prevU)
		vs[i] = zigZagEncode(vv - prevV)
		hs[i] = zigZagEncode(h - prevH)
		prevU, prevV, prevH = u, vv, h
	}
	for _, arr := range [][]uint16{us, vs, hs} {
		if err := binary.Write(buf, byteOrder, arr); err != nil {
			return nil, fmt.Errorf("writing vertex data: %w", err)
		}
	}

	// triangle indices, high water mark encoded
	use32 := vertexCount >= 65536
	pad(buf, use32)

	triangleCount := uint32(len(mesh.Indices) / 3)
	if err := binary.Write(buf, byteOrder, triangleCount); err != nil {
		return nil, fmt.Errorf("writing triangle count: %w", err)
	}

	highest := uint32(0)
	for _, index := range mesh.Indices {
		code := highest - index
		if err := writeIndex(buf, code, use32); err != nil {
			return nil, err
		}
		if code == 0 {
			highest++
		}
	}

	// edge indices: vertices lying exactly on each tile edge
	west := edgeIndices(mesh.Vertices, func(v geom.Vertex) bool { return v.X == bounds.MinX })
	south := edgeIndices(mesh.Vertices, func(v geom.Vertex) bool { return v.Y == bounds.MinY })
	east := edgeIndices(mesh.Vertices, func(v geom.Vertex) bool { return v.X == bounds.MaxX })
	north := edgeIndices(mesh.Vertices, func(v geom.Vertex) bool { return v.Y == bounds.MaxY })

	for _, edge := range [][]uint32{west, south, east, north} {
		if err := binary.Write(buf, byteOrder, uint32(len(edge))); err != nil {
			return nil, fmt.Errorf("writing edge count: %w", err)
		}
		for _, index := range edge {
			if err := writeIndex(buf, index, use32); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// pad aligns the buffer to 2 bytes for 16-bit indices or 4 bytes for
// 32-bit indices.
func pad(buf *bytes.Buffer, use32 bool) {
	align := 2
	if use32 {
		align = 4
	}
	if rem := buf.Len() % align; rem != 0 {
		buf.Write(make([]byte, align-rem))
	}
}

func writeIndex(buf *bytes.Buffer, index uint32, use32 bool) error {
	var err error
	if use32 {
		err = binary.Write(buf, byteOrder, index)
	} else {
		err = binary.Write(buf, byteOrder, uint16(index))
	}
	if err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// edgeIndices returns the indices of vertices matching an edge predicate,
// in vertex order.
func edgeIndices(vertices []geom.Vertex, onEdge func(geom.Vertex) bool) []uint32 {
	var indices []uint32
	for i, v := range vertices {
		if onEdge(v) {
			indices = append(indices, uint32(i))
		}
	}
	return indices
}

// ParseMeshTile decodes a quantized-mesh payload back into CRS vertices
// and triangle indices, using the tile CRS bounds for scaling. Vertex
// positions are recovered up to one quantization unit.
func ParseMeshTile(data []byte, bounds geom.Bounds) (*MeshTile, error) {
	r := bytes.NewReader(data)

	var header meshTileHeader
	if err := binary.Read(r, byteOrder, &header); err != nil {
		return nil, fmt.Errorf("%w: header", ErrTruncatedMeshTile)
	}

	var vertexCount uint32
	if err := binary.Read(r, byteOrder, &vertexCount); err != nil {
		return nil, fmt.Errorf("%w: vertex count", ErrTruncatedMeshTile)
	}

	us := make([]uint16, vertexCount)
	vs := make([]uint16, vertexCount)
	hs := make([]uint16, vertexCount)
	for _, arr := range [][]uint16{us, vs, hs} {
		if err := binary.Read(r, byteOrder, arr); err != nil {
			return nil, fmt.Errorf("%w: vertex data", ErrTruncatedMeshTile)
		}
	}

	tile := NewMeshTile(grid.TileCoordinate{})
	heightSpan := float64(header.MaximumHeight - header.MinimumHeight)

	tile.Mesh.Vertices = make([]geom.Vertex, vertexCount)
	u, v, h := 0, 0, 0
	for i := uint32(0); i < vertexCount; i++ {
		u += zigZagDecode(us[i])
		v += zigZagDecode(vs[i])
		h += zigZagDecode(hs[i])

		tile.Mesh.Vertices[i] = geom.Vertex{
			X: bounds.MinX + float64(u)/maxQuantized*bounds.Width(),
			Y: bounds.MinY + float64(v)/maxQuantized*bounds.Height(),
			Z: float64(header.MinimumHeight) + float64(h)/maxQuantized*heightSpan,
		}
	}

	use32 := vertexCount >= 65536
	skipPadding(r, len(data), use32)

	var triangleCount uint32
	if err := binary.Read(r, byteOrder, &triangleCount); err != nil {
		return nil, fmt.Errorf("%w: triangle count", ErrTruncatedMeshTile)
	}

	tile.Mesh.Indices = make([]uint32, triangleCount*3)
	highest := uint32(0)
	for i := range tile.Mesh.Indices {
		code, err := readIndex(r, use32)
		if err != nil {
			return nil, fmt.Errorf("%w: triangle indices", ErrTruncatedMeshTile)
		}
		tile.Mesh.Indices[i] = highest - code
		if code == 0 {
			highest++
		}
	}

	return tile, nil
}

func skipPadding(r *bytes.Reader, total int, use32 bool) {
	align := int64(2)
	if use32 {
		align = 4
	}
	consumed := int64(total) - int64(r.Len())
	if rem := consumed % align; rem != 0 {
		r.Seek(align-rem, 1)
	}
}

func readIndex(r *bytes.Reader, use32 bool) (uint32, error) {
	if use32 {
		var v uint32
		err := binary.Read(r, byteOrder, &v)
		return v, err
	}
	var v uint16
	err := binary.Read(r, byteOrder, &v)
	return uint32(v), err
}
