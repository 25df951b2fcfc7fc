package terrain

import (
	"errors"
	"math"
	"testing"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

func TestZigZag(t *testing.T) {
	tests := []struct {
		n       int
		encoded uint16
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{2, 4},
		{1000, 2000},
		{-1000, 1999},
	}

	for _, tc := range tests {
		if got := zigZagEncode(tc.n); got != tc.encoded {
			t.Errorf("zigZagEncode(%d) = %d, expected %d", tc.n, got, tc.encoded)
		}
		if got := zigZagDecode(tc.encoded); got != tc.n {
			t.Errorf("zigZagDecode(%d) = %d, expected %d", tc.encoded, got, tc.n)
		}
	}
}

func TestLLHToECEF(t *testing.T) {
	tests := []struct {
		name     string
		llh      geom.Vertex
		expected geom.Vertex
	}{
		{"equator prime meridian", geom.Vertex{X: 0, Y: 0, Z: 0}, geom.Vertex{X: 6378137, Y: 0, Z: 0}},
		{"equator 90E", geom.Vertex{X: 90, Y: 0, Z: 0}, geom.Vertex{X: 0, Y: 6378137, Z: 0}},
		{"north pole", geom.Vertex{X: 0, Y: 90, Z: 0}, geom.Vertex{X: 0, Y: 0, Z: 6356752.3142451793}},
	}

	const eps = 1e-6
	for _, tc := range tests {
		got := LLHToECEF(tc.llh)
		if math.Abs(got.X-tc.expected.X) > eps ||
			math.Abs(got.Y-tc.expected.Y) > eps ||
			math.Abs(got.Z-tc.expected.Z) > eps {
			t.Errorf("%s: LLHToECEF = %v, expected %v", tc.name, got, tc.expected)
		}
	}
}

func TestHorizonOcclusionPoint(t *testing.T) {
	// a point on the ellipsoid surface occludes from beyond itself, so the
	// occlusion point magnitude must exceed 1 in the scaled frame
	points := []geom.Vertex{
		LLHToECEF(geom.Vertex{X: 0, Y: 0, Z: 100}),
		LLHToECEF(geom.Vertex{X: 0.5, Y: 0.5, Z: 250}),
		LLHToECEF(geom.Vertex{X: -0.5, Y: -0.5, Z: 0}),
	}
	sphere := geom.BoundingSphereFromPoints(points)

	occlusion := HorizonOcclusionPoint(points, sphere.Center)
	if occlusion.Magnitude() <= 1 {
		t.Errorf("occlusion point magnitude %g should exceed the unit sphere", occlusion.Magnitude())
	}
}

// rampMeshTile builds a small mesh tile over geographic bounds.
func rampMeshTile() (*MeshTile, geom.Bounds) {
	bounds := geom.MustBounds(0, 0, 0.703125, 0.703125)
	tile := NewMeshTile(grid.NewTileCoordinate(8, 256, 128))

	tile.Mesh.Vertices = []geom.Vertex{
		{X: bounds.MinX, Y: bounds.MinY, Z: 10},
		{X: bounds.MaxX, Y: bounds.MinY, Z: 40},
		{X: bounds.MaxX, Y: bounds.MaxY, Z: 80},
		{X: bounds.MinX, Y: bounds.MaxY, Z: 25},
		{X: bounds.MinX + bounds.Width()/2, Y: bounds.MinY + bounds.Height()/2, Z: 55},
	}
	tile.Mesh.Indices = []uint32{
		0, 1, 2,
		2, 3, 0,
		3, 4, 0,
		1, 4, 2,
	}

	return tile, bounds
}

func TestMeshTile_EncodeRoundTrip(t *testing.T) {
	tile, bounds := rampMeshTile()

	data, err := tile.Encode(bounds)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	parsed, err := ParseMeshTile(data, bounds)
	if err != nil {
		t.Fatalf("ParseMeshTile failed: %v", err)
	}

	if len(parsed.Mesh.Vertices) != len(tile.Mesh.Vertices) {
		t.Fatalf("vertex count = %d, expected %d", len(parsed.Mesh.Vertices), len(tile.Mesh.Vertices))
	}
	if len(parsed.Mesh.Indices) != len(tile.Mesh.Indices) {
		t.Fatalf("index count = %d, expected %d", len(parsed.Mesh.Indices), len(tile.Mesh.Indices))
	}

	// indices survive exactly
	for i := range tile.Mesh.Indices {
		if parsed.Mesh.Indices[i] != tile.Mesh.Indices[i] {
			t.Fatalf("index %d = %d, expected %d", i, parsed.Mesh.Indices[i], tile.Mesh.Indices[i])
		}
	}

	// positions survive up to one quantization unit per axis
	uTol := bounds.Width() / maxQuantized * 1.01
	vTol := bounds.Height() / maxQuantized * 1.01
	hTol := 70.0 / maxQuantized * 1.01
	for i, v := range tile.Mesh.Vertices {
		p := parsed.Mesh.Vertices[i]
		if math.Abs(p.X-v.X) > uTol || math.Abs(p.Y-v.Y) > vTol || math.Abs(p.Z-v.Z) > hTol {
			t.Errorf("vertex %d drifted: got %v, expected %v", i, p, v)
		}
	}
}

func TestMeshTile_EncodeHeader(t *testing.T) {
	tile, bounds := rampMeshTile()

	data, err := tile.Encode(bounds)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// the fixed header is 88 bytes; vertex count follows
	if len(data) < 92 {
		t.Fatalf("payload too small: %d bytes", len(data))
	}

	parsed, err := ParseMeshTile(data, bounds)
	if err != nil {
		t.Fatalf("ParseMeshTile failed: %v", err)
	}

	// min and max heights recovered through the parsed vertex range
	minH, maxH := math.Inf(1), math.Inf(-1)
	for _, v := range parsed.Mesh.Vertices {
		minH = math.Min(minH, v.Z)
		maxH = math.Max(maxH, v.Z)
	}
	if math.Abs(minH-10) > 0.01 || math.Abs(maxH-80) > 0.01 {
		t.Errorf("recovered height range [%g, %g], expected [10, 80]", minH, maxH)
	}
}

func TestMeshTile_EncodeDegenerate(t *testing.T) {
	tile := NewMeshTile(grid.NewTileCoordinate(0, 0, 0))
	bounds := geom.MustBounds(0, 0, 1, 1)

	// no triangles
	if _, err := tile.Encode(bounds); !errors.Is(err, ErrEncode) {
		t.Errorf("expected ErrEncode for empty mesh, got %v", err)
	}

	// dangling indices
	tile.Mesh.Vertices = []geom.Vertex{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}
	tile.Mesh.Indices = []uint32{0, 1}
	if _, err := tile.Encode(bounds); !errors.Is(err, ErrEncode) {
		t.Errorf("expected ErrEncode for partial triangle, got %v", err)
	}
}

func TestMeshTile_EdgeIndices(t *testing.T) {
	tile, bounds := rampMeshTile()

	data, err := tile.Encode(bounds)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// locate the edge index section: header(88) + count(4) + 3 buffers +
	// padding + triangle count(4) + 12 u16 indices
	vertexCount := len(tile.Mesh.Vertices)
	offset := 88 + 4 + vertexCount*2*3
	if offset%2 != 0 {
		offset++
	}
	offset += 4 + len(tile.Mesh.Indices)*2

	// four edges with one length-prefixed list each; corners appear on two
	// edges, the centre vertex on none
	counts := make([]uint32, 0, 4)
	for e := 0; e < 4; e++ {
		count := byteOrder.Uint32(data[offset:])
		counts = append(counts, count)
		offset += 4 + int(count)*2
	}

	for e, count := range counts {
		if count != 2 {
			t.Errorf("edge %d has %d vertices, expected 2", e, count)
		}
	}
	if offset != len(data) {
		t.Errorf("payload has %d trailing bytes", len(data)-offset)
	}
}

func TestMeshTile_ParseTruncated(t *testing.T) {
	if _, err := ParseMeshTile([]byte{1, 2, 3}, geom.MustBounds(0, 0, 1, 1)); !errors.Is(err, ErrTruncatedMeshTile) {
		t.Errorf("expected ErrTruncatedMeshTile, got %v", err)
	}
}
