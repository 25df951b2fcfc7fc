package terrain

import (
	"errors"
	"math"
	"testing"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// makeField builds a 65x65 height grid from a function of grid coordinates.
func makeField(f func(x, y int) float32) []float32 {
	heights := make([]float32, HeightmapSize*HeightmapSize)
	for y := 0; y < HeightmapSize; y++ {
		for x := 0; x < HeightmapSize; x++ {
			heights[y*HeightmapSize+x] = f(x, y)
		}
	}
	return heights
}

// bumpyField is a deterministic non-planar height function.
func bumpyField(x, y int) float32 {
	return float32(200*math.Sin(float64(x)/7) + 150*math.Cos(float64(y)/5) + float64(x*y)/40)
}

func buildMesh(t *testing.T, hf *Heightfield, level int) *Mesh {
	t.Helper()

	bounds := geom.MustBounds(0, 0, 64, 64)
	mesh := &Mesh{}
	builder := NewStripBuilder(bounds, mesh, HeightmapSize, HeightmapSize)
	hf.GenerateMesh(builder, level)

	return mesh
}

func TestNewHeightfield_SizeValidation(t *testing.T) {
	for _, size := range []int{0, 2, 64, 66, 100} {
		if _, err := NewHeightfield(make([]float32, size*size), size); !errors.Is(err, ErrHeightfieldSize) {
			t.Errorf("size %d: expected ErrHeightfieldSize, got %v", size, err)
		}
	}

	for _, size := range []int{3, 5, 65, 129} {
		if _, err := NewHeightfield(make([]float32, size*size), size); err != nil {
			t.Errorf("size %d: unexpected error %v", size, err)
		}
	}
}

func TestHeightfield_ConstantFieldCollapses(t *testing.T) {
	heights := makeField(func(x, y int) float32 { return 500.0 })
	hf, err := NewHeightfield(heights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	hf.ApplyGeometricError(1.0, false)

	// only the four corners carry a level
	last := HeightmapSize - 1
	for y := 0; y < HeightmapSize; y++ {
		for x := 0; x < HeightmapSize; x++ {
			corner := (x == 0 || x == last) && (y == 0 || y == last)
			level := hf.Level(x, y)

			if corner && level != 0 {
				t.Errorf("corner (%d,%d) level = %d, expected 0", x, y, level)
			}
			if !corner && level != -1 {
				t.Errorf("interior (%d,%d) level = %d, expected -1", x, y, level)
			}
		}
	}

	mesh := buildMesh(t, hf, 0)
	if len(mesh.Vertices) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(mesh.Vertices))
	}
	if mesh.TriangleCount() != 2 {
		t.Errorf("expected 2 triangles, got %d", mesh.TriangleCount())
	}
}

func TestHeightfield_PlanarRampCollapses(t *testing.T) {
	heights := makeField(func(x, y int) float32 { return float32(100 * x) })
	hf, err := NewHeightfield(heights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	hf.ApplyGeometricError(1.0, false)
	mesh := buildMesh(t, hf, 0)

	// all midpoint errors on a plane are zero, so the ramp simplifies to
	// the same two triangles as a constant field
	if len(mesh.Vertices) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(mesh.Vertices))
	}
	if mesh.TriangleCount() != 2 {
		t.Errorf("expected 2 triangles, got %d", mesh.TriangleCount())
	}
}

func TestHeightfield_LevelMonotonicInError(t *testing.T) {
	heights := makeField(bumpyField)

	levelsFor := func(maxError float64) []int {
		hf, err := NewHeightfield(heights, HeightmapSize)
		if err != nil {
			t.Fatalf("NewHeightfield failed: %v", err)
		}
		hf.ApplyGeometricError(maxError, false)

		levels := make([]int, 0, HeightmapCellCount)
		for y := 0; y < HeightmapSize; y++ {
			for x := 0; x < HeightmapSize; x++ {
				levels = append(levels, hf.Level(x, y))
			}
		}
		return levels
	}

	errorsAsc := []float64{0.5, 1, 2, 4, 8, 16}
	prev := levelsFor(errorsAsc[0])
	for _, e := range errorsAsc[1:] {
		cur := levelsFor(e)
		for i := range cur {
			if cur[i] > prev[i] {
				t.Fatalf("vertex %d: level grew from %d to %d when error rose to %g", i, prev[i], cur[i], e)
			}
		}
		prev = cur
	}
}

func TestHeightfield_CornersAlwaysActive(t *testing.T) {
	heights := makeField(bumpyField)
	hf, err := NewHeightfield(heights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	hf.ApplyGeometricError(25, false)

	last := HeightmapSize - 1
	for _, corner := range [][2]int{{0, 0}, {last, 0}, {0, last}, {last, last}} {
		if hf.Level(corner[0], corner[1]) < 0 {
			t.Errorf("corner %v is not activated", corner)
		}
	}
}

func TestHeightfield_SmoothSmallZooms(t *testing.T) {
	heights := makeField(func(x, y int) float32 { return 0 })
	hf, err := NewHeightfield(heights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	hf.ApplyGeometricError(1.0, true)

	// the smoothing lattice activates every fourth vertex on a flat field
	step := (HeightmapSize - 1) / 16
	for y := 0; y < HeightmapSize; y += step {
		for x := 0; x < HeightmapSize; x += step {
			if hf.Level(x, y) < 0 {
				t.Errorf("lattice vertex (%d,%d) is not activated", x, y)
			}
		}
	}
}

func TestHeightfield_MeshWellFormed(t *testing.T) {
	heights := makeField(bumpyField)
	hf, err := NewHeightfield(heights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	hf.ApplyGeometricError(2, false)

	for level := 0; level <= 4; level++ {
		mesh := buildMesh(t, hf, level)

		if len(mesh.Indices)%3 != 0 {
			t.Fatalf("level %d: index count %d is not divisible by 3", level, len(mesh.Indices))
		}
		if mesh.TriangleCount() < 2 {
			t.Fatalf("level %d: mesh has %d triangles", level, mesh.TriangleCount())
		}

		for i, index := range mesh.Indices {
			if index >= uint32(len(mesh.Vertices)) {
				t.Fatalf("level %d: index %d out of range at %d", level, index, i)
			}
		}

		for i := 0; i+2 < len(mesh.Indices); i += 3 {
			a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
			if a == b || b == c || a == c {
				t.Fatalf("level %d: degenerate triangle (%d,%d,%d)", level, a, b, c)
			}
		}
	}
}

func TestHeightfield_MeshWindingCCW(t *testing.T) {
	heights := makeField(func(x, y int) float32 { return 500.0 })
	hf, err := NewHeightfield(heights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	hf.ApplyGeometricError(1.0, false)
	mesh := buildMesh(t, hf, 0)

	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		a := mesh.Vertices[mesh.Indices[i]]
		b := mesh.Vertices[mesh.Indices[i+1]]
		c := mesh.Vertices[mesh.Indices[i+2]]

		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross <= 0 {
			t.Errorf("triangle %d has clockwise winding", i/3)
		}
	}
}

func TestHeightfield_SeamContinuity(t *testing.T) {
	// two horizontally adjacent tiles cut from one shared height function:
	// the left tile's east column equals the right tile's west column
	parent := func(x, y int) float32 { return bumpyField(x, y) }
	last := HeightmapSize - 1

	leftHeights := makeField(func(x, y int) float32 { return parent(x, y) })
	rightHeights := makeField(func(x, y int) float32 { return parent(x+last, y) })

	left, err := NewHeightfield(leftHeights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}
	right, err := NewHeightfield(rightHeights, HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	leftRef, _ := NewHeightfield(append([]float32(nil), leftHeights...), HeightmapSize)
	rightRef, _ := NewHeightfield(append([]float32(nil), rightHeights...), HeightmapSize)

	for _, hf := range []*Heightfield{left, right, leftRef, rightRef} {
		hf.ApplyGeometricError(4, false)
	}

	left.ApplyBorderActivationState(rightRef, BorderRight)
	right.ApplyBorderActivationState(leftRef, BorderLeft)

	// after mutual application each side's border dominates both pre-seam
	// borders, so no vertex active on one side of the seam is missing on
	// the other
	for y := 0; y < HeightmapSize; y++ {
		bound := leftRef.Level(last, y)
		if l := rightRef.Level(0, y); l > bound {
			bound = l
		}

		if left.Level(last, y) < bound {
			t.Errorf("row %d: left border level %d below seam bound %d", y, left.Level(last, y), bound)
		}
		if right.Level(0, y) < bound {
			t.Errorf("row %d: right border level %d below seam bound %d", y, right.Level(0, y), bound)
		}
	}
}

func TestHeightfield_BorderAbsorption(t *testing.T) {
	this, err := NewHeightfield(makeField(func(x, y int) float32 { return 0 }), HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}
	neighbour, err := NewHeightfield(makeField(bumpyField), HeightmapSize)
	if err != nil {
		t.Fatalf("NewHeightfield failed: %v", err)
	}

	this.ApplyGeometricError(1, false)
	neighbour.ApplyGeometricError(1, false)

	this.ApplyBorderActivationState(neighbour, BorderRight)

	last := HeightmapSize - 1
	for y := 0; y < HeightmapSize; y++ {
		if nl := neighbour.Level(0, y); nl != -1 && this.Level(last, y) < nl {
			t.Errorf("row %d: border level %d below neighbour's %d", y, this.Level(last, y), nl)
		}
	}
}

func TestNeighborCoord(t *testing.T) {
	g := NewGlobalGeodeticForTest()

	tests := []struct {
		name     string
		coord    grid.TileCoordinate
		border   Border
		expected grid.TileCoordinate
		ok       bool
	}{
		{"left", grid.NewTileCoordinate(3, 4, 2), BorderLeft, grid.NewTileCoordinate(3, 3, 2), true},
		{"top", grid.NewTileCoordinate(3, 4, 2), BorderTop, grid.NewTileCoordinate(3, 4, 3), true},
		{"right", grid.NewTileCoordinate(3, 4, 2), BorderRight, grid.NewTileCoordinate(3, 5, 2), true},
		{"bottom", grid.NewTileCoordinate(3, 4, 2), BorderBottom, grid.NewTileCoordinate(3, 4, 1), true},
		{"west edge", grid.NewTileCoordinate(3, 0, 2), BorderLeft, grid.TileCoordinate{}, false},
		{"south edge", grid.NewTileCoordinate(3, 4, 0), BorderBottom, grid.TileCoordinate{}, false},
	}

	for _, tc := range tests {
		got, ok := NeighborCoord(g, tc.coord, tc.border)
		if ok != tc.ok || got != tc.expected {
			t.Errorf("%s: NeighborCoord = %+v,%v, expected %+v,%v", tc.name, got, ok, tc.expected, tc.ok)
		}
	}
}

// NewGlobalGeodeticForTest returns a geodetic grid for neighbour lookups.
func NewGlobalGeodeticForTest() *grid.Grid {
	g := grid.NewGlobalGeodetic(65, true)
	return &g
}
