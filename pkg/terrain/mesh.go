package terrain

import (
	"bufio"
	"fmt"
	"os"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
)

// Mesh is an irregular mesh of triangles with shared vertices. Indices come
// in triples, one per triangle, wound counterclockwise.
type Mesh struct {
	Vertices []geom.Vertex
	Indices  []uint32
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// WriteWKT dumps the mesh triangles as WKT polygons, one per line. Useful
// for inspecting tile output in GIS tooling.
func (m *Mesh) WriteWKT(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("creating WKT file: %w", err)
	}

	w := bufio.NewWriter(f)
	for i := 0; i+2 < len(m.Indices); i += 3 {
		v0 := m.Vertices[m.Indices[i]]
		v1 := m.Vertices[m.Indices[i+1]]
		v2 := m.Vertices[m.Indices[i+2]]

		fmt.Fprintf(w, "POLYGON Z((%.8f %.8f %f, %.8f %.8f %f, %.8f %.8f %f, %.8f %.8f %f))\n",
			v0.X, v0.Y, v0.Z,
			v1.X, v1.Y, v1.Z,
			v2.X, v2.Y, v2.Z,
			v0.X, v0.Y, v0.Z,
		)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing WKT file: %w", err)
	}

	return f.Close()
}

// StripBuilder converts the continuous triangle strip emitted by the
// heightfield chunker into an indexed triangle list in CRS coordinates.
// Grid vertices are deduplicated by grid index and the vertex order of
// every second triangle is swapped so the list is uniformly CCW.
type StripBuilder struct {
	bounds    geom.Bounds
	mesh      *Mesh
	cellSizeX float64
	cellSizeY float64

	indicesMap map[int]uint32
	triangle   [3][2]int
	triOdd     bool
	triIndex   int
}

// NewStripBuilder creates a builder targeting mesh, mapping grid vertices
// of a tileSize-wide heightfield into the CRS bounds of the tile.
func NewStripBuilder(bounds geom.Bounds, mesh *Mesh, tileSizeX, tileSizeY int) *StripBuilder {
	return &StripBuilder{
		bounds:     bounds,
		mesh:       mesh,
		cellSizeX:  bounds.Width() / float64(tileSizeX-1),
		cellSizeY:  bounds.Height() / float64(tileSizeY-1),
		indicesMap: make(map[int]uint32),
	}
}

// Clear discards accumulated mesh data.
func (b *StripBuilder) Clear() {
	b.mesh.Vertices = b.mesh.Vertices[:0]
	b.mesh.Indices = b.mesh.Indices[:0]
	b.indicesMap = make(map[int]uint32)
	b.triOdd = false
	b.triIndex = 0
}

// EmitVertex appends a strip vertex, flushing a triangle for every vertex
// beyond the second. Degenerate triangles, used by the chunker to turn
// quadrant corners, are dropped.
func (b *StripBuilder) EmitVertex(hf *Heightfield, x, y int) {
	b.triangle[b.triIndex] = [2]int{x, y}
	b.triIndex++

	if b.triIndex < 3 {
		return
	}

	b.triOdd = !b.triOdd

	if b.triangle[0] != b.triangle[1] && b.triangle[1] != b.triangle[2] && b.triangle[0] != b.triangle[2] {
		if b.triOdd {
			b.appendVertex(hf, b.triangle[0][0], b.triangle[0][1])
			b.appendVertex(hf, b.triangle[1][0], b.triangle[1][1])
			b.appendVertex(hf, b.triangle[2][0], b.triangle[2][1])
		} else {
			b.appendVertex(hf, b.triangle[1][0], b.triangle[1][1])
			b.appendVertex(hf, b.triangle[0][0], b.triangle[0][1])
			b.appendVertex(hf, b.triangle[2][0], b.triangle[2][1])
		}
	}

	// slide the strip window
	b.triangle[0] = b.triangle[1]
	b.triangle[1] = b.triangle[2]
	b.triIndex--
}

// appendVertex pushes the CRS vertex for grid coordinate (x, y), reusing
// an existing index when the vertex was emitted before.
func (b *StripBuilder) appendVertex(hf *Heightfield, x, y int) {
	index := hf.index(x, y)

	iv, ok := b.indicesMap[index]
	if !ok {
		iv = uint32(len(b.mesh.Vertices))
		b.mesh.Vertices = append(b.mesh.Vertices, geom.Vertex{
			X: b.bounds.MinX + float64(x)*b.cellSizeX,
			Y: b.bounds.MaxY - float64(y)*b.cellSizeY,
			Z: float64(hf.Height(x, y)),
		})
		b.indicesMap[index] = iv
	}

	b.mesh.Indices = append(b.mesh.Indices, iv)
}
