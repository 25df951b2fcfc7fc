package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// ErrHeightfieldSize is returned when a heightfield is not (2^n + 1) wide.
var ErrHeightfieldSize = errors.New("heightfield size must be a power of two plus one")

// Border identifies one of the four neighbouring tiles of a heightfield.
type Border int

// Border indices.
const (
	BorderLeft Border = iota
	BorderTop
	BorderRight
	BorderBottom
)

// notActivated is the nibble value marking a vertex with no activation level.
const notActivated = 0x0F

// maxActivationLevel is the largest level a nibble can carry.
const maxActivationLevel = 0x0E

// MeshBuilder consumes the triangle strip emitted by Heightfield.GenerateMesh.
// Vertices arrive in strip order.
type MeshBuilder interface {
	// Clear discards any accumulated mesh data.
	Clear()

	// EmitVertex appends the grid vertex (x, y) to the strip.
	EmitVertex(hf *Heightfield, x, y int)
}

// Heightfield is a regular (2^n+1) square grid of heights with a per-vertex
// activation level used to build view-independent LOD meshes. The approach
// is the chunked LOD strategy by Thatcher Ulrich applied to a fixed
// geometric error.
//
// Activation levels are nibble-packed: a vertex with even x uses the low
// nibble of its level byte and a vertex with odd x the high nibble. The
// value 0x0F means the vertex is not activated.
type Heightfield struct {
	size    int
	logSize int
	heights []float32
	levels  []byte
}

// NewHeightfield wraps a row-major height grid of side length size, which
// must be a power of two plus one (e.g. 65).
func NewHeightfield(heights []float32, size int) (*Heightfield, error) {
	logSize := int(math.Log2(float64(size-1)) + 0.5)
	if size < 3 || (1<<logSize)+1 != size {
		return nil, fmt.Errorf("%w: got %d", ErrHeightfieldSize, size)
	}
	if len(heights) != size*size {
		return nil, fmt.Errorf("heightfield needs %d heights, got %d", size*size, len(heights))
	}

	hf := &Heightfield{
		size:    size,
		logSize: logSize,
		heights: heights,
		levels:  make([]byte, size*size),
	}
	hf.resetLevels()

	return hf, nil
}

// Size returns the side length of the heightfield.
func (hf *Heightfield) Size() int {
	return hf.size
}

func (hf *Heightfield) resetLevels() {
	for i := range hf.levels {
		hf.levels[i] = 0xFF
	}
}

// index returns the array offset of a grid coordinate, row order.
func (hf *Heightfield) index(x, y int) int {
	return y*hf.size + x
}

// Height returns the height at a grid coordinate.
func (hf *Heightfield) Height(x, y int) float32 {
	return hf.heights[hf.index(x, y)]
}

// Level returns the activation level at (x, y), or -1 when not activated.
func (hf *Heightfield) Level(x, y int) int {
	level := int(hf.levels[hf.index(x, y)])
	if x&1 != 0 {
		level >>= 4
	}
	level &= notActivated
	if level == notActivated {
		return -1
	}
	return level
}

// setLevel stores an activation level into the nibble for (x, y).
func (hf *Heightfield) setLevel(x, y, newLevel int) {
	if newLevel > maxActivationLevel {
		newLevel = maxActivationLevel
	}
	newLevel &= notActivated

	i := hf.index(x, y)
	level := int(hf.levels[i])
	if x&1 != 0 {
		level = (level & 0x0F) | (newLevel << 4)
	} else {
		level = (level & 0xF0) | newLevel
	}
	hf.levels[i] = byte(level)
}

// activate raises the activation level of (x, y) to at least level.
func (hf *Heightfield) activate(x, y, level int) {
	if level > hf.Level(x, y) {
		hf.setLevel(x, y, level)
	}
}

// ApplyGeometricError labels every vertex with the smallest LOD level at
// which it must be retained to keep the triangulated surface within
// maxError heightfield units. When smoothSmallZooms is set, a sparse
// lattice of extra vertices is activated to keep the globe silhouette
// smooth at low zoom levels.
func (hf *Heightfield) ApplyGeometricError(maxError float64, smoothSmallZooms bool) {
	hf.resetLevels()

	// a view-independent Lindstrom-Koller style update on the two
	// triangles halving the square
	last := hf.size - 1
	hf.update(maxError, 0, last, last, last, 0, 0)
	hf.update(maxError, last, 0, 0, 0, last, last)

	// the corner verts are always part of the mesh
	hf.activate(last, 0, 0)
	hf.activate(0, 0, 0)
	hf.activate(0, last, 0)
	hf.activate(last, last, 0)

	if smoothSmallZooms {
		step := last / 16
		if step > 0 {
			for x := 0; x <= last; x += step {
				for y := 0; y <= last; y += step {
					if hf.Level(x, y) == -1 {
						hf.activate(x, y, 0)
					}
				}
			}
		}
	}

	hf.propagateAll()
}

// propagateAll propagates activation levels to parent verts, quadtree LOD
// style, which gives the same result as Lindstrom-Koller. The pass is run
// twice per target level; activation is a max so the repeat is idempotent
// and mops up orderings the single pass misses.
func (hf *Heightfield) propagateAll() {
	half := hf.size >> 1
	for i := 0; i < hf.logSize; i++ {
		hf.propagateActivationLevel(half, half, hf.logSize-1, i)
		hf.propagateActivationLevel(half, half, hf.logSize-1, i)
	}
}

// update computes an error value and activation level for the base vertex
// of the triangle (apex, right, left) and recurses into its children.
func (hf *Heightfield) update(maxError float64, ax, ay, rx, ry, lx, ly int) {
	dx := lx - rx
	dy := ly - ry

	if abs(dx) <= 1 && abs(dy) <= 1 {
		// base level: no base vertex and no child triangles
		return
	}

	// the base vert is midway between the left and right verts
	bx := rx + (dx >> 1)
	by := ry + (dy >> 1)

	heightB := float64(hf.Height(bx, by))
	heightL := float64(hf.Height(lx, ly))
	heightR := float64(hf.Height(rx, ry))
	errorB := math.Abs(heightB - (heightL+heightR)/2)

	if errorB >= maxError {
		// the mesh level above which this vertex must be included
		level := int(math.Floor(math.Log2(errorB/maxError) + 0.5))
		hf.activate(bx, by, level)
	}

	hf.update(maxError, bx, by, ax, ay, rx, ry) // base, apex, right
	hf.update(maxError, bx, by, lx, ly, ax, ay) // base, left, apex
}

// propagateActivationLevel descends the quadtree to the square centred at
// (cx, cy) with the given level. At the target level the child centre
// verts are propagated to the square's edge verts and the edge verts to
// its centre. Must be called with successively increasing target levels.
func (hf *Heightfield) propagateActivationLevel(cx, cy, level, targetLevel int) {
	halfSize := 1 << level
	quarterSize := halfSize >> 1

	if level > targetLevel {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				hf.propagateActivationLevel(
					cx-quarterSize+halfSize*i,
					cy-quarterSize+halfSize*j,
					level-1, targetLevel,
				)
			}
		}
		return
	}

	if level > 0 {
		// propagate child centre verts to the edge verts
		lev := hf.Level(cx+quarterSize, cy-quarterSize) // ne
		hf.activate(cx+halfSize, cy, lev)
		hf.activate(cx, cy-halfSize, lev)

		lev = hf.Level(cx-quarterSize, cy-quarterSize) // nw
		hf.activate(cx, cy-halfSize, lev)
		hf.activate(cx-halfSize, cy, lev)

		lev = hf.Level(cx-quarterSize, cy+quarterSize) // sw
		hf.activate(cx-halfSize, cy, lev)
		hf.activate(cx, cy+halfSize, lev)

		lev = hf.Level(cx+quarterSize, cy+quarterSize) // se
		hf.activate(cx, cy+halfSize, lev)
		hf.activate(cx+halfSize, cy, lev)
	}

	// propagate edge verts to the centre
	hf.activate(cx, cy, hf.Level(cx+halfSize, cy))
	hf.activate(cx, cy, hf.Level(cx, cy-halfSize))
	hf.activate(cx, cy, hf.Level(cx, cy+halfSize))
	hf.activate(cx, cy, hf.Level(cx-halfSize, cy))
}

// NeighborCoord returns the coordinate of the neighbour tile across the
// given border, or false when no such tile exists within the grid.
func NeighborCoord(g *grid.Grid, coord grid.TileCoordinate, border Border) (grid.TileCoordinate, bool) {
	switch border {
	case BorderLeft:
		if coord.X == 0 {
			return grid.TileCoordinate{}, false
		}
		return grid.NewTileCoordinate(coord.Zoom, coord.X-1, coord.Y), true

	case BorderTop:
		// TileExtent's upper bound is one past the last valid row
		if coord.Y+1 >= g.TileExtent(coord.Zoom).MaxY {
			return grid.TileCoordinate{}, false
		}
		return grid.NewTileCoordinate(coord.Zoom, coord.X, coord.Y+1), true

	case BorderRight:
		if coord.X+1 >= g.TileExtent(coord.Zoom).MaxX {
			return grid.TileCoordinate{}, false
		}
		return grid.NewTileCoordinate(coord.Zoom, coord.X+1, coord.Y), true

	case BorderBottom:
		if coord.Y == 0 {
			return grid.TileCoordinate{}, false
		}
		return grid.NewTileCoordinate(coord.Zoom, coord.X, coord.Y-1), true
	}

	return grid.TileCoordinate{}, false
}

// ApplyBorderActivationState copies the activation levels of the shared
// border from an already-labeled neighbour heightfield, then re-propagates.
// This prevents T-junction cracks across tile seams.
func (hf *Heightfield) ApplyBorderActivationState(neighbour *Heightfield, border Border) {
	last := hf.size - 1

	switch border {
	case BorderLeft:
		for y := 0; y < hf.size; y++ {
			if level := neighbour.Level(last, y); level != -1 {
				hf.activate(0, y, level)
			}
		}

	case BorderTop:
		for x := 0; x < hf.size; x++ {
			if level := neighbour.Level(x, last); level != -1 {
				hf.activate(x, 0, level)
			}
		}

	case BorderRight:
		for y := 0; y < hf.size; y++ {
			if level := neighbour.Level(0, y); level != -1 {
				hf.activate(last, y, level)
			}
		}

	case BorderBottom:
		for x := 0; x < hf.size; x++ {
			if level := neighbour.Level(x, 0); level != -1 {
				hf.activate(x, last, level)
			}
		}
	}

	hf.propagateAll()
}

// genState carries strip-generation state between quadrant recursions.
type genState struct {
	buffer          [2][2]int // x, y of the last two emitted vertices
	activationLevel int
	ptr             int // indexes buffer
	previousLevel   int // tracks level changes during recursion
}

func (s *genState) inBuffer(x, y int) bool {
	return (x == s.buffer[0][0] && y == s.buffer[0][1]) ||
		(x == s.buffer[1][0] && y == s.buffer[1][1])
}

func (s *genState) setBuffer(x, y int) {
	s.buffer[s.ptr][0] = x
	s.buffer[s.ptr][1] = y
}

// GenerateMesh emits the triangle strip triangulating every vertex active
// at the given level into the builder. The four corner verts are force
// activated at that level first.
func (hf *Heightfield) GenerateMesh(m MeshBuilder, level int) {
	size := 1 << hf.logSize
	halfSize := size >> 1
	cx, cy := halfSize, halfSize

	m.Clear()

	hf.activate(size, 0, level)
	hf.activate(0, 0, level)
	hf.activate(0, size, level)
	hf.activate(size, size, level)

	hf.generateBlock(m, level, hf.logSize, cx, cy)
}

// generateBlock generates the mesh for the square with the given centre by
// walking its four triangular quadrants counterclockwise, paraphrased from
// Lindstrom et al, SIGGRAPH '96. The result is a single continuous
// triangle strip with a few corners turned via degenerate tris.
func (hf *Heightfield) generateBlock(m MeshBuilder, activationLevel, logSize, cx, cy int) {
	hs := 1 << (logSize - 1)

	// quadrant corner coordinates
	q := [4][2]int{
		{cx + hs, cy + hs}, // se
		{cx + hs, cy - hs}, // ne
		{cx - hs, cy - hs}, // nw
		{cx - hs, cy + hs}, // sw
	}

	state := genState{activationLevel: activationLevel}
	state.buffer[0] = [2]int{-1, -1}
	state.buffer[1] = [2]int{-1, -1}

	m.EmitVertex(hf, q[0][0], q[0][1])
	state.setBuffer(q[0][0], q[0][1])

	for i := 0; i < 4; i++ {
		if state.previousLevel&1 == 0 {
			// turn a corner
			state.ptr ^= 1
		} else {
			// jump via a degenerate triangle
			x, y := state.buffer[1-state.ptr][0], state.buffer[1-state.ptr][1]
			m.EmitVertex(hf, x, y)
		}

		// initial vertex of the quadrant
		m.EmitVertex(hf, q[i][0], q[i][1])
		state.setBuffer(q[i][0], q[i][1])
		state.previousLevel = 2*logSize + 1

		hf.generateQuadrant(m, &state,
			q[i][0], q[i][1], // left
			cx, cy, // top
			q[(i+1)&3][0], q[(i+1)&3][1], // right
			2*logSize,
		)
	}

	if !state.inBuffer(q[0][0], q[0][1]) {
		// finish off the strip
		m.EmitVertex(hf, q[0][0], q[0][1])
	}
}

// generateQuadrant generates the strip for one triangular quadrant.
func (hf *Heightfield) generateQuadrant(m MeshBuilder, state *genState, lx, ly, tx, ty, rx, ry, recursionLevel int) {
	if recursionLevel <= 0 {
		return
	}

	if hf.Level(tx, ty) >= state.activationLevel {
		bx := (lx + rx) >> 1
		by := (ly + ry) >> 1

		// left half of the quadrant
		hf.generateQuadrant(m, state, lx, ly, bx, by, tx, ty, recursionLevel-1)

		if !state.inBuffer(tx, ty) {
			if (recursionLevel+state.previousLevel)&1 != 0 {
				state.ptr ^= 1
			} else {
				x, y := state.buffer[1-state.ptr][0], state.buffer[1-state.ptr][1]
				m.EmitVertex(hf, x, y)
			}
			m.EmitVertex(hf, tx, ty)
			state.setBuffer(tx, ty)
			state.previousLevel = recursionLevel
		}

		// right half of the quadrant
		hf.generateQuadrant(m, state, tx, ty, bx, by, rx, ry, recursionLevel-1)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
