package grid

import (
	"errors"
	"testing"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
)

func collectTiles(t *testing.T, it *GridIterator) []TileCoordinate {
	t.Helper()

	var tiles []TileCoordinate
	for ; !it.Exhausted(); it.Next() {
		tiles = append(tiles, it.Value())
		if len(tiles) > 1<<20 {
			t.Fatal("iterator did not terminate")
		}
	}
	return tiles
}

func TestGridIterator_ZoomRange(t *testing.T) {
	g := NewGlobalGeodetic(256, true)

	if _, err := NewGridIterator(&g, g.Extent(), 1, 3); !errors.Is(err, ErrZoomRange) {
		t.Errorf("expected ErrZoomRange, got %v", err)
	}
}

func TestGridIterator_Totality(t *testing.T) {
	g := NewGlobalGeodetic(256, true)
	extent := geom.Bounds{MinX: -50, MinY: -30, MaxX: 40, MaxY: 20}

	it, err := NewGridIterator(&g, extent, 4, 2)
	if err != nil {
		t.Fatalf("NewGridIterator failed: %v", err)
	}

	tiles := collectTiles(t, it)

	// build the expected tile set: the closed rectangle at each zoom
	seen := make(map[TileCoordinate]int)
	for _, coord := range tiles {
		seen[coord]++
	}

	var expected uint64
	for zoom := uint8(2); zoom <= 4; zoom++ {
		ll := g.CRSToTile(extent.LowerLeft(), zoom)
		ur := g.CRSToTile(extent.UpperRight(), zoom)

		for x := ll.X; x <= ur.X; x++ {
			for y := ll.Y; y <= ur.Y; y++ {
				expected++
				coord := TileCoordinate{Zoom: zoom, X: x, Y: y}
				if seen[coord] != 1 {
					t.Errorf("tile %+v emitted %d times, expected once", coord, seen[coord])
				}
			}
		}
	}

	if uint64(len(tiles)) != expected {
		t.Errorf("iterator emitted %d tiles, expected %d", len(tiles), expected)
	}
}

func TestGridIterator_Order(t *testing.T) {
	g := NewGlobalGeodetic(256, true)
	extent := geom.Bounds{MinX: -50, MinY: -30, MaxX: 40, MaxY: 20}

	it, err := NewGridIterator(&g, extent, 3, 1)
	if err != nil {
		t.Fatalf("NewGridIterator failed: %v", err)
	}

	tiles := collectTiles(t, it)

	// zooms are visited high to low; within a zoom y sweeps before x steps
	for i := 1; i < len(tiles); i++ {
		prev, cur := tiles[i-1], tiles[i]
		switch {
		case cur.Zoom == prev.Zoom && cur.X == prev.X:
			if cur.Y != prev.Y+1 {
				t.Fatalf("non-contiguous row step from %+v to %+v", prev, cur)
			}
		case cur.Zoom == prev.Zoom:
			if cur.X != prev.X+1 {
				t.Fatalf("non-contiguous column step from %+v to %+v", prev, cur)
			}
		default:
			if cur.Zoom != prev.Zoom-1 {
				t.Fatalf("non-contiguous zoom step from %+v to %+v", prev, cur)
			}
		}
	}
}

func TestGridIterator_Size(t *testing.T) {
	g := NewGlobalGeodetic(256, true)
	extent := geom.Bounds{MinX: -50, MinY: -30, MaxX: 40, MaxY: 20}

	it, err := NewGridIterator(&g, extent, 4, 0)
	if err != nil {
		t.Fatalf("NewGridIterator failed: %v", err)
	}

	size := it.Size()
	tiles := collectTiles(t, it)

	if uint64(len(tiles)) != size {
		t.Errorf("Size() = %d but iterator emitted %d tiles", size, len(tiles))
	}
}

func TestGridIterator_Seek(t *testing.T) {
	g := NewGlobalGeodetic(256, true)
	extent := geom.Bounds{MinX: -50, MinY: -30, MaxX: 40, MaxY: 20}

	ref, err := NewGridIterator(&g, extent, 3, 1)
	if err != nil {
		t.Fatalf("NewGridIterator failed: %v", err)
	}
	tiles := collectTiles(t, ref)

	for _, n := range []uint64{0, 1, 5, uint64(len(tiles) - 1)} {
		it, err := NewGridIterator(&g, extent, 3, 1)
		if err != nil {
			t.Fatalf("NewGridIterator failed: %v", err)
		}
		it.Seek(n)

		if it.Position() != n {
			t.Errorf("Seek(%d): position = %d", n, it.Position())
		}
		if it.Value() != tiles[n] {
			t.Errorf("Seek(%d) = %+v, expected %+v", n, it.Value(), tiles[n])
		}
	}

	// seeking past the end exhausts the iterator
	it, err := NewGridIterator(&g, extent, 3, 1)
	if err != nil {
		t.Fatalf("NewGridIterator failed: %v", err)
	}
	it.Seek(uint64(len(tiles)) + 10)
	if !it.Exhausted() {
		t.Error("expected iterator to be exhausted after seeking past the end")
	}
}

func TestGridIterator_Reset(t *testing.T) {
	g := NewGlobalGeodetic(256, true)

	it, err := NewGridExtentIterator(&g, 1, 0)
	if err != nil {
		t.Fatalf("NewGridExtentIterator failed: %v", err)
	}
	first := collectTiles(t, it)

	if err := it.Reset(1, 0); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	second := collectTiles(t, it)

	if len(first) != len(second) {
		t.Fatalf("reset iteration emitted %d tiles, expected %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("tile %d differs after reset: %+v vs %+v", i, first[i], second[i])
		}
	}

	if err := it.Reset(0, 4); !errors.Is(err, ErrZoomRange) {
		t.Errorf("expected ErrZoomRange from inverted reset, got %v", err)
	}
}
