package terrain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/geom"
	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// TileRange is the inclusive tile index rectangle available at one zoom.
type TileRange struct {
	StartX uint32 `json:"startX"`
	StartY uint32 `json:"startY"`
	EndX   uint32 `json:"endX"`
	EndY   uint32 `json:"endY"`
}

// LayerJSON is the layer.json metadata sidecar describing a tileset, per
// the TileJSON-style layout Cesium terrain providers consume.
type LayerJSON struct {
	TileJSON    string        `json:"tilejson"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Version     string        `json:"version"`
	Format      string        `json:"format"`
	Attribution string        `json:"attribution,omitempty"`
	Scheme      string        `json:"scheme"`
	Tiles       []string      `json:"tiles"`
	Projection  string        `json:"projection"`
	Bounds      [4]float64    `json:"bounds"`
	MinZoom     uint8         `json:"minzoom"`
	MaxZoom     uint8         `json:"maxzoom"`
	Available   [][]TileRange `json:"available"`
}

// LayerFormat names the tile payload format in layer.json.
type LayerFormat string

// Supported layer formats.
const (
	FormatHeightmap     LayerFormat = "heightmap-1.0"
	FormatQuantizedMesh LayerFormat = "quantized-mesh-1.0"
)

// NewLayerJSON builds the metadata for a tileset covering extent between
// two zoom levels. The available ranges are derived from the grid: one
// tile rectangle per zoom, ordered from minZoom upward.
func NewLayerJSON(name string, g *grid.Grid, extent geom.Bounds, minZoom, maxZoom uint8, format LayerFormat) *LayerJSON {
	layer := &LayerJSON{
		TileJSON:   "2.1.0",
		Name:       name,
		Version:    "1.0.0",
		Format:     string(format),
		Scheme:     "tms",
		Tiles:      []string{"{z}/{x}/{y}.terrain"},
		Projection: fmt.Sprintf("EPSG:%d", g.SRS().EPSG),
		Bounds:     [4]float64{extent.MinX, extent.MinY, extent.MaxX, extent.MaxY},
		MinZoom:    minZoom,
		MaxZoom:    maxZoom,
	}

	for zoom := minZoom; ; zoom++ {
		ll := g.CRSToTile(extent.LowerLeft(), zoom)
		ur := g.CRSToTile(extent.UpperRight(), zoom)
		layer.Available = append(layer.Available, []TileRange{{
			StartX: ll.X, StartY: ll.Y, EndX: ur.X, EndY: ur.Y,
		}})
		if zoom == maxZoom {
			break
		}
	}

	return layer
}

// WriteFile writes the metadata as layer.json in the output directory.
func (l *LayerJSON) WriteFile(outputDir string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding layer.json: %w", err)
	}

	path := filepath.Join(outputDir, "layer.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
