package tiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/Spacesium/spacesium-terrain-tiler/pkg/grid"
)

// TileExtension is the file extension of terrain tiles.
const TileExtension = ".terrain"

// Serializer lays terrain tiles out on disk as {out}/{z}/{x}/{y}.terrain,
// gzip-compressed, written through a temporary file and renamed so a crash
// never leaves a partial tile behind.
type Serializer struct {
	outputDir string
	resume    bool

	// mkdirMu guards directory creation: stat-then-mkdir from concurrent
	// workers would race otherwise
	mkdirMu sync.Mutex
}

// NewSerializer creates a serializer writing into outputDir. In resume
// mode tiles that already exist are skipped without being rewritten.
func NewSerializer(outputDir string, resume bool) *Serializer {
	return &Serializer{outputDir: outputDir, resume: resume}
}

// TileFilename returns the output path of a tile.
func (s *Serializer) TileFilename(coord grid.TileCoordinate) string {
	return filepath.Join(
		s.outputDir,
		strconv.FormatUint(uint64(coord.Zoom), 10),
		strconv.FormatUint(uint64(coord.X), 10),
		strconv.FormatUint(uint64(coord.Y), 10)+TileExtension,
	)
}

// ShouldSkip reports whether resume mode will skip a tile because its
// final file already exists.
func (s *Serializer) ShouldSkip(coord grid.TileCoordinate) bool {
	if !s.resume {
		return false
	}
	_, err := os.Stat(s.TileFilename(coord))
	return err == nil
}

// Store writes an encoded tile payload. It returns false when the tile was
// skipped because resume mode found it already present.
func (s *Serializer) Store(coord grid.TileCoordinate, payload []byte) (bool, error) {
	path := s.TileFilename(coord)

	if s.resume {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	if err := s.ensureDir(filepath.Dir(path)); err != nil {
		return false, err
	}

	tmp := path + ".tmp"
	if err := s.writeGzip(tmp, payload); err != nil {
		os.Remove(tmp)
		return false, err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("renaming %s: %w", tmp, err)
	}

	return true, nil
}

func (s *Serializer) ensureDir(dir string) error {
	s.mkdirMu.Lock()
	defer s.mkdirMu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating tile directory: %w", err)
	}
	return nil
}

func (s *Serializer) writeGzip(path string, payload []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("compressing %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
