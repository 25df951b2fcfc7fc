package tiler

import (
	"context"
	"os"
	"testing"
)

func newTestPipeline(t *testing.T, dir string, resume bool, workers int) (*Pipeline, *TerrainTiler) {
	t.Helper()

	src := newFakeSource(flatHeight)
	tt, err := NewTerrainTiler(src, testGrid(), DefaultOptions())
	if err != nil {
		t.Fatalf("NewTerrainTiler failed: %v", err)
	}

	newSource := func() (RasterSource, func(), error) {
		return newFakeSource(flatHeight), func() {}, nil
	}

	serializer := NewSerializer(dir, resume)
	return NewPipeline(HeightmapProducer{TerrainTiler: tt}, serializer, newSource, workers), tt
}

func TestPipeline_ProducesEveryTile(t *testing.T) {
	dir := t.TempDir()
	pipeline, tt := newTestPipeline(t, dir, false, 4)

	stats, err := pipeline.Run(context.Background(), 3, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	it, err := tt.Iterator(3, 1)
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}

	serializer := NewSerializer(dir, false)
	var total uint64
	for ; !it.Exhausted(); it.Next() {
		total++
		path := serializer.TileFilename(it.Value())
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing tile file %s: %v", path, err)
		}
	}

	if stats.Total != total {
		t.Errorf("stats.Total = %d, expected %d", stats.Total, total)
	}
	if stats.Written != total {
		t.Errorf("stats.Written = %d, expected %d", stats.Written, total)
	}
	if stats.Failed != 0 || stats.Skipped != 0 {
		t.Errorf("unexpected failures or skips: %+v", stats)
	}
}

func TestPipeline_ResumeIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	pipeline, _ := newTestPipeline(t, dir, true, 2)
	first, err := pipeline.Run(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if first.Written != first.Total {
		t.Fatalf("first run wrote %d of %d tiles", first.Written, first.Total)
	}

	// a second resumed run writes nothing and leaves the tree alone
	pipeline, _ = newTestPipeline(t, dir, true, 2)
	second, err := pipeline.Run(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if second.Written != 0 {
		t.Errorf("second run rewrote %d tiles", second.Written)
	}
	if second.Skipped != second.Total {
		t.Errorf("second run skipped %d of %d tiles", second.Skipped, second.Total)
	}
}

func TestPipeline_Cancellation(t *testing.T) {
	dir := t.TempDir()
	pipeline, _ := newTestPipeline(t, dir, false, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pipeline.Run(ctx, 4, 0); err == nil {
		t.Error("expected an error from a cancelled run")
	}
}

func TestPipeline_SingleWorkerMatchesSweep(t *testing.T) {
	single := t.TempDir()
	multi := t.TempDir()

	pipeline, _ := newTestPipeline(t, single, false, 1)
	if _, err := pipeline.Run(context.Background(), 2, 0); err != nil {
		t.Fatalf("single worker run failed: %v", err)
	}

	pipeline, _ = newTestPipeline(t, multi, false, 8)
	if _, err := pipeline.Run(context.Background(), 2, 0); err != nil {
		t.Fatalf("multi worker run failed: %v", err)
	}

	// both runs produce the identical set of tile files
	singleFiles := listFiles(t, single)
	multiFiles := listFiles(t, multi)

	if len(singleFiles) != len(multiFiles) {
		t.Fatalf("tile counts differ: %d vs %d", len(singleFiles), len(multiFiles))
	}
	for path := range singleFiles {
		if !multiFiles[path] {
			t.Errorf("tile %s missing from the multi-worker run", path)
		}
	}
}

func listFiles(t *testing.T, dir string) map[string]bool {
	t.Helper()

	files := make(map[string]bool)
	err := walkDir(dir, "", files)
	if err != nil {
		t.Fatalf("walking %s: %v", dir, err)
	}
	return files
}

func walkDir(root, prefix string, files map[string]bool) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		rel := prefix + "/" + entry.Name()
		if entry.IsDir() {
			if err := walkDir(root+"/"+entry.Name(), rel, files); err != nil {
				return err
			}
		} else {
			files[rel] = true
		}
	}
	return nil
}
