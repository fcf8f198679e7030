package convert

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/dzibridge/internal/core"
	"github.com/newthinker/dzibridge/internal/dzi"
	"github.com/newthinker/dzibridge/internal/dzi/dzitest"
)

func newConverter(t *testing.T) *Converter {
	t.Helper()
	c, err := New(dzi.DefaultOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be absent, stat error: %v", path, err)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(dzi.Options{TileSize: -1})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestConvert_Photo(t *testing.T) {
	root := t.TempDir()
	input := dzitest.WritePNG(t, filepath.Join(root, "upload", "photo.png"), 64, 64)
	outDir := filepath.Join(root, "dzi_output")

	out, err := newConverter(t).Convert(input, outDir)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if want := filepath.Join(outDir, "photo.dzi"); out.Descriptor != want {
		t.Errorf("expected descriptor %s, got %s", want, out.Descriptor)
	}
	assertExists(t, out.Descriptor)
	assertExists(t, filepath.Join(outDir, "photo_files", "0", "0_0.jpeg"))
	if out.Stats.Tiles != 7 {
		t.Errorf("expected 7 tiles, got %d", out.Stats.Tiles)
	}
	if want := filepath.Join(outDir, "photo"); out.Layout().Base != want {
		t.Errorf("expected base %s, got %s", want, out.Layout().Base)
	}

	// input is left alone
	assertExists(t, input)
}

func TestConvert_SameNameTwiceLeavesNoStaleTiles(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, "out")
	c := newConverter(t)

	first := dzitest.WritePNG(t, filepath.Join(root, "a", "photo.png"), 2000, 10)
	if _, err := c.Convert(first, outDir); err != nil {
		t.Fatalf("first Convert failed: %v", err)
	}
	assertExists(t, filepath.Join(outDir, "photo_files", "11"))

	second := dzitest.WritePNG(t, filepath.Join(root, "b", "photo.png"), 64, 64)
	out, err := c.Convert(second, outDir)
	if err != nil {
		t.Fatalf("second Convert failed: %v", err)
	}

	assertMissing(t, filepath.Join(outDir, "photo_files", "11"))
	assertMissing(t, filepath.Join(outDir, "photo_files", "7"))

	var files int
	err = filepath.WalkDir(filepath.Join(outDir, "photo_files"), func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files++
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if files != out.Stats.Tiles {
		t.Errorf("expected %d tiles on disk, got %d", out.Stats.Tiles, files)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected one descriptor and one tile directory, got %d entries", len(entries))
	}
}

func TestConvert_InvalidImageKeepsPreviousOutput(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, "out")
	c := newConverter(t)

	good := dzitest.WritePNG(t, filepath.Join(root, "a", "photo.png"), 8, 8)
	if _, err := c.Convert(good, outDir); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	bad := filepath.Join(root, "b", "photo.png")
	dzitest.WriteFile(t, bad, []byte("not really a png"))

	_, err := c.Convert(bad, outDir)
	if !errors.Is(err, core.ErrDecodeFailed) {
		t.Errorf("expected DECODE_FAILED, got %v", err)
	}
	assertExists(t, filepath.Join(outDir, "photo.dzi"))
}

func TestConvert_OversizedHeaderRejectedBeforeDecode(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, "out")
	input := filepath.Join(root, "huge.png")
	dzitest.WriteFile(t, input, dzitest.PNGHeader(50000, 50000))

	_, err := newConverter(t).Convert(input, outDir)
	if !errors.Is(err, core.ErrDecodeFailed) {
		t.Fatalf("expected DECODE_FAILED, got %v", err)
	}
	assertMissing(t, filepath.Join(outDir, "huge.dzi"))
}

func TestConvert_PixelLimitFromOptions(t *testing.T) {
	root := t.TempDir()
	input := dzitest.WritePNG(t, filepath.Join(root, "photo.png"), 20, 20)

	opts := dzi.DefaultOptions()
	opts.MaxPixels = 399
	c, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Convert(input, filepath.Join(root, "out")); !errors.Is(err, core.ErrDecodeFailed) {
		t.Errorf("expected DECODE_FAILED over the limit, got %v", err)
	}

	opts.MaxPixels = 400
	c, err = New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Convert(input, filepath.Join(root, "out")); err != nil {
		t.Errorf("expected conversion at the limit, got %v", err)
	}
}

func TestConvert_UnwritableOutput(t *testing.T) {
	root := t.TempDir()
	input := dzitest.WritePNG(t, filepath.Join(root, "photo.png"), 4, 4)

	blocker := filepath.Join(root, "blocker")
	dzitest.WriteFile(t, blocker, []byte("x"))

	_, err := newConverter(t).Convert(input, filepath.Join(blocker, "out"))
	if !errors.Is(err, core.ErrFilesystem) {
		t.Errorf("expected FILESYSTEM_ERROR, got %v", err)
	}
}

func TestRemoveOutput_Absent(t *testing.T) {
	if err := RemoveOutput(dzi.NewLayout(t.TempDir(), "nothing")); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestEnsureOutputDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "nested", "dzi_output")

	abs, err := EnsureOutputDir(dir)
	if err != nil {
		t.Fatalf("EnsureOutputDir failed: %v", err)
	}
	if !filepath.IsAbs(abs) {
		t.Errorf("expected an absolute path, got %s", abs)
	}
	assertExists(t, abs)

	again, err := EnsureOutputDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if again != abs {
		t.Errorf("expected %s again, got %s", abs, again)
	}
}
