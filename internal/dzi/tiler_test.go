package dzi

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/dzibridge/internal/dzi/dzitest"
)

func TestLevelCount(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{3, 3, 3},
		{64, 64, 7},
		{65, 10, 8},
		{1920, 1080, 12},
	}
	for _, tt := range tests {
		if got := LevelCount(tt.w, tt.h); got != tt.want {
			t.Errorf("LevelCount(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestLevelSize(t *testing.T) {
	levels := LevelCount(1000, 600)
	tests := []struct {
		level, w, h int
	}{
		{levels - 1, 1000, 600},
		{levels - 2, 500, 300},
		{0, 1, 1},
	}
	for _, tt := range tests {
		w, h := LevelSize(1000, 600, tt.level, levels)
		if w != tt.w || h != tt.h {
			t.Errorf("level %d: expected %dx%d, got %dx%d", tt.level, tt.w, tt.h, w, h)
		}
	}
}

func TestTileRect(t *testing.T) {
	opts := Options{TileSize: 512, Overlap: 1, Format: FormatJPEG, Quality: 75}

	tests := []struct {
		col, row, w, h int
		want           image.Rectangle
	}{
		{0, 0, 1200, 1200, image.Rect(0, 0, 513, 513)},
		{1, 0, 1200, 1200, image.Rect(511, 0, 1025, 513)},
		{2, 2, 1200, 1200, image.Rect(1023, 1023, 1200, 1200)},
		{0, 0, 64, 64, image.Rect(0, 0, 64, 64)},
	}
	for _, tt := range tests {
		if got := TileRect(tt.col, tt.row, tt.w, tt.h, opts); got != tt.want {
			t.Errorf("TileRect(%d, %d) on %dx%d = %v, want %v", tt.col, tt.row, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"png", Options{TileSize: 256, Format: FormatPNG}, false},
		{"zero tile size", Options{TileSize: 0, Format: FormatPNG}, true},
		{"overlap too large", Options{TileSize: 4, Overlap: 4, Format: FormatPNG}, true},
		{"negative overlap", Options{TileSize: 4, Overlap: -1, Format: FormatPNG}, true},
		{"bad quality", Options{TileSize: 512, Format: FormatJPEG, Quality: 0}, true},
		{"unknown format", Options{TileSize: 512, Format: "gif"}, true},
		{"negative pixel limit", Options{TileSize: 512, Format: FormatPNG, MaxPixels: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSave_SmallImage(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "photo")

	stats, err := Save(dzitest.Gradient(64, 64), base, DefaultOptions())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if stats.Levels != 7 || stats.Tiles != 7 {
		t.Errorf("expected 7 levels and 7 tiles, got %+v", stats)
	}
	for _, p := range []string{
		base + ".dzi",
		filepath.Join(base+"_files", "0", "0_0.jpeg"),
		filepath.Join(base+"_files", "6", "0_0.jpeg"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}

	cfg := decodeJPEGConfig(t, filepath.Join(base+"_files", "6", "0_0.jpeg"))
	if cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("expected 64x64 top tile, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestSave_MultipleTilesWithOverlap(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "wide")
	opts := Options{TileSize: 16, Overlap: 1, Format: FormatPNG}

	stats, err := Save(dzitest.Gradient(40, 20), base, opts)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 7 levels; the top level (6) is 40x20 and holds 3x2 tiles
	if want := LevelCount(40, 20); stats.Levels != want {
		t.Errorf("expected %d levels, got %d", want, stats.Levels)
	}

	top := filepath.Join(base+"_files", "6")
	entries, err := os.ReadDir(top)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 6 {
		t.Errorf("expected 6 top tiles, got %d", len(entries))
	}

	f, err := os.Open(filepath.Join(top, "1_0.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	// middle tile carries overlap on both sides
	if cfg.Width != 18 || cfg.Height != 17 {
		t.Errorf("expected 18x17, got %dx%d", cfg.Width, cfg.Height)
	}

	desc, err := ReadDescriptor(base + ".dzi")
	if err != nil {
		t.Fatalf("ReadDescriptor failed: %v", err)
	}
	if desc.Format != "png" || desc.TileSize != 16 {
		t.Errorf("unexpected descriptor %+v", desc)
	}
}

func TestSave_OffsetBounds(t *testing.T) {
	// a sub-image keeps its parent's coordinates
	src := dzitest.Gradient(50, 50).SubImage(image.Rect(10, 10, 42, 26))
	base := filepath.Join(t.TempDir(), "crop")

	stats, err := Save(src, base, Options{TileSize: 16, Format: FormatPNG})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if stats.Width != 32 || stats.Height != 16 {
		t.Errorf("expected 32x16, got %dx%d", stats.Width, stats.Height)
	}

	f, err := os.Open(filepath.Join(base+"_files", "5", "1_0.png"))
	if err != nil {
		t.Fatalf("expected tile 1_0 at the top level: %v", err)
	}
	defer f.Close()
	tile, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	want := src.At(26, 10)
	if got := tile.At(0, 0); !sameRGBA(got, want) {
		t.Errorf("expected first pixel %v, got %v", want, got)
	}
}

func TestSave_TransparentJPEGOnWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8)) // fully transparent
	base := filepath.Join(t.TempDir(), "clear")

	if _, err := Save(src, base, DefaultOptions()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	f, err := os.Open(filepath.Join(base+"_files", "3", "0_0.jpeg"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	tile, err := jpeg.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := tile.At(4, 4).RGBA()
	if r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
		t.Errorf("expected a white pixel, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestSave_InvalidOptions(t *testing.T) {
	base := filepath.Join(t.TempDir(), "x")
	if _, err := Save(dzitest.Gradient(4, 4), base, Options{TileSize: 0}); err == nil {
		t.Error("expected error for invalid options")
	}
	if _, err := os.Stat(base + ".dzi"); !os.IsNotExist(err) {
		t.Error("expected no descriptor to be written")
	}
}

func decodeJPEGConfig(t *testing.T, path string) image.Config {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func sameRGBA(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}
