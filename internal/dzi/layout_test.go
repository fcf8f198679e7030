package dzi

import (
	"path/filepath"
	"testing"
)

func TestNewLayout(t *testing.T) {
	l := NewLayout("/data/dzi_output", "photo")

	checks := []struct {
		name, got, want string
	}{
		{"Name", l.Name(), "photo"},
		{"Dir", l.Dir(), "/data/dzi_output"},
		{"Descriptor", l.Descriptor(), filepath.FromSlash("/data/dzi_output/photo.dzi")},
		{"TilesDir", l.TilesDir(), filepath.FromSlash("/data/dzi_output/photo_files")},
		{"TilePath", l.TilePath(3, 1, 2, FormatJPEG), filepath.FromSlash("/data/dzi_output/photo_files/3/1_2.jpeg")},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, c.got)
		}
	}
}

func TestLayoutFromDescriptor(t *testing.T) {
	l := LayoutFromDescriptor("/out/scan.tiles.dzi")
	if l.Base != "/out/scan.tiles" {
		t.Errorf("expected base /out/scan.tiles, got %s", l.Base)
	}
	if l.Name() != "scan.tiles" {
		t.Errorf("expected name scan.tiles, got %s", l.Name())
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/tmp/photo.png", "photo"},
		{"photo.tar.gz", "photo.tar"},
		{"noext", "noext"},
		{"/var/uploads/IMG_0001.JPG", "IMG_0001"},
	}
	for _, tt := range tests {
		if got := BaseName(tt.path); got != tt.want {
			t.Errorf("BaseName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsDescriptor(t *testing.T) {
	if !IsDescriptor("photo.dzi") {
		t.Error("expected photo.dzi to be a descriptor")
	}
	if IsDescriptor("photo.dzi.bak") {
		t.Error("photo.dzi.bak is not a descriptor")
	}
	if IsDescriptor("photo_files") {
		t.Error("photo_files is not a descriptor")
	}
}
