// Package dzi writes Deep Zoom Image pyramids and knows their on-disk layout.
//
// A conversion output is identified by its base path: the descriptor lives at
// <base>.dzi and the tiles under <base>_files/<level>/<col>_<row>.<format>.
package dzi

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DescriptorExt is the file extension of a DZI descriptor.
	DescriptorExt = ".dzi"

	// TilesSuffix is appended to the base path to name the tile directory.
	TilesSuffix = "_files"
)

// Layout resolves the paths that belong to one conversion output.
type Layout struct {
	Base string
}

// NewLayout returns the layout for the output named name inside dir.
func NewLayout(dir, name string) Layout {
	return Layout{Base: filepath.Join(dir, name)}
}

// LayoutFromDescriptor derives the layout from a descriptor path.
func LayoutFromDescriptor(descriptor string) Layout {
	return Layout{Base: strings.TrimSuffix(descriptor, DescriptorExt)}
}

// BaseName strips the directory and extension from an input file path.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l Layout) Name() string       { return filepath.Base(l.Base) }
func (l Layout) Dir() string        { return filepath.Dir(l.Base) }
func (l Layout) Descriptor() string { return l.Base + DescriptorExt }
func (l Layout) TilesDir() string   { return l.Base + TilesSuffix }

// LevelDir is the directory holding one pyramid level.
func (l Layout) LevelDir(level int) string {
	return filepath.Join(l.TilesDir(), fmt.Sprintf("%d", level))
}

// TilePath is the file of tile (col, row) at level.
func (l Layout) TilePath(level, col, row int, format string) string {
	return filepath.Join(l.LevelDir(level), fmt.Sprintf("%d_%d.%s", col, row, format))
}

// IsDescriptor reports whether name has the descriptor extension.
func IsDescriptor(name string) bool {
	return strings.HasSuffix(name, DescriptorExt)
}
