// Package convert turns source images into DZI conversion outputs and runs
// those blocking conversions on worker goroutines.
package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/newthinker/dzibridge/internal/core"
	"github.com/newthinker/dzibridge/internal/dzi"
)

// Output describes a finished conversion.
type Output struct {
	Descriptor string
	Stats      dzi.Stats
}

// Layout returns the layout of the conversion output.
func (o Output) Layout() dzi.Layout {
	return dzi.LayoutFromDescriptor(o.Descriptor)
}

// Converter synchronously converts one image into a descriptor and tile set.
type Converter struct {
	opts dzi.Options
}

// New creates a converter using opts for every conversion.
func New(opts dzi.Options) (*Converter, error) {
	if err := opts.Validate(); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	return &Converter{opts: opts}, nil
}

// Options returns the tiling options.
func (c *Converter) Options() dzi.Options {
	return c.opts
}

// Convert writes <outputDir>/<name>.dzi and <outputDir>/<name>_files for the
// image at inputPath, where name is the input file name without extension.
// Any previous output with the same name is removed first.
func (c *Converter) Convert(inputPath, outputDir string) (Output, error) {
	img, _, err := dzi.Decode(inputPath, c.opts.MaxPixels)
	if err != nil {
		return Output{}, err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Output{}, core.WrapError(core.ErrFilesystem, fmt.Errorf("creating output dir: %w", err))
	}

	layout := dzi.NewLayout(outputDir, dzi.BaseName(inputPath))
	if err := RemoveOutput(layout); err != nil {
		return Output{}, err
	}

	stats, err := dzi.Save(img, layout.Base, c.opts)
	if err != nil {
		return Output{}, err
	}
	return Output{Descriptor: layout.Descriptor(), Stats: stats}, nil
}

// RemoveOutput deletes the descriptor and tile directory of layout if they
// exist. Absent parts are skipped.
func RemoveOutput(layout dzi.Layout) error {
	if exists(layout.Descriptor()) {
		if err := os.Remove(layout.Descriptor()); err != nil {
			return core.WrapError(core.ErrFilesystem, fmt.Errorf("removing old descriptor: %w", err))
		}
	}
	if exists(layout.TilesDir()) {
		if err := os.RemoveAll(layout.TilesDir()); err != nil {
			return core.WrapError(core.ErrFilesystem, fmt.Errorf("removing old tiles: %w", err))
		}
	}
	return nil
}

// EnsureOutputDir resolves dir against the working directory and creates it
// if needed. It returns the absolute path.
func EnsureOutputDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", core.WrapError(core.ErrFilesystem, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", core.WrapError(core.ErrFilesystem, fmt.Errorf("creating output dir: %w", err))
	}
	return abs, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
