// Package bundle counts the files of a conversion output and packages them
// into a zip archive held in memory.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/newthinker/dzibridge/internal/core"
	"github.com/newthinker/dzibridge/internal/dzi"
)

// ContentType is the MIME type of a bundle.
const ContentType = "application/zip"

// FileName is the suggested download name for the bundle of name.
func FileName(name string) string {
	return name + "_dzi_bundle.zip"
}

// CountRelated returns the number of files that belong to the conversion
// output at base: the descriptor if present plus every file under the tile
// directory. Missing parts count as zero.
func CountRelated(base string) (int, error) {
	layout := dzi.Layout{Base: base}
	count := 0

	if ok, err := isFile(layout.Descriptor()); err != nil {
		return 0, err
	} else if ok {
		count++
	}

	err := walkTiles(layout, func(string, string) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountDescriptors returns how many descriptor files sit directly in dir.
func CountDescriptors(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, core.WrapError(core.ErrFilesystem, fmt.Errorf("listing %s: %w", dir, err))
	}
	count := 0
	for _, e := range entries {
		if dzi.IsDescriptor(e.Name()) {
			count++
		}
	}
	return count, nil
}

// Exists reports whether any part of the output at base is on disk.
func Exists(base string) bool {
	layout := dzi.Layout{Base: base}
	for _, p := range []string{layout.Descriptor(), layout.TilesDir()} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Build zips the output at base. The descriptor is stored at the archive
// root and tiles keep their <name>_files/<level>/<tile> paths. Missing parts
// are left out. The returned reader is positioned at the first byte.
func Build(base string) (*bytes.Reader, error) {
	layout := dzi.Layout{Base: base}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if ok, err := isFile(layout.Descriptor()); err != nil {
		return nil, err
	} else if ok {
		if err := addFile(zw, layout.Descriptor(), filepath.Base(layout.Descriptor())); err != nil {
			return nil, err
		}
	}

	err := walkTiles(layout, func(path, rel string) error {
		return addFile(zw, path, rel)
	})
	if err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finishing archive: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// walkTiles calls fn for each regular file under the tile directory with its
// absolute path and its slash-separated path relative to the output dir.
func walkTiles(layout dzi.Layout, fn func(path, rel string) error) error {
	root := layout.TilesDir()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(layout.Dir(), path)
		if err != nil {
			return err
		}
		return fn(path, filepath.ToSlash(rel))
	})
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			return err
		}
		return core.WrapError(core.ErrFilesystem, fmt.Errorf("walking %s: %w", root, err))
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return core.WrapError(core.ErrFilesystem, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return core.WrapError(core.ErrFilesystem, err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", path, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return core.WrapError(core.ErrFilesystem, fmt.Errorf("copying %s: %w", path, err))
	}
	return nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, core.WrapError(core.ErrFilesystem, err)
	}
	return info.Mode().IsRegular(), nil
}
