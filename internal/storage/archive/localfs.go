// internal/storage/archive/localfs.go
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/newthinker/dzibridge/internal/core"
)

// LocalFS implements Storage for local filesystem
type LocalFS struct {
	basePath string
}

// NewLocalFS creates a new LocalFS storage
func NewLocalFS(basePath string) (*LocalFS, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating base path: %w", err)
	}
	return &LocalFS{basePath: basePath}, nil
}

func (l *LocalFS) fullPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return filepath.Join(l.basePath, rel), nil
}

// Put writes to a temporary file first so readers never see a partial object.
func (l *LocalFS) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".put-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fullPath)
}

func (l *LocalFS) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.WrapError(core.ErrNotFound, err)
	}
	return data, err
}

func (l *LocalFS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	searchPath, err := l.fullPath(prefix)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relPath, _ := filepath.Rel(l.basePath, path)
			keys = append(keys, filepath.ToSlash(relPath))
		}
		return nil
	})

	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	return keys, err
}
