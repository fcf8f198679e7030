package dzi

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/newthinker/dzibridge/internal/core"
)

// Decode opens path and decodes it with whichever registered codec
// recognises its header. It returns the image and the detected format name.
//
// The header is read first: an image declaring more than maxPixels pixels
// is rejected before any pixel buffer is allocated. A non-positive maxPixels
// disables the check.
func Decode(path string, maxPixels int64) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", core.WrapError(core.ErrFilesystem, fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return nil, "", core.WrapError(core.ErrDecodeFailed, fmt.Errorf("%s: %w", path, err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", core.WrapError(core.ErrDecodeFailed, fmt.Errorf("%s: empty image", path))
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, "", core.WrapError(core.ErrDecodeFailed,
			fmt.Errorf("%s: %dx%d exceeds the %d pixel limit", path, cfg.Width, cfg.Height, maxPixels))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", core.WrapError(core.ErrFilesystem, fmt.Errorf("rewinding %s: %w", path, err))
	}

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, "", core.WrapError(core.ErrDecodeFailed, fmt.Errorf("%s: %w", path, err))
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", core.WrapError(core.ErrDecodeFailed, fmt.Errorf("%s: empty image", path))
	}
	return img, format, nil
}
