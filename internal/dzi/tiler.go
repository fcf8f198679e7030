package dzi

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/dzibridge/internal/core"
)

// Tile formats
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// DefaultTileSize is the edge length of a tile in pixels.
const DefaultTileSize = 512

// DefaultMaxPixels caps the decoded size of a source image (100 megapixels).
const DefaultMaxPixels = 100_000_000

// Options controls pyramid generation.
type Options struct {
	TileSize int
	Overlap  int
	Format   string
	Quality  int // JPEG only

	// MaxPixels limits width x height of a source image; 0 means no limit.
	MaxPixels int64
}

// DefaultOptions returns 512 px JPEG tiles with a one pixel overlap.
func DefaultOptions() Options {
	return Options{
		TileSize:  DefaultTileSize,
		Overlap:   1,
		Format:    FormatJPEG,
		Quality:   75,
		MaxPixels: DefaultMaxPixels,
	}
}

// Validate checks the options for errors.
func (o Options) Validate() error {
	if o.TileSize < 1 {
		return fmt.Errorf("tile size must be positive, got %d", o.TileSize)
	}
	if o.Overlap < 0 || o.Overlap >= o.TileSize {
		return fmt.Errorf("overlap must be in [0, %d), got %d", o.TileSize, o.Overlap)
	}
	if o.MaxPixels < 0 {
		return fmt.Errorf("max pixels cannot be negative, got %d", o.MaxPixels)
	}
	switch o.Format {
	case FormatJPEG:
		if o.Quality < 1 || o.Quality > 100 {
			return fmt.Errorf("jpeg quality must be between 1 and 100, got %d", o.Quality)
		}
	case FormatPNG:
	default:
		return fmt.Errorf("unsupported tile format %q", o.Format)
	}
	return nil
}

// Stats summarises a written pyramid.
type Stats struct {
	Width  int
	Height int
	Levels int
	Tiles  int
}

// LevelCount returns the number of levels for an image of w x h pixels.
// The top level is full resolution and level 0 is 1x1.
func LevelCount(w, h int) int {
	longest := max(w, h)
	n := 1
	for d := 1; d < longest; d *= 2 {
		n++
	}
	return n
}

// LevelSize returns the pixel size of level in a pyramid of levels levels.
func LevelSize(w, h, level, levels int) (int, int) {
	scale := 1 << (levels - 1 - level)
	return ceilDiv(w, scale), ceilDiv(h, scale)
}

// TileRect returns the region of a level covered by tile (col, row),
// including the overlap shared with neighbouring tiles.
func TileRect(col, row, levelW, levelH int, opts Options) image.Rectangle {
	x0 := col * opts.TileSize
	y0 := row * opts.TileSize
	if col > 0 {
		x0 -= opts.Overlap
	}
	if row > 0 {
		y0 -= opts.Overlap
	}
	x1 := min(levelW, (col+1)*opts.TileSize+opts.Overlap)
	y1 := min(levelH, (row+1)*opts.TileSize+opts.Overlap)
	return image.Rect(x0, y0, x1, y1)
}

// Save writes the tile directory and descriptor for img at base.
// Tiles are written first, top level down, so that an existing descriptor
// always refers to a complete tile set.
func Save(img image.Image, base string, opts Options) (Stats, error) {
	if err := opts.Validate(); err != nil {
		return Stats{}, fmt.Errorf("invalid options: %w", err)
	}

	layout := Layout{Base: base}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	levels := LevelCount(w, h)
	stats := Stats{Width: w, Height: h, Levels: levels}

	if err := os.MkdirAll(layout.TilesDir(), 0755); err != nil {
		return stats, core.WrapError(core.ErrFilesystem, err)
	}

	// the top level is cut straight from the source; each level below is
	// scaled from the one above it
	current := tileable(img)
	for level := levels - 1; level >= 0; level-- {
		lw, lh := LevelSize(w, h, level, levels)
		if level < levels-1 {
			current = downscale(current, lw, lh)
		}
		n, err := writeLevel(current, layout, level, opts)
		stats.Tiles += n
		if err != nil {
			return stats, err
		}
	}

	if err := writeDescriptor(layout.Descriptor(), NewDescriptor(w, h, opts)); err != nil {
		return stats, err
	}
	return stats, nil
}

// subImager is implemented by every image type in the standard library.
type subImager interface {
	image.Image
	SubImage(r image.Rectangle) image.Image
}

// tileable returns img as a subImager, copying it only when it has no
// SubImage method.
func tileable(img image.Image) subImager {
	if si, ok := img.(subImager); ok {
		return si
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func downscale(src image.Image, w, h int) subImager {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// onWhite composites a tile that may carry transparency over white, since
// JPEG has no alpha channel.
func onWhite(tile image.Image) image.Image {
	if o, ok := tile.(interface{ Opaque() bool }); ok && o.Opaque() {
		return tile
	}
	b := tile.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), tile, b.Min, draw.Over)
	return dst
}

func writeLevel(src subImager, layout Layout, level int, opts Options) (int, error) {
	if err := os.MkdirAll(layout.LevelDir(level), 0755); err != nil {
		return 0, core.WrapError(core.ErrFilesystem, err)
	}

	b := src.Bounds()
	lw, lh := b.Dx(), b.Dy()
	cols := ceilDiv(lw, opts.TileSize)
	rows := ceilDiv(lh, opts.TileSize)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			tile := src.SubImage(TileRect(col, row, lw, lh, opts).Add(b.Min))
			path := layout.TilePath(level, col, row, opts.Format)
			g.Go(func() error {
				return writeTile(path, tile, opts)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return cols * rows, nil
}

func writeTile(path string, tile image.Image, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return core.WrapError(core.ErrFilesystem, err)
	}

	bw := bufio.NewWriter(f)
	switch opts.Format {
	case FormatPNG:
		err = png.Encode(bw, tile)
	default:
		err = jpeg.Encode(bw, onWhite(tile), &jpeg.Options{Quality: opts.Quality})
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.WrapError(core.ErrFilesystem, fmt.Errorf("writing tile %s: %w", path, err))
	}
	return nil
}

func writeDescriptor(path string, d Descriptor) error {
	f, err := os.Create(path)
	if err != nil {
		return core.WrapError(core.ErrFilesystem, err)
	}
	_, err = d.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.WrapError(core.ErrFilesystem, fmt.Errorf("writing descriptor %s: %w", path, err))
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
