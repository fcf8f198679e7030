package dzi

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/newthinker/dzibridge/internal/core"
)

// Namespace is the Deep Zoom schema namespace.
const Namespace = "http://schemas.microsoft.com/deepzoom/2008"

// Descriptor is the XML document stored at <base>.dzi.
type Descriptor struct {
	XMLName  xml.Name `xml:"Image"`
	XMLNS    string   `xml:"xmlns,attr"`
	Format   string   `xml:"Format,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Size     Size     `xml:"Size"`
}

// Size is the full-resolution image size.
type Size struct {
	Width  int `xml:"Width,attr"`
	Height int `xml:"Height,attr"`
}

// NewDescriptor builds the descriptor for an image of the given size.
func NewDescriptor(width, height int, opts Options) Descriptor {
	return Descriptor{
		XMLNS:    Namespace,
		Format:   opts.Format,
		Overlap:  opts.Overlap,
		TileSize: opts.TileSize,
		Size:     Size{Width: width, Height: height},
	}
}

// Levels is the number of pyramid levels the descriptor implies.
func (d Descriptor) Levels() int {
	return LevelCount(d.Size.Width, d.Size.Height)
}

// WriteTo encodes the descriptor with an XML header.
func (d Descriptor) WriteTo(w io.Writer) (int64, error) {
	body, err := xml.Marshal(d)
	if err != nil {
		return 0, fmt.Errorf("encoding descriptor: %w", err)
	}
	n, err := io.WriteString(w, xml.Header)
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(body)
	return int64(n + m), err
}

// ParseDescriptor reads a descriptor document.
func ParseDescriptor(r io.Reader) (Descriptor, error) {
	var d Descriptor
	if err := xml.NewDecoder(r).Decode(&d); err != nil {
		return Descriptor{}, fmt.Errorf("parsing descriptor: %w", err)
	}
	if d.Size.Width <= 0 || d.Size.Height <= 0 {
		return Descriptor{}, fmt.Errorf("parsing descriptor: invalid size %dx%d", d.Size.Width, d.Size.Height)
	}
	return d, nil
}

// ReadDescriptor parses the descriptor file at path.
func ReadDescriptor(path string) (Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, core.WrapError(core.ErrFilesystem, err)
	}
	defer f.Close()

	d, err := ParseDescriptor(f)
	if err != nil {
		return Descriptor{}, core.WrapError(core.ErrDecodeFailed, fmt.Errorf("%s: %w", path, err))
	}
	return d, nil
}
