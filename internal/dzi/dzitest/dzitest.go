// Package dzitest provides fixtures for tests that need real images or
// conversion outputs on disk.
package dzitest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// Gradient returns a w x h image with a horizontal and vertical colour ramp.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// WritePNG writes a w x h gradient PNG to path and returns path.
func WritePNG(t testing.TB, path string, w, h int) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, Gradient(w, h)); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return path
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// FakeOutput lays out a descriptor and n tile files under dir/name without
// running a conversion. With n == 0 no tile directory is created.
func FakeOutput(t testing.TB, dir, name string, n int) string {
	t.Helper()
	base := filepath.Join(dir, name)
	WriteFile(t, base+".dzi", []byte(`<?xml version="1.0" encoding="UTF-8"?><Image/>`))
	for i := 0; i < n; i++ {
		level := i % 3
		WriteFile(t, filepath.Join(base+"_files", strconv.Itoa(level), strconv.Itoa(i)+"_0.jpeg"), []byte("tile-"+strconv.Itoa(i)))
	}
	return base
}

// PNGHeader returns a minimal PNG whose IHDR declares a w x h RGBA image but
// which carries no pixel data.
func PNGHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolour with alpha
	writeChunk(&buf, "IHDR", ihdr)
	writeChunk(&buf, "IDAT", nil)
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	buf.WriteString(typ)
	buf.Write(data)
	binary.Write(buf, binary.BigEndian, crc.Sum32())
}
