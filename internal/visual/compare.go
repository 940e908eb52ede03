// Package visual compares screenshots against golden images.
package visual

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// channelThreshold is the per-channel difference (16-bit scale) below which
// two pixels count as equal, which absorbs anti-aliasing noise.
const channelThreshold = 16 << 8

var diffColor = color.RGBA{R: 255, A: 255}

// Result of comparing two images of equal size.
type Result struct {
	DiffPixels  int
	TotalPixels int
	Ratio       float64
	Match       bool

	// Diff is the golden image dimmed, with differing pixels in red.
	Diff *image.RGBA
}

// Compare reports how many pixels of actual differ from golden. The images
// match when the share of differing pixels is at most tolerance (0 to 1).
func Compare(actual, golden image.Image, tolerance float64) (Result, error) {
	if tolerance < 0 || tolerance > 1 {
		return Result{}, fmt.Errorf("tolerance must be between 0 and 1, got %v", tolerance)
	}

	ab, gb := actual.Bounds(), golden.Bounds()
	if ab.Dx() != gb.Dx() || ab.Dy() != gb.Dy() {
		return Result{}, fmt.Errorf("image size %dx%d does not match golden %dx%d",
			ab.Dx(), ab.Dy(), gb.Dx(), gb.Dy())
	}

	diff := image.NewRGBA(image.Rect(0, 0, gb.Dx(), gb.Dy()))
	res := Result{TotalPixels: gb.Dx() * gb.Dy(), Diff: diff}

	for y := 0; y < gb.Dy(); y++ {
		for x := 0; x < gb.Dx(); x++ {
			a := actual.At(ab.Min.X+x, ab.Min.Y+y)
			g := golden.At(gb.Min.X+x, gb.Min.Y+y)
			if differs(a, g) {
				res.DiffPixels++
				diff.Set(x, y, diffColor)
				continue
			}
			diff.Set(x, y, dim(g))
		}
	}

	if res.TotalPixels > 0 {
		res.Ratio = float64(res.DiffPixels) / float64(res.TotalPixels)
	}
	res.Match = res.Ratio <= tolerance
	return res, nil
}

// CompareFiles decodes actual (PNG bytes, e.g. a browser screenshot) and the
// golden PNG at goldenPath and compares them.
func CompareFiles(actual []byte, goldenPath string, tolerance float64) (Result, error) {
	a, err := png.Decode(bytes.NewReader(actual))
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	f, err := os.Open(goldenPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open golden image: %w", err)
	}
	defer f.Close()

	g, err := png.Decode(f)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode golden image %s: %w", goldenPath, err)
	}

	return Compare(a, g, tolerance)
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func differs(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return delta(ar, br) > channelThreshold ||
		delta(ag, bg) > channelThreshold ||
		delta(ab, bb) > channelThreshold ||
		delta(aa, ba) > channelThreshold
}

func delta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func dim(c color.Color) color.RGBA {
	r, g, b, _ := c.RGBA()
	return color.RGBA{
		R: uint8((r >> 8) / 3),
		G: uint8((g >> 8) / 3),
		B: uint8((b >> 8) / 3),
		A: 255,
	}
}
