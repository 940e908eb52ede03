package visual

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCompare(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	golden := filled(10, 10, white)

	tests := []struct {
		name      string
		actual    func() image.Image
		tolerance float64
		wantDiff  int
		wantMatch bool
	}{
		{
			name:      "identical",
			actual:    func() image.Image { return filled(10, 10, white) },
			wantMatch: true,
		},
		{
			name:      "anti-aliasing noise",
			actual:    func() image.Image { return filled(10, 10, color.RGBA{R: 250, G: 250, B: 250, A: 255}) },
			wantMatch: true,
		},
		{
			name: "five pixels within tolerance",
			actual: func() image.Image {
				img := filled(10, 10, white)
				for x := 0; x < 5; x++ {
					img.Set(x, 0, color.Black)
				}
				return img
			},
			tolerance: 0.05,
			wantDiff:  5,
			wantMatch: true,
		},
		{
			name: "six pixels over tolerance",
			actual: func() image.Image {
				img := filled(10, 10, white)
				for x := 0; x < 6; x++ {
					img.Set(x, 0, color.Black)
				}
				return img
			},
			tolerance: 0.05,
			wantDiff:  6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compare(tt.actual(), golden, tt.tolerance)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDiff, res.DiffPixels)
			assert.Equal(t, 100, res.TotalPixels)
			assert.Equal(t, tt.wantMatch, res.Match)
		})
	}
}

func TestCompareMarksDiff(t *testing.T) {
	golden := filled(2, 1, color.White)
	actual := filled(2, 1, color.White)
	actual.Set(1, 0, color.Black)

	res, err := Compare(actual, golden, 0)
	require.NoError(t, err)
	assert.False(t, res.Match)
	assert.Equal(t, diffColor, res.Diff.RGBAAt(1, 0))
	assert.NotEqual(t, diffColor, res.Diff.RGBAAt(0, 0))
}

func TestCompareOffsetBounds(t *testing.T) {
	golden := filled(4, 4, color.White)
	actual := filled(8, 8, color.White).SubImage(image.Rect(4, 4, 8, 8))

	res, err := Compare(actual, golden, 0)
	require.NoError(t, err)
	assert.True(t, res.Match)
}

func TestCompareErrors(t *testing.T) {
	_, err := Compare(filled(2, 2, color.White), filled(3, 2, color.White), 0)
	assert.ErrorContains(t, err, "does not match")

	_, err = Compare(filled(2, 2, color.White), filled(2, 2, color.White), 1.5)
	assert.Error(t, err)
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	goldenPath := filepath.Join(dir, "golden.png")
	require.NoError(t, WritePNG(goldenPath, filled(3, 3, color.White)))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, filled(3, 3, color.White)))

	res, err := CompareFiles(buf.Bytes(), goldenPath, 0)
	require.NoError(t, err)
	assert.True(t, res.Match)

	_, err = CompareFiles([]byte("not a png"), goldenPath, 0)
	assert.Error(t, err)

	_, err = CompareFiles(buf.Bytes(), filepath.Join(dir, "missing.png"), 0)
	assert.Error(t, err)
}
