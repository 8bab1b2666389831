package projsource

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// writeGrayPNG writes a rows×cols 16-bit grayscale PNG whose every pixel
// holds the given value.
func writeGrayPNG(t *testing.T, path string, rows, cols int, value uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestDirOrdersByEmbeddedNumber(t *testing.T) {
	dir := t.TempDir()
	// Deliberately created out of order, with a two-digit index that
	// would sort wrong lexically.
	writeGrayPNG(t, filepath.Join(dir, "proj_10.png"), 4, 4, 3000)
	writeGrayPNG(t, filepath.Join(dir, "proj_2.png"), 4, 4, 2000)
	writeGrayPNG(t, filepath.Join(dir, "proj_1.png"), 4, 4, 1000)

	src, err := NewDir(dir)
	require.NoError(t, err)
	require.Equal(t, 3, src.NumProjections())

	for i, want := range []uint16{1000, 2000, 3000} {
		img, err := src.Projection(i + 1)
		require.NoError(t, err)
		rows, cols := img.Dims()
		assert.Equal(t, 4, rows)
		assert.Equal(t, 4, cols)
		assert.InDelta(t, float64(want)/65535.0, img.At(0, 0), 1e-9)
	}
}

func TestDirRejectsEmptyDirectory(t *testing.T) {
	_, err := NewDir(t.TempDir())
	assert.Error(t, err)
}

func TestDirIndexOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeGrayPNG(t, filepath.Join(dir, "proj_1.png"), 2, 2, 100)

	src, err := NewDir(dir)
	require.NoError(t, err)

	_, err = src.Projection(0)
	assert.Error(t, err)
	_, err = src.Projection(2)
	assert.Error(t, err)
}

func TestMatricesSource(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{5, 6, 7, 8})
	src := &Matrices{Images: []*mat.Dense{a, b}}

	assert.Equal(t, 2, src.NumProjections())

	got, err := src.Projection(2)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.At(1, 0))

	_, err = src.Projection(3)
	assert.Error(t, err)
}
