package binning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rampImage fills an rows×cols matrix with distinct increasing values.
func rampImage(rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	floats.Span(data, 1, float64(rows*cols))
	return mat.NewDense(rows, cols, data)
}

func total(m *mat.Dense) float64 {
	rows, _ := m.Dims()
	sum := 0.0
	for r := 0; r < rows; r++ {
		sum += floats.Sum(m.RawRowView(r))
	}
	return sum
}

func TestBinIdentity(t *testing.T) {
	img := rampImage(8, 8)
	out, err := Bin(img, 1)
	require.NoError(t, err)
	assert.True(t, mat.Equal(img, out))

	// The identity must still be a copy, never an alias.
	out.Set(0, 0, -1)
	assert.Equal(t, 1.0, img.At(0, 0))
}

func TestBinBlockSum(t *testing.T) {
	img := mat.NewDense(4, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	out, err := Bin(img, 2)
	require.NoError(t, err)

	rows, cols := out.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	assert.Equal(t, 14.0, out.At(0, 0))
	assert.Equal(t, 22.0, out.At(0, 1))
	assert.Equal(t, 46.0, out.At(1, 0))
	assert.Equal(t, 54.0, out.At(1, 1))
}

func TestBinConservesTotalIntensity(t *testing.T) {
	img := rampImage(32, 64)
	for _, factor := range []int{1, 2, 4, 8, 16, 32} {
		out, err := Bin(img, factor)
		require.NoError(t, err, "factor %d", factor)
		assert.InDelta(t, total(img), total(out), 1e-9, "factor %d", factor)
	}
}

func TestBinComposes(t *testing.T) {
	img := rampImage(16, 16)

	twice, err := Bin(img, 2)
	require.NoError(t, err)
	twiceMore, err := Bin(twice, 4)
	require.NoError(t, err)

	direct, err := Bin(img, 8)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(direct, twiceMore, 1e-12))
}

func TestBinInvalidFactor(t *testing.T) {
	img := rampImage(8, 8)
	for _, factor := range []int{0, -2, 3, 6, 64} {
		_, err := Bin(img, factor)
		var invalid *InvalidFactorError
		require.ErrorAs(t, err, &invalid, "factor %d", factor)
		assert.Equal(t, factor, invalid.Factor)
	}
}

func TestBinNonDivisibleDimensions(t *testing.T) {
	_, err := Bin(rampImage(6, 8), 4)
	var nondiv *NonDivisibleError
	require.ErrorAs(t, err, &nondiv)
	assert.Equal(t, 6, nondiv.Rows)
	assert.Equal(t, 4, nondiv.Factor)

	_, err = Bin(rampImage(8, 6), 4)
	assert.ErrorAs(t, err, &nondiv)
}

func TestBinDoesNotModifyInput(t *testing.T) {
	img := rampImage(4, 4)
	before := mat.DenseCopyOf(img)
	_, err := Bin(img, 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, img))
}
