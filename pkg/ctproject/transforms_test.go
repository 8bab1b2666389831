package ctproject

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectCORShifts2D(t *testing.T) {
	params := eidParams([]float64{0, 90})
	s := NewSinogram2D(2, 4)
	s.SetRow(0, []float64{1, 2, 3, 4})
	s.SetRow(1, []float64{5, 6, 7, 8})
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
	require.NoError(t, err)

	shifted, err := CorrectCOR(p, 1)
	require.NoError(t, err)
	out := mustSino2D(t, shifted, BinTotal)

	// Positive shift moves data towards higher columns, wrapping around.
	assert.Equal(t, []float64{4, 1, 2, 3}, append([]float64(nil), out.Row(0)...))
	assert.Equal(t, []float64{8, 5, 6, 7}, append([]float64(nil), out.Row(1)...))

	// The original project is untouched.
	assert.Equal(t, []float64{1, 2, 3, 4}, append([]float64(nil), mustSino2D(t, p, BinTotal).Row(0)...))
}

func TestCorrectCORIsInvertible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	params := eidParams([]float64{0, 90, 180})

	t.Run("2D", func(t *testing.T) {
		s := random2D(rng, 3, 16)
		p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
		require.NoError(t, err)

		forward, err := CorrectCOR(p, 5)
		require.NoError(t, err)
		back, err := CorrectCOR(forward, -5)
		require.NoError(t, err)

		assert.Equal(t, mustSino2D(t, p, BinTotal).Raw(), mustSino2D(t, back, BinTotal).Raw())
	})

	t.Run("3D", func(t *testing.T) {
		s := random3D(rng, 16, 3, 8)
		p, err := New3D(params, map[EnergyBin]*Sinogram3D{BinTotal: s})
		require.NoError(t, err)

		forward, err := CorrectCOR(p, -3)
		require.NoError(t, err)
		back, err := CorrectCOR(forward, 3)
		require.NoError(t, err)

		got, err := back.Sinogram3D(BinTotal)
		require.NoError(t, err)
		want, err := p.Sinogram3D(BinTotal)
		require.NoError(t, err)
		assert.Equal(t, want.Raw(), got.Raw())
	})
}

func TestCorrectCORShiftsLargerThanWidth(t *testing.T) {
	params := eidParams([]float64{0})
	s := NewSinogram2D(1, 4)
	s.SetRow(0, []float64{1, 2, 3, 4})
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
	require.NoError(t, err)

	// A full revolution is the identity.
	full, err := CorrectCOR(p, 4)
	require.NoError(t, err)
	assert.Equal(t, s.Raw(), mustSino2D(t, full, BinTotal).Raw())

	// 5 ≡ 1 (mod 4).
	five, err := CorrectCOR(p, 5)
	require.NoError(t, err)
	one, err := CorrectCOR(p, 1)
	require.NoError(t, err)
	assert.Equal(t, mustSino2D(t, one, BinTotal).Raw(), mustSino2D(t, five, BinTotal).Raw())
}

func TestSubsampleAnglesFilters(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	params := eidParams([]float64{0, 90, 180, 270})
	s := random3D(rng, 8, 4, 8)
	p, err := New3D(params, map[EnergyBin]*Sinogram3D{BinTotal: s})
	require.NoError(t, err)

	sub, err := SubsampleAngles(p, []float64{90, 270})
	require.NoError(t, err)

	assert.Equal(t, 2, sub.Params.NumberImages)
	assert.Equal(t, []float64{90, 270}, sub.Params.Angles)

	got, err := sub.Sinogram3D(BinTotal)
	require.NoError(t, err)
	require.Equal(t, 2, got.NumAngles)
	for c := 0; c < 8; c++ {
		for r := 0; r < 8; r++ {
			assert.Equal(t, s.At(c, 1, r), got.At(c, 0, r))
			assert.Equal(t, s.At(c, 3, r), got.At(c, 1, r))
		}
	}
}

func TestSubsampleAnglesIsTolerant(t *testing.T) {
	params := eidParams([]float64{0, 90})
	s := NewSinogram2D(2, 4)
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
	require.NoError(t, err)

	// A requested angle within the floating-point tolerance matches.
	sub, err := SubsampleAngles(p, []float64{90 + 1e-9})
	require.NoError(t, err)
	assert.Equal(t, []float64{90}, sub.Params.Angles)
}

func TestSubsampleAnglesFullListIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	params := eidParams([]float64{0, 90, 180})
	s := random2D(rng, 3, 8)
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
	require.NoError(t, err)

	sub, err := SubsampleAngles(p, p.Params.Angles)
	require.NoError(t, err)

	assert.Equal(t, p.Params.Angles, sub.Params.Angles)
	assert.Equal(t, mustSino2D(t, p, BinTotal).Raw(), mustSino2D(t, sub, BinTotal).Raw())
}

func TestSubsampleAnglesAbsentAnglesIgnored(t *testing.T) {
	params := eidParams([]float64{0, 90})
	s := NewSinogram2D(2, 4)
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
	require.NoError(t, err)

	// Nothing matches: a valid empty project, not an error.
	sub, err := SubsampleAngles(p, []float64{17, 33.5})
	require.NoError(t, err)
	assert.Equal(t, 0, sub.Params.NumberImages)
	assert.Empty(t, sub.Params.Angles)
	assert.Equal(t, 0, sub.NumAngles())
}
