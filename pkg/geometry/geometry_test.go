package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diagonalizable/HelTomo/pkg/scanparams"
)

func testParameters() *scanparams.Parameters {
	p := &scanparams.Parameters{
		ProjectName:            "walnut",
		GeometryType:           "Cone",
		DistanceSourceDetector: 553.74,
		DistanceSourceOrigin:   410.66,
		NumberImages:           3,
		Angles:                 []float64{0, 90, 180},
		DetectorType:           scanparams.DetectorEID,
		PixelSize:              0.05,
	}
	return p.WithDerived(scanparams.Derived{
		DetectorRows:         256,
		DetectorCols:         512,
		BinningFactor:        1,
		PixelSizePostBinning: 0.05,
		EffectivePixelSize:   0.05,
		RowsPostBinning:      256,
		ColsPostBinning:      512,
	})
}

func TestFromParametersNormalization(t *testing.T) {
	g, err := FromParameters(testParameters())
	require.NoError(t, err)

	// The reference scan: DSD=553.74mm, DSO=410.66mm, effective pixel
	// size 0.05mm.
	assert.InDelta(t, 1.3485, g.Magnification, 1e-4)
	assert.InDelta(t, 410.66/0.05, g.SourceToOriginPixels, 1e-9)
	assert.InDelta(t, (553.74-410.66)/0.05, g.OriginToDetectorPixels, 1e-9)
	assert.Equal(t, 256, g.DetectorRows)
	assert.Equal(t, 512, g.DetectorCols)
}

func TestFromParametersAnglesInRadians(t *testing.T) {
	g, err := FromParameters(testParameters())
	require.NoError(t, err)

	require.Len(t, g.AnglesRad, 3)
	assert.Equal(t, 0.0, g.AnglesRad[0])
	assert.InDelta(t, math.Pi/2, g.AnglesRad[1], 1e-12)
	assert.InDelta(t, math.Pi, g.AnglesRad[2], 1e-12)
}

func TestFromParametersDivisionOrder(t *testing.T) {
	// The source-side distance must be divided by the effective pixel
	// size, not multiplied, and DSO must come first. A wrong order would
	// still produce plausible-looking magnitudes, so pin it numerically.
	p := testParameters()
	p.Derived.EffectivePixelSize = 0.1
	g, err := FromParameters(p)
	require.NoError(t, err)

	assert.InDelta(t, 4106.6, g.SourceToOriginPixels, 1e-9)
	assert.InDelta(t, 1430.8, g.OriginToDetectorPixels, 1e-9)
	assert.Greater(t, g.SourceToOriginPixels, g.OriginToDetectorPixels)
}

func TestFromParametersRequiresDerivedFields(t *testing.T) {
	p := testParameters()
	p.Derived = nil
	_, err := FromParameters(p)
	assert.ErrorIs(t, err, ErrMissingDerived)

	p = testParameters()
	p.Derived.EffectivePixelSize = 0
	_, err = FromParameters(p)
	assert.ErrorIs(t, err, ErrMissingDerived)
}
