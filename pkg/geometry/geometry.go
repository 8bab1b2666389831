// Package geometry translates the physical scan metadata into the
// normalized quantities consumed by the reconstruction engine.
//
// The engine works in units of the effective detector pixel (post-binning
// pitch divided by the geometric magnification) and in radians. The
// division order of the normalization is the single highest-value
// invariant in the whole pipeline: getting it wrong produces a correctly
// shaped but geometrically wrong reconstruction with no error anywhere.
package geometry

import (
	"errors"
	"math"

	"github.com/Diagonalizable/HelTomo/pkg/scanparams"
)

// ErrMissingDerived is returned when the parameters have not been through
// project creation and therefore carry no effective pixel size.
var ErrMissingDerived = errors.New("geometry: parameters carry no derived fields; build a project first")

// Geometry is the normalized geometry record handed to the reconstruction
// engine together with a sinogram.
type Geometry struct {
	// Magnification is DSD/DSO, dimensionless.
	Magnification float64

	// SourceToOriginPixels is the source-to-rotation-axis distance
	// expressed in effective detector pixels: DSO / effectivePixelSize.
	SourceToOriginPixels float64

	// OriginToDetectorPixels is the rotation-axis-to-detector distance in
	// effective detector pixels: (DSD - DSO) / effectivePixelSize.
	OriginToDetectorPixels float64

	// AnglesRad is the acquisition angle sequence in radians, in
	// acquisition order.
	AnglesRad []float64

	// DetectorRows and DetectorCols are the post-binning detector
	// dimensions, which fix the sinogram extent the engine must expect.
	DetectorRows int
	DetectorCols int
}

// FromParameters derives the normalized geometry from scan parameters that
// have been augmented with derived fields during project creation.
func FromParameters(p *scanparams.Parameters) (Geometry, error) {
	if p.Derived == nil {
		return Geometry{}, ErrMissingDerived
	}
	eff := p.Derived.EffectivePixelSize
	if eff <= 0 {
		return Geometry{}, ErrMissingDerived
	}

	dsd := p.DistanceSourceDetector
	dso := p.DistanceSourceOrigin
	g := Geometry{
		Magnification:          dsd / dso,
		SourceToOriginPixels:   dso / eff,
		OriginToDetectorPixels: (dsd - dso) / eff,
		AnglesRad:              make([]float64, len(p.Angles)),
		DetectorRows:           p.Derived.RowsPostBinning,
		DetectorCols:           p.Derived.ColsPostBinning,
	}
	for i, deg := range p.Angles {
		g.AnglesRad[i] = deg * math.Pi / 180
	}
	return g, nil
}
