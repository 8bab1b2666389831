// Package calibration converts raw detector readings into attenuation
// values using a free-ray background intensity.
//
// The transform is the Beer-Lambert log ratio A = -ln(I/b). A degenerate
// background (zero or saturated free-ray window) would silently turn the
// whole sinogram into NaN/Inf, so both the background and every calibrated
// pixel are validated and surfaced as errors instead.
package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// BackgroundError reports a non-positive or non-finite background
// intensity.
type BackgroundError struct {
	Value float64
}

func (e *BackgroundError) Error() string {
	return fmt.Sprintf("calibration: background intensity %v is not a positive finite value", e.Value)
}

// NonFiniteError reports a calibrated pixel that came out NaN or Inf,
// which happens when the raw reading at that pixel is zero or negative.
type NonFiniteError struct {
	Row, Col int
	Raw      float64
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("calibration: raw reading %v at pixel (%d,%d) produced a non-finite attenuation value", e.Raw, e.Row, e.Col)
}

// WindowMean returns the arithmetic mean pixel value of a calibration
// window.
func WindowMean(window *mat.Dense) float64 {
	rows, cols := window.Dims()
	vals := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		vals = append(vals, window.RawRowView(r)...)
	}
	return stat.Mean(vals, nil)
}

// Attenuation computes the element-wise attenuation image
// A = -ln(I/background) of a raw (optionally binned) projection.
// The input image is never modified.
func Attenuation(img *mat.Dense, background float64) (*mat.Dense, error) {
	if background <= 0 || math.IsNaN(background) || math.IsInf(background, 0) {
		return nil, &BackgroundError{Value: background}
	}
	rows, cols := img.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			raw := img.At(r, c)
			a := -math.Log(raw / background)
			if math.IsNaN(a) || math.IsInf(a, 0) {
				return nil, &NonFiniteError{Row: r, Col: c, Raw: raw}
			}
			out.Set(r, c, a)
		}
	}
	return out, nil
}
