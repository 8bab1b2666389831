// Package binning implements deterministic block-sum downsampling of 2D
// detector images by an integer power-of-two factor.
package binning

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MaxFactor is the largest supported binning factor.
const MaxFactor = 32

// InvalidFactorError reports a binning factor outside the supported set
// {1, 2, 4, 8, 16, 32}.
type InvalidFactorError struct {
	Factor int
}

func (e *InvalidFactorError) Error() string {
	return fmt.Sprintf("binning: factor %d is not a power of two in [1,%d]", e.Factor, MaxFactor)
}

// NonDivisibleError reports image dimensions that the factor does not
// evenly divide.
type NonDivisibleError struct {
	Rows, Cols int
	Factor     int
}

func (e *NonDivisibleError) Error() string {
	return fmt.Sprintf("binning: image dimensions %dx%d are not divisible by factor %d", e.Rows, e.Cols, e.Factor)
}

// CheckFactor validates a binning factor without touching any image data,
// so callers can reject bad configuration before reading projections.
func CheckFactor(factor int) error {
	for f := 1; f <= MaxFactor; f *= 2 {
		if factor == f {
			return nil
		}
	}
	return &InvalidFactorError{Factor: factor}
}

// CheckDivisible validates that the factor evenly divides both dimensions.
func CheckDivisible(rows, cols, factor int) error {
	if rows%factor != 0 || cols%factor != 0 {
		return &NonDivisibleError{Rows: rows, Cols: cols, Factor: factor}
	}
	return nil
}

// Bin downsamples img by summing non-overlapping factor×factor blocks.
// The result has dimensions (rows/factor, cols/factor); the total
// intensity of the image is conserved. A factor of 1 returns an
// independent copy of the input. Bin never modifies its input and never
// aliases its output to it.
func Bin(img *mat.Dense, factor int) (*mat.Dense, error) {
	if err := CheckFactor(factor); err != nil {
		return nil, err
	}
	rows, cols := img.Dims()
	if err := CheckDivisible(rows, cols, factor); err != nil {
		return nil, err
	}
	if factor == 1 {
		return mat.DenseCopyOf(img), nil
	}

	outRows := rows / factor
	outCols := cols / factor
	out := mat.NewDense(outRows, outCols, nil)
	for r := 0; r < outRows; r++ {
		for c := 0; c < outCols; c++ {
			sum := 0.0
			for br := r * factor; br < (r+1)*factor; br++ {
				for bc := c * factor; bc < (c+1)*factor; bc++ {
					sum += img.At(br, bc)
				}
			}
			out.Set(r, c, sum)
		}
	}
	return out, nil
}
