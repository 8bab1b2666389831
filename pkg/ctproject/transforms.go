package ctproject

import (
	"fmt"
	"math"
)

// AngleMatchTolerance is the absolute tolerance, in degrees, used when
// matching requested angles against a project's angle list. Angle lists
// come from floating-point arithmetic expansion, so membership has to be
// tolerant rather than exact.
const AngleMatchTolerance = 1e-6

// CorrectCOR returns a new project whose sinogram is circularly shifted by
// shift pixels along the detector-column axis, compensating a misplaced
// center of rotation. Positive shifts move data towards higher column
// indices; the boundary condition is wrap-around, so the operation is an
// exact bijection and CorrectCOR(CorrectCOR(p, n), -n) reproduces p.
// Every energy bin is shifted identically. The input project is not
// modified.
func CorrectCOR(p *Project, shift int) (*Project, error) {
	switch p.Mode {
	case Mode2D:
		bufs := make(map[EnergyBin]*Sinogram2D, len(p.sino2D))
		for bin, s := range p.sino2D {
			out := NewSinogram2D(s.NumAngles, s.NumCols)
			for a := 0; a < s.NumAngles; a++ {
				for c := 0; c < s.NumCols; c++ {
					out.Set(a, wrap(c+shift, s.NumCols), s.At(a, c))
				}
			}
			bufs[bin] = out
		}
		return New2D(p.Params, bufs)

	case Mode3D:
		bufs := make(map[EnergyBin]*Sinogram3D, len(p.sino3D))
		for bin, s := range p.sino3D {
			out := NewSinogram3D(s.NumCols, s.NumAngles, s.NumRows)
			for a := 0; a < s.NumAngles; a++ {
				for r := 0; r < s.NumRows; r++ {
					for c := 0; c < s.NumCols; c++ {
						out.Set(wrap(c+shift, s.NumCols), a, r, s.At(c, a, r))
					}
				}
			}
			bufs[bin] = out
		}
		return New3D(p.Params, bufs)
	}
	return nil, fmt.Errorf("ctproject: unknown reconstruction mode %v", p.Mode)
}

// wrap maps i into [0,n) with circular boundary semantics, handling
// negative shifts.
func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// SubsampleAngles returns a new project retaining only the acquisition
// angles, in project order, that match one of the requested angles
// (degrees) within AngleMatchTolerance. The operation is a filter:
// requested angles absent from the project are ignored, and a request
// matching nothing yields a valid project with zero angles. The derived
// parameter copy has NumberImages and the angle list updated to the
// retained subset.
func SubsampleAngles(p *Project, anglesDeg []float64) (*Project, error) {
	var keep []int
	for i, have := range p.Params.Angles {
		for _, want := range anglesDeg {
			if math.Abs(have-want) <= AngleMatchTolerance {
				keep = append(keep, i)
				break
			}
		}
	}

	params := p.Params.Clone()
	params.NumberImages = len(keep)
	params.Angles = make([]float64, len(keep))
	for out, in := range keep {
		params.Angles[out] = p.Params.Angles[in]
	}

	switch p.Mode {
	case Mode2D:
		bufs := make(map[EnergyBin]*Sinogram2D, len(p.sino2D))
		for bin, s := range p.sino2D {
			out := NewSinogram2D(len(keep), s.NumCols)
			for dst, src := range keep {
				out.SetRow(dst, s.Row(src))
			}
			bufs[bin] = out
		}
		return New2D(params, bufs)

	case Mode3D:
		bufs := make(map[EnergyBin]*Sinogram3D, len(p.sino3D))
		for bin, s := range p.sino3D {
			out := NewSinogram3D(s.NumCols, len(keep), s.NumRows)
			for dst, src := range keep {
				for c := 0; c < s.NumCols; c++ {
					for r := 0; r < s.NumRows; r++ {
						out.Set(c, dst, r, s.At(c, src, r))
					}
				}
			}
			bufs[bin] = out
		}
		return New3D(params, bufs)
	}
	return nil, fmt.Errorf("ctproject: unknown reconstruction mode %v", p.Mode)
}
