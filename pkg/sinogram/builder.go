// Package sinogram assembles a calibrated CT project from raw projection
// images and scan parameters.
//
// For every acquisition angle the builder extracts the free-ray window
// from the raw image, applies the optional center-of-rotation shift and
// binning, converts the image to attenuation values against the window
// mean, and inserts the result into the sinogram buffer. The per-image
// step order is a contract: the window is always taken from the raw,
// unshifted, unbinned image, and the circular shift precedes binning.
package sinogram

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/Diagonalizable/HelTomo/pkg/binning"
	"github.com/Diagonalizable/HelTomo/pkg/calibration"
	"github.com/Diagonalizable/HelTomo/pkg/ctproject"
	"github.com/Diagonalizable/HelTomo/pkg/scanparams"
)

// Source yields the raw projection images of a scan, one per acquisition
// angle, in angle order. Indexing is 1-based, matching the acquisition
// numbering of the scanner. Implementations must be safe for concurrent
// Projection calls and must return matrices of identical shape for every
// index.
type Source interface {
	NumProjections() int
	Projection(index int) (*mat.Dense, error)
}

// UnsupportedDetectorError reports a detector type the assembly pipeline
// cannot calibrate. Photon-counting detectors need a per-energy-bin
// threshold calibration that this builder does not implement.
type UnsupportedDetectorError struct {
	Type scanparams.DetectorType
}

func (e *UnsupportedDetectorError) Error() string {
	return fmt.Sprintf("sinogram: detector type %s is not supported by the intensity-calibration pipeline (only EID)", e.Type)
}

// ProjectionCountError reports a mismatch between the declared number of
// images and the number of projections the source provides.
type ProjectionCountError struct {
	Declared  int
	Available int
}

func (e *ProjectionCountError) Error() string {
	return fmt.Sprintf("sinogram: scan parameters declare %d images but the source provides %d projections", e.Declared, e.Available)
}

// ShapeMismatchError reports a projection whose dimensions differ from
// the detector dimensions fixed by the first projection.
type ShapeMismatchError struct {
	Index              int
	GotRows, GotCols   int
	WantRows, WantCols int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("sinogram: projection %d is %dx%d, want %dx%d", e.Index, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}

// Builder assembles one CT project. The zero values of the optional
// fields select no COR shift, no binning and one worker per CPU.
type Builder struct {
	// Params is the parsed scan metadata. It is never modified; the
	// produced project carries an augmented copy.
	Params *scanparams.Parameters

	// Mode selects fan-beam (2D) or cone-beam (3D) assembly.
	Mode ctproject.ReconMode

	// Source yields the raw projection images.
	Source Source

	// Window is the free-ray calibration window on the raw detector.
	Window scanparams.FreeRayWindow

	// CORShift circularly shifts every raw image along the detector
	// column axis by this many pixels (positive = towards higher
	// columns) before binning and calibration.
	CORShift int

	// BinningFactor block-sums the image and the calibration window by
	// this power-of-two factor. Zero means 1 (no binning).
	BinningFactor int

	// Workers bounds the number of projections processed concurrently.
	// Zero means runtime.NumCPU().
	Workers int

	// Log receives progress output; nil disables logging.
	Log logrus.FieldLogger
}

// Build runs the assembly and returns the completed project. All
// parameter-level validation happens before the first projection is read;
// any per-image failure aborts the whole build and no partial project is
// ever returned.
func (b *Builder) Build() (*ctproject.Project, error) {
	log := b.logger()

	if b.Params == nil {
		return nil, fmt.Errorf("sinogram: nil scan parameters")
	}
	if b.Source == nil {
		return nil, fmt.Errorf("sinogram: nil projection source")
	}
	if b.Params.DetectorType != scanparams.DetectorEID {
		return nil, &UnsupportedDetectorError{Type: b.Params.DetectorType}
	}

	factor := b.BinningFactor
	if factor == 0 {
		factor = 1
	}
	if err := binning.CheckFactor(factor); err != nil {
		return nil, err
	}
	if err := b.Window.Validate(); err != nil {
		return nil, err
	}
	if n := b.Source.NumProjections(); n != b.Params.NumberImages {
		return nil, &ProjectionCountError{Declared: b.Params.NumberImages, Available: n}
	}

	// The first projection fixes the detector dimensions for the whole
	// scan.
	first, err := b.Source.Projection(1)
	if err != nil {
		return nil, fmt.Errorf("sinogram: read projection 1: %w", err)
	}
	rows, cols := first.Dims()
	if err := b.Window.ValidateWithin(rows, cols); err != nil {
		return nil, err
	}
	if err := binning.CheckDivisible(rows, cols, factor); err != nil {
		return nil, err
	}
	if err := binning.CheckDivisible(b.Window.Rows(), b.Window.Cols(), factor); err != nil {
		return nil, fmt.Errorf("free-ray window: %w", err)
	}

	post := b.Params.PixelSize * float64(factor)
	derived := scanparams.Derived{
		DetectorRows:         rows,
		DetectorCols:         cols,
		Window:               b.Window,
		BinningFactor:        factor,
		PixelSizePostBinning: post,
		EffectivePixelSize:   post / b.Params.Magnification(),
		RowsPostBinning:      rows / factor,
		ColsPostBinning:      cols / factor,
	}
	params := b.Params.WithDerived(derived)

	numImages := params.NumberImages
	log.WithFields(logrus.Fields{
		"project":       params.ProjectName,
		"mode":          b.Mode.String(),
		"images":        numImages,
		"detector":      fmt.Sprintf("%dx%d", rows, cols),
		"binningFactor": factor,
		"corShift":      b.CORShift,
	}).Info("Assembling sinogram")

	var sino2D *ctproject.Sinogram2D
	var sino3D *ctproject.Sinogram3D
	switch b.Mode {
	case ctproject.Mode2D:
		sino2D = ctproject.NewSinogram2D(numImages, derived.ColsPostBinning)
	case ctproject.Mode3D:
		sino3D = ctproject.NewSinogram3D(derived.ColsPostBinning, numImages, derived.RowsPostBinning)
	default:
		return nil, fmt.Errorf("sinogram: unknown reconstruction mode %v", b.Mode)
	}

	// Projections are independent of one another, so they are processed
	// by a worker pool; each index owns a disjoint region of the
	// sinogram buffer.
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > numImages {
		workers = numImages
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var buildErr error

	setErr := func(err error) {
		mu.Lock()
		if buildErr == nil {
			buildErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return buildErr != nil
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				if failed() {
					continue
				}
				if err := b.processOne(idx, rows, cols, factor, sino2D, sino3D); err != nil {
					setErr(err)
				}
			}
		}()
	}
	for idx := 1; idx <= numImages; idx++ {
		indices <- idx
	}
	close(indices)
	wg.Wait()

	if buildErr != nil {
		return nil, buildErr
	}

	log.WithField("images", numImages).Info("Sinogram assembly complete")

	if b.Mode == ctproject.Mode2D {
		return ctproject.New2D(params, map[ctproject.EnergyBin]*ctproject.Sinogram2D{
			ctproject.BinTotal: sino2D,
		})
	}
	return ctproject.New3D(params, map[ctproject.EnergyBin]*ctproject.Sinogram3D{
		ctproject.BinTotal: sino3D,
	})
}

// processOne runs the per-image pipeline for acquisition index idx and
// stores the result at angle position idx-1. Exactly one of sino2D and
// sino3D is non-nil.
func (b *Builder) processOne(idx, rows, cols, factor int, sino2D *ctproject.Sinogram2D, sino3D *ctproject.Sinogram3D) error {
	raw, err := b.Source.Projection(idx)
	if err != nil {
		return fmt.Errorf("sinogram: read projection %d: %w", idx, err)
	}
	if r, c := raw.Dims(); r != rows || c != cols {
		return &ShapeMismatchError{Index: idx, GotRows: r, GotCols: c, WantRows: rows, WantCols: cols}
	}

	// 1. Free-ray window from the raw, unshifted, unbinned image.
	window := extractWindow(raw, b.Window)

	// 2. Circular COR shift of the whole image along the column axis.
	img := raw
	if b.CORShift != 0 {
		img = shiftCols(raw, b.CORShift)
	}

	// 3. Binning of image and window independently, same factor.
	if factor != 1 {
		if img, err = binning.Bin(img, factor); err != nil {
			return fmt.Errorf("projection %d: %w", idx, err)
		}
		if window, err = binning.Bin(window, factor); err != nil {
			return fmt.Errorf("projection %d free-ray window: %w", idx, err)
		}
	}

	// 4, 5. Background mean and log-attenuation transform.
	background := calibration.WindowMean(window)
	atten, err := calibration.Attenuation(img, background)
	if err != nil {
		return fmt.Errorf("projection %d: %w", idx, err)
	}

	// 6. Insert at the angle position.
	angle := idx - 1
	if sino2D != nil {
		centerRow := rows / factor / 2
		sino2D.SetRow(angle, mat.Row(nil, centerRow, atten))
		return nil
	}
	var t mat.Dense
	t.CloneFrom(atten.T())
	sino3D.SetAngleSlice(angle, &t)
	return nil
}

// extractWindow copies the 1-based inclusive free-ray window out of a raw
// projection.
func extractWindow(img *mat.Dense, w scanparams.FreeRayWindow) *mat.Dense {
	out := mat.NewDense(w.Rows(), w.Cols(), nil)
	for r := 0; r < w.Rows(); r++ {
		for c := 0; c < w.Cols(); c++ {
			out.Set(r, c, img.At(w.Row1-1+r, w.Col1-1+c))
		}
	}
	return out
}

// shiftCols returns a copy of img circularly shifted by n along the
// column axis; positive n moves pixels towards higher column indices.
func shiftCols(img *mat.Dense, n int) *mat.Dense {
	rows, cols := img.Dims()
	n %= cols
	if n < 0 {
		n += cols
	}
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, (c+n)%cols, img.At(r, c))
		}
	}
	return out
}

func (b *Builder) logger() logrus.FieldLogger {
	if b.Log != nil {
		return b.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
