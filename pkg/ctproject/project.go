// Package ctproject defines the in-memory CT project aggregate: the scan
// parameters augmented with derived fields plus one or more calibrated
// sinogram buffers, together with the post-construction transforms that
// operate on an existing project.
//
// A project is immutable once constructed. Every transform returns a new
// project with freshly allocated buffers and a deep-copied parameter set;
// no two projects ever share memory.
package ctproject

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/Diagonalizable/HelTomo/pkg/scanparams"
)

// ReconMode selects the sinogram dimensionality.
type ReconMode int

const (
	// Mode2D assembles one detector row per angle (fan-beam slice).
	Mode2D ReconMode = iota

	// Mode3D assembles the full detector per angle (cone-beam stack).
	Mode3D
)

func (m ReconMode) String() string {
	switch m {
	case Mode2D:
		return "2D"
	case Mode3D:
		return "3D"
	}
	return fmt.Sprintf("ReconMode(%d)", int(m))
}

// ParseMode parses "2D" or "3D", case-insensitively.
func ParseMode(s string) (ReconMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "2D":
		return Mode2D, nil
	case "3D":
		return Mode3D, nil
	}
	return 0, fmt.Errorf("ctproject: unknown reconstruction mode %q (want 2D or 3D)", s)
}

// EnergyBin addresses one sinogram buffer of a project. Energy-integrating
// detectors produce only BinTotal; photon-counting detectors produce all
// three bins.
type EnergyBin int

const (
	BinTotal EnergyBin = iota
	BinLow
	BinHigh
)

func (b EnergyBin) String() string {
	switch b {
	case BinTotal:
		return "total"
	case BinLow:
		return "low"
	case BinHigh:
		return "high"
	}
	return fmt.Sprintf("EnergyBin(%d)", int(b))
}

// ParseEnergyBin parses the canonical bin name.
func ParseEnergyBin(s string) (EnergyBin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "total":
		return BinTotal, nil
	case "low":
		return BinLow, nil
	case "high":
		return BinHigh, nil
	}
	return 0, fmt.Errorf("ctproject: unknown energy bin %q", s)
}

// allBins is the deterministic iteration order over energy bins.
var allBins = []EnergyBin{BinTotal, BinLow, BinHigh}

// Sinogram2D is a fan-beam sinogram: one row per acquisition angle, in
// angle order, one column per post-binning detector column.
type Sinogram2D struct {
	NumAngles int
	NumCols   int

	// data is row-major [angle][col].
	data []float64
}

// NewSinogram2D allocates a zeroed 2D sinogram. A zero angle count is
// valid; it describes the empty sinogram an angular subsampling with no
// matches produces.
func NewSinogram2D(angles, cols int) *Sinogram2D {
	if angles < 0 || cols <= 0 {
		panic(fmt.Sprintf("ctproject: invalid 2D sinogram dimensions %dx%d", angles, cols))
	}
	return &Sinogram2D{
		NumAngles: angles,
		NumCols:   cols,
		data:      make([]float64, angles*cols),
	}
}

// At returns the attenuation value at the given angle row and detector
// column.
func (s *Sinogram2D) At(angle, col int) float64 {
	return s.data[angle*s.NumCols+col]
}

// Set stores an attenuation value.
func (s *Sinogram2D) Set(angle, col int, v float64) {
	s.data[angle*s.NumCols+col] = v
}

// Row returns the detector row of one angle. The returned slice aliases
// the sinogram; callers that keep it must copy.
func (s *Sinogram2D) Row(angle int) []float64 {
	return s.data[angle*s.NumCols : (angle+1)*s.NumCols]
}

// SetRow copies one angle's detector readings into the sinogram.
func (s *Sinogram2D) SetRow(angle int, row []float64) {
	if len(row) != s.NumCols {
		panic(fmt.Sprintf("ctproject: row length %d does not match %d detector columns", len(row), s.NumCols))
	}
	copy(s.Row(angle), row)
}

// Matrix returns the sinogram as a dense matrix (angles × columns) for
// handoff to the reconstruction engine. It returns nil for the empty
// sinogram.
func (s *Sinogram2D) Matrix() *mat.Dense {
	if s.NumAngles == 0 {
		return nil
	}
	return mat.NewDense(s.NumAngles, s.NumCols, append([]float64(nil), s.data...))
}

// Clone returns an independent copy.
func (s *Sinogram2D) Clone() *Sinogram2D {
	out := &Sinogram2D{NumAngles: s.NumAngles, NumCols: s.NumCols}
	out.data = append([]float64(nil), s.data...)
	return out
}

// Raw exposes the backing buffer for persistence. The slice aliases the
// sinogram and must not be modified.
func (s *Sinogram2D) Raw() []float64 { return s.data }

// Sinogram3D is a cone-beam sinogram with the fixed axis convention
// [detector column, angle, detector row]. The angle is the middle axis;
// this ordering matches what the cone-beam reconstruction engine expects
// and must not be changed independently of the geometry record.
type Sinogram3D struct {
	NumCols   int
	NumAngles int
	NumRows   int

	// data is laid out [col][angle][row], row-major.
	data []float64
}

// NewSinogram3D allocates a zeroed 3D sinogram. A zero angle count is
// valid.
func NewSinogram3D(cols, angles, rows int) *Sinogram3D {
	if cols <= 0 || angles < 0 || rows <= 0 {
		panic(fmt.Sprintf("ctproject: invalid 3D sinogram dimensions %dx%dx%d", cols, angles, rows))
	}
	return &Sinogram3D{
		NumCols:   cols,
		NumAngles: angles,
		NumRows:   rows,
		data:      make([]float64, cols*angles*rows),
	}
}

// At returns the attenuation value at (detector column, angle, detector
// row).
func (s *Sinogram3D) At(col, angle, row int) float64 {
	return s.data[(col*s.NumAngles+angle)*s.NumRows+row]
}

// Set stores an attenuation value.
func (s *Sinogram3D) Set(col, angle, row int, v float64) {
	s.data[(col*s.NumAngles+angle)*s.NumRows+row] = v
}

// SetAngleSlice stores the transposed calibrated projection (columns ×
// rows) of one angle.
func (s *Sinogram3D) SetAngleSlice(angle int, slice *mat.Dense) {
	r, c := slice.Dims()
	if r != s.NumCols || c != s.NumRows {
		panic(fmt.Sprintf("ctproject: angle slice %dx%d does not match sinogram %dx%d (cols x rows)", r, c, s.NumCols, s.NumRows))
	}
	for col := 0; col < s.NumCols; col++ {
		for row := 0; row < s.NumRows; row++ {
			s.Set(col, angle, row, slice.At(col, row))
		}
	}
}

// AngleSlice returns a copy of one angle's slice as a columns × rows
// matrix.
func (s *Sinogram3D) AngleSlice(angle int) *mat.Dense {
	out := mat.NewDense(s.NumCols, s.NumRows, nil)
	for col := 0; col < s.NumCols; col++ {
		for row := 0; row < s.NumRows; row++ {
			out.Set(col, row, s.At(col, angle, row))
		}
	}
	return out
}

// Clone returns an independent copy.
func (s *Sinogram3D) Clone() *Sinogram3D {
	out := &Sinogram3D{NumCols: s.NumCols, NumAngles: s.NumAngles, NumRows: s.NumRows}
	out.data = append([]float64(nil), s.data...)
	return out
}

// Raw exposes the backing buffer for persistence. The slice aliases the
// sinogram and must not be modified.
func (s *Sinogram3D) Raw() []float64 { return s.data }

// Project is the assembled CT project: reconstruction mode, augmented scan
// parameters and the sinogram buffers of the detector's energy bins.
type Project struct {
	Mode   ReconMode
	Params *scanparams.Parameters

	sino2D map[EnergyBin]*Sinogram2D
	sino3D map[EnergyBin]*Sinogram3D
}

// requiredBins returns the energy bins a detector type must populate.
func requiredBins(t scanparams.DetectorType) []EnergyBin {
	if t == scanparams.DetectorPCD {
		return []EnergyBin{BinTotal, BinLow, BinHigh}
	}
	return []EnergyBin{BinTotal}
}

func checkBins[S any](params *scanparams.Parameters, bufs map[EnergyBin]S) error {
	required := requiredBins(params.DetectorType)
	if len(bufs) != len(required) {
		return fmt.Errorf("ctproject: detector type %s requires exactly %d sinogram buffer(s), got %d",
			params.DetectorType, len(required), len(bufs))
	}
	for _, bin := range required {
		if _, ok := bufs[bin]; !ok {
			return fmt.Errorf("ctproject: detector type %s is missing the %s energy bin", params.DetectorType, bin)
		}
	}
	return nil
}

// New2D constructs a 2D project from its energy-bin buffers. An EID
// parameter set requires exactly the total bin, a PCD set all three bins;
// anything else fails, so a project is never partially populated.
func New2D(params *scanparams.Parameters, bufs map[EnergyBin]*Sinogram2D) (*Project, error) {
	if params == nil {
		return nil, fmt.Errorf("ctproject: nil scan parameters")
	}
	if err := checkBins(params, bufs); err != nil {
		return nil, err
	}
	var angles, cols = -1, -1
	for _, s := range bufs {
		if angles == -1 {
			angles, cols = s.NumAngles, s.NumCols
		} else if s.NumAngles != angles || s.NumCols != cols {
			return nil, fmt.Errorf("ctproject: energy-bin buffers disagree on sinogram shape")
		}
	}
	own := make(map[EnergyBin]*Sinogram2D, len(bufs))
	for bin, s := range bufs {
		own[bin] = s.Clone()
	}
	return &Project{Mode: Mode2D, Params: params.Clone(), sino2D: own}, nil
}

// New3D constructs a 3D project from its energy-bin buffers, with the same
// completeness rules as New2D.
func New3D(params *scanparams.Parameters, bufs map[EnergyBin]*Sinogram3D) (*Project, error) {
	if params == nil {
		return nil, fmt.Errorf("ctproject: nil scan parameters")
	}
	if err := checkBins(params, bufs); err != nil {
		return nil, err
	}
	var cols, angles, rows = -1, -1, -1
	for _, s := range bufs {
		if cols == -1 {
			cols, angles, rows = s.NumCols, s.NumAngles, s.NumRows
		} else if s.NumCols != cols || s.NumAngles != angles || s.NumRows != rows {
			return nil, fmt.Errorf("ctproject: energy-bin buffers disagree on sinogram shape")
		}
	}
	own := make(map[EnergyBin]*Sinogram3D, len(bufs))
	for bin, s := range bufs {
		own[bin] = s.Clone()
	}
	return &Project{Mode: Mode3D, Params: params.Clone(), sino3D: own}, nil
}

// Bins returns the populated energy bins in deterministic order.
func (p *Project) Bins() []EnergyBin {
	var out []EnergyBin
	for _, bin := range allBins {
		if _, ok := p.sino2D[bin]; ok {
			out = append(out, bin)
			continue
		}
		if _, ok := p.sino3D[bin]; ok {
			out = append(out, bin)
		}
	}
	return out
}

// Sinogram2D returns the 2D buffer of an energy bin, or an error if the
// project is 3D or the bin is absent.
func (p *Project) Sinogram2D(bin EnergyBin) (*Sinogram2D, error) {
	if p.Mode != Mode2D {
		return nil, fmt.Errorf("ctproject: project is %s, not 2D", p.Mode)
	}
	s, ok := p.sino2D[bin]
	if !ok {
		return nil, fmt.Errorf("ctproject: project has no %s energy bin", bin)
	}
	return s, nil
}

// Sinogram3D returns the 3D buffer of an energy bin, or an error if the
// project is 2D or the bin is absent.
func (p *Project) Sinogram3D(bin EnergyBin) (*Sinogram3D, error) {
	if p.Mode != Mode3D {
		return nil, fmt.Errorf("ctproject: project is %s, not 3D", p.Mode)
	}
	s, ok := p.sino3D[bin]
	if !ok {
		return nil, fmt.Errorf("ctproject: project has no %s energy bin", bin)
	}
	return s, nil
}

// NumAngles returns the number of acquisition angles in the sinograms.
func (p *Project) NumAngles() int {
	for _, s := range p.sino2D {
		return s.NumAngles
	}
	for _, s := range p.sino3D {
		return s.NumAngles
	}
	return 0
}
