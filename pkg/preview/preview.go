// Package preview renders quick-look images of an assembled sinogram so
// an operator can sanity-check a build before handing it to the
// reconstruction engine. Two renderings are available: a raw min/max
// normalized grayscale PNG and a plotted heatmap.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Diagonalizable/HelTomo/pkg/ctproject"
)

// sinogramView is the common 2D view both renderers consume: angle rows
// by detector columns.
type sinogramView struct {
	angles, cols int
	at           func(angle, col int) float64
}

// view2D adapts a fan-beam sinogram.
func view2D(s *ctproject.Sinogram2D) sinogramView {
	return sinogramView{angles: s.NumAngles, cols: s.NumCols, at: s.At}
}

// view3D adapts one detector row of a cone-beam sinogram.
func view3D(s *ctproject.Sinogram3D, row int) (sinogramView, error) {
	if row < 0 || row >= s.NumRows {
		return sinogramView{}, fmt.Errorf("preview: detector row %d out of range [0,%d)", row, s.NumRows)
	}
	return sinogramView{
		angles: s.NumAngles,
		cols:   s.NumCols,
		at:     func(angle, col int) float64 { return s.At(col, angle, row) },
	}, nil
}

// projectView extracts the previewable 2D view of a project's total-bin
// sinogram; 3D projects are viewed at the central detector row.
func projectView(p *ctproject.Project) (sinogramView, error) {
	switch p.Mode {
	case ctproject.Mode2D:
		s, err := p.Sinogram2D(ctproject.BinTotal)
		if err != nil {
			return sinogramView{}, err
		}
		return view2D(s), nil
	case ctproject.Mode3D:
		s, err := p.Sinogram3D(ctproject.BinTotal)
		if err != nil {
			return sinogramView{}, err
		}
		return view3D(s, s.NumRows/2)
	}
	return sinogramView{}, fmt.Errorf("preview: unknown reconstruction mode %v", p.Mode)
}

// SavePNG writes a min/max normalized grayscale rendering of the
// project's sinogram. For 3D projects the central detector row is shown.
func SavePNG(p *ctproject.Project, path string) error {
	v, err := projectView(p)
	if err != nil {
		return err
	}
	if v.angles == 0 {
		return fmt.Errorf("preview: sinogram has no angles")
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for a := 0; a < v.angles; a++ {
		for c := 0; c < v.cols; c++ {
			val := v.at(a, c)
			lo = math.Min(lo, val)
			hi = math.Max(hi, val)
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, v.cols, v.angles))
	for a := 0; a < v.angles; a++ {
		for c := 0; c < v.cols; c++ {
			val := (v.at(a, c) - lo) / span
			img.SetGray16(c, a, color.Gray16{Y: uint16(val * 65535)})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("preview: create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("preview: create %s: %w", path, err)
	}
	defer f.Close()
	return png.Encode(f, img)
}

// heatGrid adapts a sinogram view to the plotter grid interface.
type heatGrid struct {
	v sinogramView
}

func (g heatGrid) Dims() (c, r int)   { return g.v.cols, g.v.angles }
func (g heatGrid) Z(c, r int) float64 { return g.v.at(r, c) }
func (g heatGrid) X(c int) float64    { return float64(c) }
func (g heatGrid) Y(r int) float64    { return float64(r) }

// SaveHeatmap writes a plotted heatmap of the project's sinogram with
// axis labels, detector column against acquisition angle index.
func SaveHeatmap(p *ctproject.Project, path string) error {
	v, err := projectView(p)
	if err != nil {
		return err
	}
	if v.angles == 0 {
		return fmt.Errorf("preview: sinogram has no angles")
	}

	plt := plot.New()
	plt.Title.Text = fmt.Sprintf("%s (%s)", p.Params.ProjectName, p.Mode)
	plt.X.Label.Text = "detector column"
	plt.Y.Label.Text = "angle index"

	pal := moreland.Kindlmann().Palette(255)
	plt.Add(plotter.NewHeatMap(heatGrid{v}, pal))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("preview: create output directory: %w", err)
	}
	return plt.Save(6*vg.Inch, 4*vg.Inch, path)
}
