package projsource

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Dir reads projections from a directory of PNG or JPEG image files. The
// files are ordered by the number embedded in their names, which is how
// scanner acquisition software numbers the frames. Dir is safe for
// concurrent Projection calls; every call decodes its file independently.
type Dir struct {
	paths []string
}

// NewDir scans dir for image files and fixes their acquisition order.
func NewDir(dir string) (*Dir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read projection directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no projection images found in %s", dir)
	}

	// Sort by the number embedded in the filename so frame_2 precedes
	// frame_10.
	sort.Slice(paths, func(i, j int) bool {
		ni, nj := extractNumber(paths[i]), extractNumber(paths[j])
		if ni != nj {
			return ni < nj
		}
		return paths[i] < paths[j]
	})
	return &Dir{paths: paths}, nil
}

// NumProjections returns the number of image files found.
func (d *Dir) NumProjections() int { return len(d.paths) }

// Projection decodes the image at the 1-based acquisition index into a
// matrix of luminance values in [0,1].
func (d *Dir) Projection(index int) (*mat.Dense, error) {
	if index < 1 || index > len(d.paths) {
		return nil, fmt.Errorf("projection index %d out of range [1,%d]", index, len(d.paths))
	}
	path := d.paths[index-1]

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open projection %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode projection %s: %w", path, err)
	}
	return imageToDense(img), nil
}

// imageToDense converts a decoded image to a float64 luminance matrix in
// [0,1].
func imageToDense(img image.Image) *mat.Dense {
	bounds := img.Bounds()
	rows := bounds.Dy()
	cols := bounds.Dx()
	out := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Set(y, x, float64(r)/65535.0)
		}
	}
	return out
}

// extractNumber extracts the numeric part of a filename, 0 when there is
// none.
func extractNumber(path string) int {
	base := filepath.Base(path)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr != "" {
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}
	return 0
}
