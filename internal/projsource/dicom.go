package projsource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/mat"
)

// DICOMDir reads projections from a directory of single-frame DICOM
// files, one file per acquisition, ordered by the number embedded in the
// filename. Pixel data is taken from the first frame; projection images
// are single-channel, so the decoded luminance is used directly.
type DICOMDir struct {
	paths []string
}

// NewDICOMDir scans dir for .dcm files and fixes their acquisition order.
func NewDICOMDir(dir string) (*DICOMDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read DICOM directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) == ".dcm" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no DICOM files found in %s", dir)
	}

	sort.Slice(paths, func(i, j int) bool {
		ni, nj := extractNumber(paths[i]), extractNumber(paths[j])
		if ni != nj {
			return ni < nj
		}
		return paths[i] < paths[j]
	})
	return &DICOMDir{paths: paths}, nil
}

// NumProjections returns the number of DICOM files found.
func (d *DICOMDir) NumProjections() int { return len(d.paths) }

// Projection parses the DICOM file at the 1-based acquisition index and
// returns its pixel data as a raw-count matrix.
func (d *DICOMDir) Projection(index int) (*mat.Dense, error) {
	if index < 1 || index > len(d.paths) {
		return nil, fmt.Errorf("projection index %d out of range [1,%d]", index, len(d.paths))
	}
	path := d.paths[index-1]

	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse DICOM %s: %w", path, err)
	}
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("DICOM %s has no pixel data: %w", path, err)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("DICOM %s contains no frames", path)
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, fmt.Errorf("DICOM %s: decode frame: %w", path, err)
	}
	return imageToDense(img), nil
}
