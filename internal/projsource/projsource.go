// Package projsource provides projection-image sources for the sinogram
// builder: a directory of numbered image files, a directory of DICOM
// files, and an in-memory matrix sequence. A source yields one real-valued
// matrix per 1-based acquisition index, with a consistent shape over the
// whole sequence.
package projsource

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrices is an in-memory projection source, primarily for tests and for
// callers that decode images themselves.
type Matrices struct {
	Images []*mat.Dense
}

// NumProjections returns the number of stored projections.
func (m *Matrices) NumProjections() int { return len(m.Images) }

// Projection returns the stored matrix at the 1-based index.
func (m *Matrices) Projection(index int) (*mat.Dense, error) {
	if index < 1 || index > len(m.Images) {
		return nil, fmt.Errorf("projection index %d out of range [1,%d]", index, len(m.Images))
	}
	return m.Images[index-1], nil
}
