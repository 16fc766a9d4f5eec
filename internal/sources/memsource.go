package sources

import (
	"context"

	"github.com/geopods/podflow/internal/coordinates"
)

// MemSource is an in-memory Adapter backed by a dense row-major buffer,
// the test double used throughout internal/graph's tests in place of a
// network-backed source.
type MemSource struct {
	Coords       *coordinates.CoordinateSet
	Data         []float64
	NoData       []float64
	opened       bool
	OpenCalls    int
	CloseCalls   int
}

func NewMemSource(coords *coordinates.CoordinateSet, data []float64) *MemSource {
	return &MemSource{Coords: coords, Data: data}
}

func (m *MemSource) NativeCoordinates(ctx context.Context) (*coordinates.CoordinateSet, error) {
	return m.Coords, nil
}

func (m *MemSource) Open(ctx context.Context) error {
	m.OpenCalls++
	m.opened = true
	return nil
}

func (m *MemSource) Close() error {
	m.CloseCalls++
	m.opened = false
	return nil
}

func (m *MemSource) NoDataValues() []float64 { return m.NoData }

// Read gathers values at the cartesian product of ranges (one per native
// dimension) out of the dense Data buffer, row-major.
func (m *MemSource) Read(ctx context.Context, ranges []coordinates.IndexRange) ([]float64, error) {
	shape := m.Coords.Shape()
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}

	outShape := make([]int, len(ranges))
	for i, r := range ranges {
		outShape[i] = len(r.Indices)
	}
	total := 1
	for _, s := range outShape {
		total *= s
	}
	out := make([]float64, total)

	for linear := 0; linear < total; linear++ {
		rem := linear
		srcLinear := 0
		for i := len(outShape) - 1; i >= 0; i-- {
			coord := rem % outShape[i]
			rem /= outShape[i]
			srcLinear += ranges[i].Indices[coord] * strides[i]
		}
		out[linear] = m.Data[srcLinear]
	}
	return out, nil
}
