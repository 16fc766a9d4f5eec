// Package units implements UnitsArray, the dense N-D float array tagged by
// named dimensions that flows between Node.eval calls (spec.md §4.3).
package units

import (
	"fmt"
	"math"

	"github.com/geopods/podflow/internal/errs"
)

// Array is a dense row-major float64 buffer over a fixed, named dimension
// order. Values are NaN where no data is defined, and every reduction here
// treats NaN as "absent" rather than propagating it, per spec.md §4.3/§4.9.
type Array struct {
	Dims   []string
	Shape  []int
	Values []float64
}

// New allocates a zero-filled array. len(shape) must equal len(dims).
func New(dims []string, shape []int) (*Array, error) {
	if len(dims) != len(shape) {
		return nil, errs.NewDimensionMismatch("units.New: %d dims but %d shape entries", len(dims), len(shape))
	}
	n := size(shape)
	return &Array{Dims: append([]string(nil), dims...), Shape: append([]int(nil), shape...), Values: make([]float64, n)}, nil
}

// Full allocates an array filled with fill (commonly math.NaN()).
func Full(dims []string, shape []int, fill float64) (*Array, error) {
	a, err := New(dims, shape)
	if err != nil {
		return nil, err
	}
	for i := range a.Values {
		a.Values[i] = fill
	}
	return a, nil
}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// DimIndex returns the position of dim in a.Dims, or -1.
func (a *Array) DimIndex(dim string) int {
	for i, d := range a.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// strides returns the row-major strides for a.Shape.
func (a *Array) strides() []int {
	st := make([]int, len(a.Shape))
	acc := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= a.Shape[i]
	}
	return st
}

// Transpose returns a new array with dims reordered to match order, which
// must be a permutation of a.Dims.
func (a *Array) Transpose(order []string) (*Array, error) {
	if len(order) != len(a.Dims) {
		return nil, errs.NewDimensionMismatch("transpose: expected %d dims, got %d", len(a.Dims), len(order))
	}
	perm := make([]int, len(order))
	for i, d := range order {
		idx := a.DimIndex(d)
		if idx < 0 {
			return nil, errs.NewDimensionMismatch("transpose: dim %q not present", d)
		}
		perm[i] = idx
	}
	newShape := make([]int, len(order))
	for i, p := range perm {
		newShape[i] = a.Shape[p]
	}
	out, err := New(order, newShape)
	if err != nil {
		return nil, err
	}
	srcStrides := a.strides()
	dstStrides := out.strides()
	idx := make([]int, len(newShape))
	for linear := 0; linear < len(out.Values); linear++ {
		rem := linear
		for i, st := range dstStrides {
			idx[i] = rem / st
			rem %= st
		}
		srcLinear := 0
		for i, p := range perm {
			srcLinear += idx[i] * srcStrides[p]
		}
		out.Values[linear] = a.Values[srcLinear]
	}
	return out, nil
}

// ReduceAlong folds the named dims using the given NaN-aware accumulator
// (see internal/graph's reduction kinds), returning a smaller array with
// those dims removed. fn receives all non-NaN values at a fixed position of
// the surviving dims and returns the reduced scalar.
func (a *Array) ReduceAlong(dims []string, fn func(values []float64) float64) (*Array, error) {
	keepDims, keepShape, groups, err := a.groupAlong(dims)
	if err != nil {
		return nil, err
	}
	out, err := New(keepDims, keepShape)
	if err != nil {
		return nil, err
	}
	for i, g := range groups {
		out.Values[i] = fn(g)
	}
	return out, nil
}

// CollectAlong groups a's finite values by the position of its surviving
// (non-dims) dimensions, without reducing them to a scalar. groups[i] holds
// every finite value at the i'th surviving-dimension position, in the same
// row-major order ReduceAlong would use; kept reports that position's
// dimension names and shape. Used by internal/graph's Reducer for the
// median/mode kinds, which need the raw values rather than a running
// aggregate.
func (a *Array) CollectAlong(dims []string) (kept *Array, groups [][]float64, err error) {
	keepDims, keepShape, g, err := a.groupAlong(dims)
	if err != nil {
		return nil, nil, err
	}
	kept, err = New(keepDims, keepShape)
	if err != nil {
		return nil, nil, err
	}
	return kept, g, nil
}

func (a *Array) groupAlong(dims []string) (keepDims []string, keepShape []int, groups [][]float64, err error) {
	drop := make(map[int]bool, len(dims))
	for _, d := range dims {
		idx := a.DimIndex(d)
		if idx < 0 {
			return nil, nil, nil, errs.NewDimensionMismatch("reduce: dim %q not present", d)
		}
		drop[idx] = true
	}

	var keepAxes []int
	var dropShape []int
	var dropAxes []int
	for i, d := range a.Dims {
		if drop[i] {
			dropShape = append(dropShape, a.Shape[i])
			dropAxes = append(dropAxes, i)
		} else {
			keepDims = append(keepDims, d)
			keepShape = append(keepShape, a.Shape[i])
			keepAxes = append(keepAxes, i)
		}
	}

	srcStrides := a.strides()
	keptCount := size(keepShape)
	dropCount := size(dropShape)
	srcIdx := make([]int, len(a.Shape))
	groups = make([][]float64, keptCount)

	for kLinear := 0; kLinear < keptCount; kLinear++ {
		// decode kLinear into keepShape coordinates (row-major)
		tmp := kLinear
		coords := make([]int, len(keepShape))
		for i := len(keepShape) - 1; i >= 0; i-- {
			coords[i] = tmp % keepShape[i]
			tmp /= keepShape[i]
		}
		for i, axis := range keepAxes {
			srcIdx[axis] = coords[i]
		}

		buf := make([]float64, 0, dropCount)
		for dLinear := 0; dLinear < dropCount; dLinear++ {
			dtmp := dLinear
			dcoords := make([]int, len(dropShape))
			for i := len(dropShape) - 1; i >= 0; i-- {
				dcoords[i] = dtmp % dropShape[i]
				dtmp /= dropShape[i]
			}
			for i, axis := range dropAxes {
				srcIdx[axis] = dcoords[i]
			}
			srcLinear := 0
			for i, st := range srcStrides {
				srcLinear += srcIdx[i] * st
			}
			v := a.Values[srcLinear]
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		groups[kLinear] = buf
	}
	return keepDims, keepShape, groups, nil
}

// IsFiniteCount returns the number of non-NaN entries.
func (a *Array) IsFiniteCount() int {
	n := 0
	for _, v := range a.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Sum is the NaN-aware sum of all finite values.
func (a *Array) Sum() float64 {
	s := 0.0
	for _, v := range a.Values {
		if !math.IsNaN(v) {
			s += v
		}
	}
	return s
}

// Mean is the NaN-aware mean; NaN if no finite values exist.
func (a *Array) Mean() float64 {
	s, n := 0.0, 0
	for _, v := range a.Values {
		if !math.IsNaN(v) {
			s += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

// Min is the NaN-aware minimum; NaN if no finite values exist.
func (a *Array) Min() float64 { return extreme(a.Values, func(x, y float64) bool { return x < y }) }

// Max is the NaN-aware maximum; NaN if no finite values exist.
func (a *Array) Max() float64 { return extreme(a.Values, func(x, y float64) bool { return x > y }) }

func extreme(values []float64, better func(x, y float64) bool) float64 {
	best := math.NaN()
	have := false
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if !have || better(v, best) {
			best = v
			have = true
		}
	}
	return best
}

// ReindexNearest resamples a along dim to the new coordinate positions,
// picking for each target position the source index whose source
// coordinate is nearest (ties broken toward the lower index). Used by the
// per-axis reindex interpolator (spec.md §4.6/§4.7).
func (a *Array) ReindexNearest(dim string, srcCoords, dstCoords []float64) (*Array, error) {
	axis := a.DimIndex(dim)
	if axis < 0 {
		return nil, errs.NewDimensionMismatch("reindex_nearest: dim %q not present", dim)
	}
	if len(srcCoords) != a.Shape[axis] {
		return nil, errs.NewDimensionMismatch("reindex_nearest: dim %q has %d source coords but axis size %d", dim, len(srcCoords), a.Shape[axis])
	}

	newShape := append([]int(nil), a.Shape...)
	newShape[axis] = len(dstCoords)
	out, err := New(a.Dims, newShape)
	if err != nil {
		return nil, err
	}

	mapping := make([]int, len(dstCoords))
	for i, d := range dstCoords {
		mapping[i] = nearestIndex(srcCoords, d)
	}

	srcStrides := a.strides()
	for linear := 0; linear < len(out.Values); linear++ {
		rem := linear
		coords := make([]int, len(newShape))
		for i := len(newShape) - 1; i >= 0; i-- {
			coords[i] = rem % newShape[i]
			rem /= newShape[i]
		}
		srcIdx := append([]int(nil), coords...)
		srcIdx[axis] = mapping[coords[axis]]
		srcLinear := 0
		for i, st := range srcStrides {
			srcLinear += srcIdx[i] * st
		}
		out.Values[linear] = a.Values[srcLinear]
	}
	return out, nil
}

func nearestIndex(coords []float64, target float64) int {
	best := 0
	bestDist := math.Abs(coords[0] - target)
	for i := 1; i < len(coords); i++ {
		d := math.Abs(coords[i] - target)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func (a *Array) String() string {
	return fmt.Sprintf("Array(dims=%v, shape=%v)", a.Dims, a.Shape)
}
