package interp

import (
	"context"
	"math"
	"sort"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// RegularGrid interpolates on the tensor product of ascending lat/lon 1-D
// arrays: linear or nearest, bounds_error=false, fill=NaN, broadcast over
// every non-spatial dim (spec.md §4.7).
type RegularGrid struct{}

func (RegularGrid) Interpolate(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, method string) (*units.Array, error) {
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}

	srcLatDim, _ := src.Dim(string(coordinates.Lat))
	srcLonDim, _ := src.Dim(string(coordinates.Lon))
	dstLat, dstLon, stacked, ok := LatLonValues(dst)
	if !ok {
		return nil, errs.NewDimensionMismatch("regular-grid: destination missing lat/lon")
	}
	if stacked {
		return nil, errs.NewDimensionMismatch("regular-grid: destination must be a grid, not stacked points")
	}

	latIdx := srcData.DimIndex(string(coordinates.Lat))
	lonIdx := srcData.DimIndex(string(coordinates.Lon))
	if latIdx < 0 || lonIdx < 0 {
		return nil, errs.NewDimensionMismatch("regular-grid: source array missing lat/lon dims")
	}

	ascLat, latPerm := ascendingOrder(srcLatDim.Axes[0].Values())
	ascLon, lonPerm := ascendingOrder(srcLonDim.Axes[0].Values())

	outShape := append([]int(nil), srcData.Shape...)
	outShape[latIdx] = len(dstLat)
	outShape[lonIdx] = len(dstLon)
	out, err := units.Full(srcData.Dims, outShape, math.NaN())
	if err != nil {
		return nil, err
	}

	srcStrides := stridesOf(srcData.Shape)
	dstStrides := stridesOf(out.Shape)

	for _, pos := range otherDims(srcData.Shape, latIdx, lonIdx) {
		for di, dLat := range dstLat {
			for dj, dLon := range dstLon {
				var v float64
				if method == "nearest" {
					v = regularGridNearest(ascLat, latPerm, ascLon, lonPerm, srcData, srcStrides, pos, latIdx, lonIdx, dLat, dLon)
				} else {
					v = regularGridBilinear(ascLat, latPerm, ascLon, lonPerm, srcData, srcStrides, pos, latIdx, lonIdx, dLat, dLon)
				}
				pos[latIdx] = di
				pos[lonIdx] = dj
				out.Values[linearIndex(pos, dstStrides)] = v
			}
		}
	}
	return out, nil
}

func regularGridNearest(ascLat []float64, latPerm []int, ascLon []float64, lonPerm []int, data *units.Array, strides []int, pos []int, latIdx, lonIdx int, dLat, dLon float64) float64 {
	if dLat < ascLat[0] || dLat > ascLat[len(ascLat)-1] || dLon < ascLon[0] || dLon > ascLon[len(ascLon)-1] {
		return math.NaN()
	}
	si := latPerm[nearestIndex(ascLat, dLat)]
	sj := lonPerm[nearestIndex(ascLon, dLon)]
	pos[latIdx] = si
	pos[lonIdx] = sj
	return data.Values[linearIndex(pos, strides)]
}

func regularGridBilinear(ascLat []float64, latPerm []int, ascLon []float64, lonPerm []int, data *units.Array, strides []int, pos []int, latIdx, lonIdx int, dLat, dLon float64) float64 {
	if dLat < ascLat[0] || dLat > ascLat[len(ascLat)-1] || dLon < ascLon[0] || dLon > ascLon[len(ascLon)-1] {
		return math.NaN()
	}
	i0, i1, tLat := bracket(ascLat, dLat)
	j0, j1, tLon := bracket(ascLon, dLon)

	sample := func(i, j int) float64 {
		pos[latIdx] = latPerm[i]
		pos[lonIdx] = lonPerm[j]
		return data.Values[linearIndex(pos, strides)]
	}
	v00, v01, v10, v11 := sample(i0, j0), sample(i0, j1), sample(i1, j0), sample(i1, j1)
	if math.IsNaN(v00) || math.IsNaN(v01) || math.IsNaN(v10) || math.IsNaN(v11) {
		// Fall back to nearest when any corner is missing rather than
		// propagate NaN across the whole cell.
		ni, nj := i0, j0
		if tLat > 0.5 {
			ni = i1
		}
		if tLon > 0.5 {
			nj = j1
		}
		return sample(ni, nj)
	}
	top := v00*(1-tLon) + v01*tLon
	bot := v10*(1-tLon) + v11*tLon
	return top*(1-tLat) + bot*tLat
}

// bracket finds the pair of indices in ascending values that straddle
// target, plus the fractional position t in [0,1] between them.
func bracket(values []float64, target float64) (lo, hi int, t float64) {
	n := len(values)
	if n == 1 {
		return 0, 0, 0
	}
	idx := sort.SearchFloat64s(values, target)
	if idx <= 0 {
		return 0, 1, 0
	}
	if idx >= n {
		return n - 2, n - 1, 1
	}
	lo, hi = idx-1, idx
	span := values[hi] - values[lo]
	if span == 0 {
		return lo, hi, 0
	}
	return lo, hi, (target - values[lo]) / span
}
