package interp

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// Spline evaluates a separable Lagrange interpolant of order k (k at least
// 1) on the destination grid: along each axis it takes the polynomial
// through the k+1 source nodes nearest the target. It fits no spline over
// the whole grid the way scipy's RectBivariateSpline does.
type Spline struct{}

// order parses "spline_k" (k an integer suffix, raised to 1 when smaller)
// or defaults to 3 for "cubic_spline" and any unparsable suffix, matching
// scipy's RectBivariateSpline default degree.
func order(method string) int {
	if strings.HasPrefix(method, "spline_") {
		if k, err := strconv.Atoi(strings.TrimPrefix(method, "spline_")); err == nil {
			if k < 1 {
				k = 1
			}
			return k
		}
	}
	return 3
}

func (Spline) Interpolate(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, method string) (*units.Array, error) {
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}

	k := order(method)
	srcLatDim, _ := src.Dim(string(coordinates.Lat))
	srcLonDim, _ := src.Dim(string(coordinates.Lon))
	dstLat, dstLon, stacked, ok := LatLonValues(dst)
	if !ok {
		return nil, errs.NewDimensionMismatch("spline: destination missing lat/lon")
	}
	if stacked {
		return nil, errs.NewDimensionMismatch("spline: destination must be a grid, not stacked points")
	}

	latIdx := srcData.DimIndex(string(coordinates.Lat))
	lonIdx := srcData.DimIndex(string(coordinates.Lon))
	if latIdx < 0 || lonIdx < 0 {
		return nil, errs.NewDimensionMismatch("spline: source array missing lat/lon dims")
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
			if dLat < ascLat[0] || dLat > ascLat[len(ascLat)-1] {
				continue
			}
			latNbrs := neighborhood(ascLat, dLat, k+1)
			for dj, dLon := range dstLon {
				if dLon < ascLon[0] || dLon > ascLon[len(ascLon)-1] {
					continue
				}
				lonNbrs := neighborhood(ascLon, dLon, k+1)

				// Interpolate along lon for each lat neighbor row, then
				// along lat across those row results.
				rowVals := make([]float64, len(latNbrs))
				for ri, li := range latNbrs {
					samples := make([]float64, len(lonNbrs))
					xs := make([]float64, len(lonNbrs))
					for ci, lj := range lonNbrs {
						pos[latIdx] = latPerm[li]
						pos[lonIdx] = lonPerm[lj]
						samples[ci] = srcData.Values[linearIndex(pos, srcStrides)]
						xs[ci] = ascLon[lj]
					}
					rowVals[ri] = lagrange(xs, samples, dLon)
				}
				latXs := make([]float64, len(latNbrs))
				for i, li := range latNbrs {
					latXs[i] = ascLat[li]
				}
				pos[latIdx] = di
				pos[lonIdx] = dj
				out.Values[linearIndex(pos, dstStrides)] = lagrange(latXs, rowVals, dLat)
			}
		}
	}
	return out, nil
}

// neighborhood returns up to n indices into ascValues closest to target,
// clamped to the array bounds.
func neighborhood(ascValues []float64, target float64, n int) []int {
	if n > len(ascValues) {
		n = len(ascValues)
	}
	center := nearestIndex(ascValues, target)
	start := center - n/2
	if start < 0 {
		start = 0
	}
	if start+n > len(ascValues) {
		start = len(ascValues) - n
	}
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		idx[i] = start + i
	}
	return idx
}

// lagrange evaluates the Lagrange interpolating polynomial through
// (xs[i], ys[i]) at x. NaN samples drop out of the basis; if every sample
// is NaN, returns NaN.
func lagrange(xs, ys []float64, x float64) float64 {
	total := 0.0
	haveAny := false
	for i := range xs {
		if math.IsNaN(ys[i]) {
			continue
		}
		haveAny = true
		term := ys[i]
		for j := range xs {
			if j == i || math.IsNaN(ys[j]) {
				continue
			}
			denom := xs[i] - xs[j]
			if denom == 0 {
				continue
			}
			term *= (x - xs[j]) / denom
		}
		total += term
	}
	if !haveAny {
		return math.NaN()
	}
	return total
}
