package interp

import (
	"context"
	"math"
	"sort"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// RasterWarp resamples between two regular lat/lon grids. Both sides must
// be uniform in both dimensions; orientation (ascending/descending) is
// normalized internally by reading rows in ascending-lat order and
// flipping back on write, per spec.md §4.7's C-contiguous-ascending
// contract.
type RasterWarp struct{}

func (RasterWarp) Interpolate(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, method string) (*units.Array, error) {
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}

	srcLatDim, _ := src.Dim(string(coordinates.Lat))
	srcLonDim, _ := src.Dim(string(coordinates.Lon))
	dstLatDim, _ := dst.Dim(string(coordinates.Lat))
	dstLonDim, _ := dst.Dim(string(coordinates.Lon))
	srcLat := srcLatDim.Axes[0]
	srcLon := srcLonDim.Axes[0]
	dstLat := dstLatDim.Axes[0]
	dstLon := dstLonDim.Axes[0]

	latIdx := srcData.DimIndex(string(coordinates.Lat))
	lonIdx := srcData.DimIndex(string(coordinates.Lon))
	if latIdx < 0 || lonIdx < 0 {
		return nil, errs.NewDimensionMismatch("raster-warp: source array missing lat/lon dims")
	}

	ascLat, latPerm := ascendingOrder(srcLat.Values())
	ascLon, lonPerm := ascendingOrder(srcLon.Values())

	outShape := append([]int(nil), srcData.Shape...)
	outShape[latIdx] = dstLat.Size()
	outShape[lonIdx] = dstLon.Size()
	out, err := units.Full(srcData.Dims, outShape, math.NaN())
	if err != nil {
		return nil, err
	}

	pointKernel := isPointKernelMethod(method)
	agg := aggregatorFor(method)

	srcStrides := stridesOf(srcData.Shape)
	dstStrides := stridesOf(out.Shape)
	fixedDims := otherDims(srcData.Shape, latIdx, lonIdx)

	for _, pos := range fixedDims {
		for di, dLat := range dstLat.Values() {
			var rows []int
			var latTaps []int
			var latWeights []float64
			if pointKernel {
				latTaps, latWeights = kernelTaps(ascLat, method, dLat)
			} else {
				rows = overlapIndices(ascLat, dLat, cellHalfWidth(dstLat, di))
			}
			for dj, dLon := range dstLon.Values() {
				var v float64
				if pointKernel {
					lonTaps, lonWeights := kernelTaps(ascLon, method, dLon)
					v = separableKernelValue(latTaps, latWeights, lonTaps, lonWeights, latPerm, lonPerm, srcData, srcStrides, pos, latIdx, lonIdx)
				} else {
					cols := overlapIndices(ascLon, dLon, cellHalfWidth(dstLon, dj))
					var samples []float64
					for _, ri := range rows {
						si := latPerm[ri]
						for _, ci := range cols {
							sj := lonPerm[ci]
							pos[latIdx] = si
							pos[lonIdx] = sj
							lin := linearIndex(pos, srcStrides)
							sv := srcData.Values[lin]
							if !math.IsNaN(sv) {
								samples = append(samples, sv)
							}
						}
					}
					v = agg(samples)
				}
				pos[latIdx] = di
				pos[lonIdx] = dj
				outLin := linearIndex(pos, dstStrides)
				out.Values[outLin] = v
			}
		}
	}
	return out, nil
}

// ascendingOrder returns values sorted ascending plus the permutation
// mapping sorted position -> original index.
func ascendingOrder(values []float64) ([]float64, []int) {
	perm := make([]int, len(values))
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(i, j int) bool { return values[perm[i]] < values[perm[j]] })
	sorted := make([]float64, len(values))
	for i, p := range perm {
		sorted[i] = values[p]
	}
	return sorted, perm
}

func cellHalfWidth(a *coordinates.Axis, i int) float64 {
	if a.Size() <= 1 {
		return 0
	}
	step := math.Abs(a.Step())
	if step == 0 {
		vals := a.Values()
		if i == 0 {
			step = math.Abs(vals[1] - vals[0])
		} else {
			step = math.Abs(vals[i] - vals[i-1])
		}
	}
	return step / 2
}

// overlapIndices returns the indices into ascValues whose cell (±halfWidth)
// overlaps center.
func overlapIndices(ascValues []float64, center, halfWidth float64) []int {
	lo := center - halfWidth
	hi := center + halfWidth
	start := sort.SearchFloat64s(ascValues, lo)
	var out []int
	for i := start; i < len(ascValues) && ascValues[i] <= hi; i++ {
		if ascValues[i] >= lo {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		// Nearest single cell when no cell center falls in the window.
		best := nearestIndex(ascValues, center)
		out = []int{best}
	}
	return out
}

func nearestIndex(values []float64, target float64) int {
	best := 0
	bestDist := math.Abs(values[0] - target)
	for i := 1; i < len(values); i++ {
		d := math.Abs(values[i] - target)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func stridesOf(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

func linearIndex(pos []int, strides []int) int {
	lin := 0
	for i, p := range pos {
		lin += p * strides[i]
	}
	return lin
}

// otherDims enumerates every index-position tuple over dims other than
// latIdx/lonIdx, which are assigned separately by the caller.
func otherDims(shape []int, latIdx, lonIdx int) [][]int {
	var free []int
	var freeSizes []int
	for i, s := range shape {
		if i == latIdx || i == lonIdx {
			continue
		}
		free = append(free, i)
		freeSizes = append(freeSizes, s)
	}
	if len(free) == 0 {
		return [][]int{make([]int, len(shape))}
	}
	total := 1
	for _, s := range freeSizes {
		total *= s
	}
	out := make([][]int, 0, total)
	for linear := 0; linear < total; linear++ {
		pos := make([]int, len(shape))
		rem := linear
		for i := len(freeSizes) - 1; i >= 0; i-- {
			pos[free[i]] = rem % freeSizes[i]
			rem /= freeSizes[i]
		}
		out = append(out, pos)
	}
	return out
}

func aggregatorFor(method string) func([]float64) float64 {
	switch method {
	case "max":
		return aggMax
	case "min":
		return aggMin
	case "average", "mean":
		return aggMean
	case "med", "median":
		return aggMedian
	case "mode":
		return aggMode
	case "gauss":
		return aggMean
	case "q1":
		return aggQuantile(0.25)
	case "q3":
		return aggQuantile(0.75)
	default: // nearest
		return aggNearest
	}
}

// isPointKernelMethod reports whether method is one of the separable
// point-interpolation kernels (as opposed to a cell-overlap aggregator):
// each reads from a fixed-size neighborhood around the destination point
// and blends it with a distinct weighting function, the way GDAL's
// warp resamplers of the same names do.
func isPointKernelMethod(method string) bool {
	switch method {
	case "bilinear", "cubic", "cubic_spline", "lanczos":
		return true
	default:
		return false
	}
}

// kernelTaps returns the ascending-grid indices and kernel weights
// contributing to target for the named point-interpolation method. Taps
// falling outside the array are clamped to the nearest edge index, so
// duplicate indices can appear near the boundary; separableKernelValue
// renormalizes by the weight actually consumed. On an axis of two or more
// values, targets outside [ascValues[0], ascValues[n-1]] return (nil, nil),
// which yields NaN; a single-value axis returns its one tap at full weight
// for any target.
func kernelTaps(ascValues []float64, method string, target float64) ([]int, []float64) {
	n := len(ascValues)
	if n == 1 {
		return []int{0}, []float64{1}
	}
	if target < ascValues[0] || target > ascValues[n-1] {
		return nil, nil
	}
	i0, _, t := bracket(ascValues, target)

	var radius int
	var weight func(float64) float64
	switch method {
	case "bilinear":
		radius, weight = 1, tentWeight
	case "cubic":
		radius, weight = 2, cubicConvolutionWeight
	case "cubic_spline":
		radius, weight = 2, cubicBSplineWeight
	default: // lanczos
		radius, weight = 3, lanczosWeight(3)
	}

	idx := make([]int, 0, 2*radius)
	w := make([]float64, 0, 2*radius)
	for k := -(radius - 1); k <= radius; k++ {
		tap := i0 + k
		if tap < 0 {
			tap = 0
		} else if tap > n-1 {
			tap = n - 1
		}
		idx = append(idx, tap)
		w = append(w, weight(t-float64(k)))
	}
	return idx, w
}

// separableKernelValue evaluates the tensor product of the lat and lon
// kernel weights at pos, skipping NaN source samples and renormalizing
// over whatever weight survives (matching regularGridBilinear's missing-
// corner handling rather than propagating NaN across the whole cell).
func separableKernelValue(latTaps []int, latWeights []float64, lonTaps []int, lonWeights []float64, latPerm, lonPerm []int, data *units.Array, strides []int, pos []int, latIdx, lonIdx int) float64 {
	var sum, wsum float64
	for li, lw := range latWeights {
		if lw == 0 {
			continue
		}
		si := latPerm[latTaps[li]]
		for lj, gw := range lonWeights {
			w := lw * gw
			if w == 0 {
				continue
			}
			sj := lonPerm[lonTaps[lj]]
			pos[latIdx] = si
			pos[lonIdx] = sj
			v := data.Values[linearIndex(pos, strides)]
			if math.IsNaN(v) {
				continue
			}
			sum += v * w
			wsum += w
		}
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}

// tentWeight is the bilinear (triangle) kernel, support radius 1.
func tentWeight(d float64) float64 {
	d = math.Abs(d)
	if d >= 1 {
		return 0
	}
	return 1 - d
}

// cubicConvolutionWeight is Keys' cubic convolution kernel (a=-0.5), the
// same kernel GDAL's "cubic" warp resampler uses. Support radius 2.
func cubicConvolutionWeight(d float64) float64 {
	const a = -0.5
	x := math.Abs(d)
	switch {
	case x <= 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a*x*x*x - 5*a*x*x + 8*a*x - 4*a
	default:
		return 0
	}
}

// cubicBSplineWeight is the uniform cubic B-spline basis function, the
// kernel behind "cubic_spline". Support radius 2.
func cubicBSplineWeight(d float64) float64 {
	x := math.Abs(d)
	switch {
	case x < 1:
		return 2.0/3.0 - x*x + x*x*x/2
	case x < 2:
		return (2 - x) * (2 - x) * (2 - x) / 6
	default:
		return 0
	}
}

// lanczosWeight builds a windowed-sinc kernel of the given support radius
// a (3 is the conventional "lanczos3" window).
func lanczosWeight(a float64) func(float64) float64 {
	return func(d float64) float64 {
		x := math.Abs(d)
		if x >= a {
			return 0
		}
		if x < 1e-12 {
			return 1
		}
		sincX := math.Sin(math.Pi*x) / (math.Pi * x)
		sincXA := math.Sin(math.Pi*x/a) / (math.Pi * x / a)
		return sincX * sincXA
	}
}

func aggMean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	s := 0.0
	for _, v := range samples {
		s += v
	}
	return s / float64(len(samples))
}

func aggMax(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	m := samples[0]
	for _, v := range samples[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func aggMin(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	m := samples[0]
	for _, v := range samples[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func aggNearest(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	return samples[0]
}

func aggMedian(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	n := len(cp)
	if n%2 == 1 {
		return cp[n/2]
	}
	return (cp[n/2-1] + cp[n/2]) / 2
}

func aggQuantile(q float64) func([]float64) float64 {
	return func(samples []float64) float64 {
		if len(samples) == 0 {
			return math.NaN()
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		idx := int(q * float64(len(cp)-1))
		return cp[idx]
	}
}

func aggMode(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	counts := make(map[float64]int, len(samples))
	best := samples[0]
	bestCount := 0
	for _, v := range samples {
		counts[v]++
		if counts[v] > bestCount {
			bestCount = counts[v]
			best = v
		}
	}
	return best
}
