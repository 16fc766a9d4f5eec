package interp

import (
	"context"
	"math"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// Reindex handles the 1-D/isolated -> 1-D nearest row of the dispatch
// table: src and dst each have exactly one non-trivial dimension, which
// need not share a name with "lat"/"lon" (e.g. a plain index axis).
type Reindex struct{}

func (Reindex) Interpolate(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, method string) (*units.Array, error) {
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}
	if len(dst.Dims) != 1 {
		return nil, errs.NewDimensionMismatch("reindex: destination must have exactly one dimension, got %d", len(dst.Dims))
	}
	dim := dst.Dims[0]
	name := dim.Name()
	return PerAxisReindex(ctx, src, srcData, dst, name, 0)
}

// PerAxisReindex resamples srcData along dim to dst's coordinates for that
// dim, nearest-neighbor, honoring tolerance (0 means unbounded) per
// spec.md §4.6's time/alt dispatch-first rule.
func PerAxisReindex(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, dim string, tolerance float64) (*units.Array, error) {
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}

	srcDim, ok := src.Dim(dim)
	if !ok {
		return nil, errs.NewDimensionMismatch("reindex: source missing dim %q", dim)
	}
	dstDim, ok := dst.Dim(dim)
	if !ok {
		return nil, errs.NewDimensionMismatch("reindex: destination missing dim %q", dim)
	}

	srcCoords := srcDim.Axes[0].Values()
	dstCoords := dstDim.Axes[0].Values()
	out, err := srcData.ReindexNearest(dim, srcCoords, dstCoords)
	if err != nil {
		return nil, err
	}
	if tolerance > 0 {
		applyTolerance(out, srcData.DimIndex(dim), srcCoords, dstCoords, tolerance)
	}
	return out, nil
}

// applyTolerance sets output entries to NaN wherever the resampled
// position's nearest source coordinate lies farther than tolerance away.
func applyTolerance(out *units.Array, axis int, srcCoords, dstCoords []float64, tolerance float64) {
	if axis < 0 {
		return
	}
	strides := stridesOf(out.Shape)
	for i, d := range dstCoords {
		best := nearestIndex(srcCoords, d)
		if absf(srcCoords[best]-d) <= tolerance {
			continue
		}
		for _, pos := range otherDims(out.Shape, axis, axis) {
			pos[axis] = i
			out.Values[linearIndex(pos, strides)] = math.NaN()
		}
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
