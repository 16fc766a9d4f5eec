package interp

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// KDTreeNearest answers nearest-neighbor queries between any lat/lon
// geometry (grid or stacked points) using gonum's kdtree.Points, per
// spec.md §4.6/§4.7. Destination points farther from their nearest source
// point than SpatialTolerance, when set, or otherwise than 8·‖δ‖ (δ = the
// destination's per-cell spacing) are filled with NaN. A bound of zero (no
// SpatialTolerance and a single-point destination) applies no limit.
type KDTreeNearest struct {
	SpatialTolerance float64
}

func (k KDTreeNearest) Interpolate(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, method string) (*units.Array, error) {
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}

	srcLat, srcLon, srcStacked, ok := LatLonValues(src)
	if !ok {
		return nil, errs.NewDimensionMismatch("kdtree: source missing lat/lon")
	}
	dstLat, dstLon, dstStacked, ok := LatLonValues(dst)
	if !ok {
		return nil, errs.NewDimensionMismatch("kdtree: destination missing lat/lon")
	}

	latIdx := srcData.DimIndex(string(coordinates.Lat))
	lonIdx := srcData.DimIndex(string(coordinates.Lon))
	if latIdx < 0 || lonIdx < 0 {
		return nil, errs.NewDimensionMismatch("kdtree: source array missing lat/lon dims")
	}

	pts, lookup := buildSourcePoints(srcLat, srcLon, srcStacked)
	tree := kdtree.New(pts, false)

	bound := k.SpatialTolerance
	if bound <= 0 {
		bound = 8 * math.Hypot(spacingOf(dstLat), spacingOf(dstLon))
	}

	queries := queryGrid(dstLat, dstLon, dstStacked)

	outDims, outShape := destinationShape(srcData.Dims, srcData.Shape, latIdx, lonIdx, len(dstLat), len(dstLon), dstStacked)
	out, err := units.Full(outDims, outShape, math.NaN())
	if err != nil {
		return nil, err
	}
	srcStrides := stridesOf(srcData.Shape)
	dstStrides := stridesOf(out.Shape)

	// dimMap[i] is the position in dstPos that srcData's dimension i maps
	// to, or -1 when that dimension (lon, under stacking) was absorbed
	// into the merged "lat_lon" dimension.
	dimMap := make([]int, len(srcData.Shape))
	cursor := 0
	for i := range srcData.Shape {
		if dstStacked && i == lonIdx {
			dimMap[i] = -1
			continue
		}
		dimMap[i] = cursor
		cursor++
	}

	for qi, q := range queries {
		nearest, _ := tree.Nearest(kdtree.Point{q[0], q[1]})
		pt := nearest.(kdtree.Point)
		d := math.Hypot(pt[0]-q[0], pt[1]-q[1])
		srcIJ, found := lookup[[2]float64{pt[0], pt[1]}]
		if !found || (bound > 0 && d > bound) {
			continue
		}

		for _, pos := range otherDims(srcData.Shape, latIdx, lonIdx) {
			pos[latIdx] = srcIJ[0]
			pos[lonIdx] = srcIJ[1]
			v := srcData.Values[linearIndex(pos, srcStrides)]

			dstPos := make([]int, len(outShape))
			for i, p := range pos {
				if dimMap[i] < 0 {
					continue
				}
				dstPos[dimMap[i]] = p
			}
			if dstStacked {
				dstPos[dimMap[latIdx]] = qi
			} else {
				dstPos[dimMap[latIdx]] = qi / len(dstLon)
				dstPos[dimMap[lonIdx]] = qi % len(dstLon)
			}
			out.Values[linearIndex(dstPos, dstStrides)] = v
		}
	}
	return out, nil
}

// buildSourcePoints flattens a grid or stacked point set into kdtree.Points
// plus a lookup from (lat,lon) back to the (i,j) index pair into the
// source array (i==j for stacked points).
func buildSourcePoints(lat, lon []float64, stacked bool) (kdtree.Points, map[[2]float64][2]int) {
	if stacked {
		pts := make(kdtree.Points, len(lat))
		lookup := make(map[[2]float64][2]int, len(lat))
		for i := range lat {
			pts[i] = kdtree.Point{lat[i], lon[i]}
			lookup[[2]float64{lat[i], lon[i]}] = [2]int{i, i}
		}
		return pts, lookup
	}
	pts := make(kdtree.Points, 0, len(lat)*len(lon))
	lookup := make(map[[2]float64][2]int, len(lat)*len(lon))
	for i, la := range lat {
		for j, lo := range lon {
			pts = append(pts, kdtree.Point{la, lo})
			lookup[[2]float64{la, lo}] = [2]int{i, j}
		}
	}
	return pts, lookup
}

func spacingOf(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return math.Abs(values[1] - values[0])
}

// destinationShape rewrites srcDims/srcShape's lat/lon entries for the
// destination geometry: a single "lat_lon" dim of len(dstLat) when
// stacked, or separate lat/lon dims sized from the destination grid.
func destinationShape(srcDims []string, srcShape []int, latIdx, lonIdx, dstLatLen, dstLonLen int, stacked bool) ([]string, []int) {
	if stacked {
		dims := make([]string, 0, len(srcDims)-1)
		shape := make([]int, 0, len(srcShape)-1)
		for i, d := range srcDims {
			if i == lonIdx {
				continue
			}
			if i == latIdx {
				dims = append(dims, "lat_lon")
				shape = append(shape, dstLatLen)
				continue
			}
			dims = append(dims, d)
			shape = append(shape, srcShape[i])
		}
		return dims, shape
	}
	dims := append([]string(nil), srcDims...)
	shape := append([]int(nil), srcShape...)
	shape[latIdx] = dstLatLen
	shape[lonIdx] = dstLonLen
	return dims, shape
}

// queryGrid enumerates destination query points as [lat,lon] pairs, either
// one per stacked index or the full tensor product of a grid.
func queryGrid(lat, lon []float64, stacked bool) [][2]float64 {
	if stacked {
		out := make([][2]float64, len(lat))
		for i := range lat {
			out[i] = [2]float64{lat[i], lon[i]}
		}
		return out
	}
	out := make([][2]float64, 0, len(lat)*len(lon))
	for _, la := range lat {
		for _, lo := range lon {
			out = append(out, [2]float64{la, lo})
		}
	}
	return out
}
