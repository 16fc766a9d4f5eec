package graph

import (
	"context"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/interp"
	"github.com/geopods/podflow/internal/units"
)

// interpolate runs the dispatch of spec.md §4.6: time/alt reindexing
// happens first (reducing the tile to the request's time/alt values),
// then the spatial interpolator runs over whatever lat/lon dims remain.
func (ds *DataSource) interpolate(ctx context.Context, subCoords *coordinates.CoordinateSet, subArray *units.Array, request *coordinates.CoordinateSet) (*units.Array, error) {
	cur := subArray
	curCoords := subCoords

	for _, dim := range []string{"time", "alt"} {
		if _, hasSrc := curCoords.Dim(dim); !hasSrc {
			continue
		}
		if _, hasDst := request.Dim(dim); !hasDst {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, &errs.Cancelled{}
		default:
		}
		reindexed, err := interp.PerAxisReindex(ctx, curCoords, cur, request, dim, ds.toleranceFor(dim))
		if err != nil {
			return nil, err
		}
		cur = reindexed
		curCoords = replaceDim(curCoords, dim, request)
	}

	if _, hasLat := curCoords.Dim(string(coordinates.Lat)); !hasLat {
		return cur, nil
	}
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}

	srcGeom := interp.Classify(curCoords)
	dstGeom := interp.Classify(request)
	interpolator, err := interp.Dispatch(srcGeom, dstGeom, ds.Method)
	if err != nil {
		return nil, err
	}
	return interpolator.Interpolate(ctx, curCoords, cur, request, ds.Method)
}

func (ds *DataSource) toleranceFor(dim string) float64 {
	if dim == "alt" {
		return ds.AltTolerance
	}
	return ds.TimeTolerance
}

func replaceDim(cs *coordinates.CoordinateSet, name string, request *coordinates.CoordinateSet) *coordinates.CoordinateSet {
	reqDim, _ := request.Dim(name)
	newDims := make([]coordinates.Dimension, len(cs.Dims))
	for i, d := range cs.Dims {
		if d.Name() == name {
			newDims[i] = reqDim
		} else {
			newDims[i] = d
		}
	}
	out, err := coordinates.New(newDims)
	if err != nil {
		return cs
	}
	return out
}
