package interp

import (
	"context"
	"strings"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// Interpolator maps srcData (laid out per src) onto dst, per spec.md §4.7.
type Interpolator interface {
	Interpolate(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, method string) (*units.Array, error)
}

type tableRow struct {
	srcGeom Geometry
	dstGeom Geometry
	methods map[string]bool
	interp  Interpolator
}

func methodSet(methods ...string) map[string]bool {
	m := make(map[string]bool, len(methods))
	for _, name := range methods {
		m[name] = true
	}
	return m
}

// table is the dispatch table of spec.md §4.6. Rows are tried in order;
// the first (srcGeom, dstGeom, method) match wins.
var table = []tableRow{
	{
		srcGeom: GeomRegularGrid, dstGeom: GeomRegularGrid,
		methods: methodSet("nearest", "bilinear", "cubic", "cubic_spline", "lanczos", "average", "mode", "gauss", "max", "min", "med", "q1", "q3"),
		interp:  RasterWarp{},
	},
	{
		srcGeom: GeomRegularGrid, dstGeom: GeomIrregularGrid,
		methods: methodSet("bilinear", "nearest"),
		interp:  RegularGrid{},
	},
	{
		srcGeom: GeomIrregularGrid, dstGeom: GeomRegularGrid,
		methods: methodSet("bilinear", "nearest"),
		interp:  RegularGrid{},
	},
	{
		srcGeom: GeomIrregularGrid, dstGeom: GeomIrregularGrid,
		methods: methodSet("bilinear", "nearest"),
		interp:  RegularGrid{},
	},
	{
		srcGeom: GeomRegularGrid, dstGeom: GeomRegularGrid,
		methods: methodSet("spline_k"),
		interp:  Spline{},
	},
	{
		srcGeom: GeomRegularGrid, dstGeom: GeomIrregularGrid,
		methods: methodSet("cubic_spline", "spline_k"),
		interp:  Spline{},
	},
	{
		srcGeom: GeomIrregularGrid, dstGeom: GeomIrregularGrid,
		methods: methodSet("cubic_spline", "spline_k"),
		interp:  Spline{},
	},
	{
		srcGeom: GeomRegularGrid, dstGeom: GeomStackedPoints,
		methods: methodSet("nearest"),
		interp:  KDTreeNearest{},
	},
	{
		srcGeom: GeomIrregularGrid, dstGeom: GeomStackedPoints,
		methods: methodSet("nearest"),
		interp:  KDTreeNearest{},
	},
	{
		srcGeom: GeomStackedPoints, dstGeom: GeomRegularGrid,
		methods: methodSet("nearest"),
		interp:  KDTreeNearest{},
	},
	{
		srcGeom: GeomStackedPoints, dstGeom: GeomIrregularGrid,
		methods: methodSet("nearest"),
		interp:  KDTreeNearest{},
	},
	{
		srcGeom: GeomStackedPoints, dstGeom: GeomStackedPoints,
		methods: methodSet("nearest"),
		interp:  KDTreeNearest{},
	},
	{
		srcGeom: GeomOneD, dstGeom: GeomOneD,
		methods: methodSet("nearest"),
		interp:  Reindex{},
	},
	{
		srcGeom: GeomIsolated, dstGeom: GeomOneD,
		methods: methodSet("nearest"),
		interp:  Reindex{},
	},
}

// Dispatch picks the interpolator for (srcGeom, dstGeom, method), returning
// errs.InterpolationUnavailable if the table has no matching row. Any
// "spline_<k>" method matches the rows that list "spline_k".
func Dispatch(srcGeom, dstGeom Geometry, method string) (Interpolator, error) {
	key := method
	if strings.HasPrefix(method, "spline_") {
		key = "spline_k"
	}
	for _, row := range table {
		if row.srcGeom == srcGeom && row.dstGeom == dstGeom && row.methods[key] {
			return row.interp, nil
		}
	}
	return nil, errs.NewInterpolationUnavailable(
		"no interpolator for source=%s dest=%s method=%q", srcGeom, dstGeom, method)
}

// TimeOrAltReindex resamples srcData along one time or alt dimension to
// dst's values for it (nearest neighbor within tolerance), per spec.md
// §4.6's rule that time/alt reindexing runs before the spatial interpolator.
func TimeOrAltReindex(ctx context.Context, src *coordinates.CoordinateSet, srcData *units.Array, dst *coordinates.CoordinateSet, dim string, tolerance float64) (*units.Array, error) {
	return PerAxisReindex(ctx, src, srcData, dst, dim, tolerance)
}
