package graphdef

import (
	"math"

	geojson "github.com/paulmach/go.geojson"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
)

// StackedPointsFromGeoJSON builds a stacked lon/lat Dimension (spec.md §3's
// "several same-length Axes sharing one positional index") out of every
// Point feature in a GeoJSON FeatureCollection, for defining an irregular
// set of source locations (e.g. well or station positions) that dispatch
// through the GeomStackedPoints row of internal/interp's table.
func StackedPointsFromGeoJSON(data []byte) (*coordinates.CoordinateSet, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errs.NewInvalidCoordinates("geojson: %v", err)
	}

	var lon, lat []float64
	for _, f := range fc.Features {
		if f.Geometry == nil || !f.Geometry.IsPoint() {
			continue
		}
		p := f.Geometry.Point
		if len(p) < 2 {
			continue
		}
		lon = append(lon, p[0])
		lat = append(lat, p[1])
	}
	if len(lon) == 0 {
		return nil, errs.NewInvalidCoordinates("geojson: feature collection has no Point features")
	}

	lonAxis, err := coordinates.FromValues(coordinates.Lon, coordinates.DtypeFloat64, lon)
	if err != nil {
		return nil, err
	}
	latAxis, err := coordinates.FromValues(coordinates.Lat, coordinates.DtypeFloat64, lat)
	if err != nil {
		return nil, err
	}
	return coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{lonAxis, latAxis}}})
}

// PolygonVertexOffsets parses a single-feature GeoJSON Polygon and returns
// its exterior ring's lon/lat vertices alongside a per-vertex half-width
// offset, feeding coordinates.Boundary.PerPoint (Open Question (a): the
// per-vertex envelope). A vertex's offset is half the distance to its
// nearest ring neighbor, a local-spacing estimate of how far the mask
// boundary may safely widen around that vertex without overlapping its
// neighbors.
func PolygonVertexOffsets(data []byte) (lon, lat, offset []float64, err error) {
	geom, gerr := geojson.UnmarshalGeometry(data)
	if gerr != nil {
		f, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil || f.Geometry == nil {
			return nil, nil, nil, errs.NewInvalidCoordinates("geojson: %v", gerr)
		}
		geom = f.Geometry
	}
	if !geom.IsPolygon() || len(geom.Polygon) == 0 {
		return nil, nil, nil, errs.NewInvalidCoordinates("geojson: expected a Polygon geometry")
	}

	ring := geom.Polygon[0]
	n := len(ring)
	if n < 3 {
		return nil, nil, nil, errs.NewInvalidCoordinates("geojson: polygon ring has fewer than 3 vertices")
	}

	lon = make([]float64, n)
	lat = make([]float64, n)
	offset = make([]float64, n)
	for i, v := range ring {
		lon[i], lat[i] = v[0], v[1]
	}
	// A closed ring repeats its first vertex as its last; neighbors are
	// taken around the distinct vertices so that repeat is not one of them.
	m := n
	if ring[0][0] == ring[n-1][0] && ring[0][1] == ring[n-1][1] {
		m = n - 1
	}
	for i := range ring {
		j := i % m
		prev := ring[(j-1+m)%m]
		next := ring[(j+1)%m]
		dPrev := euclid(ring[j], prev)
		dNext := euclid(ring[j], next)
		nearest := dPrev
		if dNext < nearest {
			nearest = dNext
		}
		offset[i] = nearest / 2
	}
	return lon, lat, offset, nil
}

func euclid(a, b []float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return math.Sqrt(dx*dx + dy*dy)
}
