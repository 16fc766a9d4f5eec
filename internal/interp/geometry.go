// Package interp implements the interpolator dispatch table and the
// interpolation algorithms it selects between (spec.md §4.6, §4.7).
package interp

import (
	"github.com/geopods/podflow/internal/coordinates"
)

// Geometry classifies a CoordinateSet's spatial shape for dispatch
// purposes (spec.md §4.6's table is keyed on source/dest geometry pairs).
type Geometry int

const (
	GeomRegularGrid Geometry = iota
	GeomIrregularGrid
	GeomStackedPoints
	GeomOneD
	GeomIsolated
)

func (g Geometry) String() string {
	switch g {
	case GeomRegularGrid:
		return "regular-grid"
	case GeomIrregularGrid:
		return "irregular-grid"
	case GeomStackedPoints:
		return "stacked-points"
	case GeomOneD:
		return "1d"
	default:
		return "isolated"
	}
}

// Classify inspects cs's lat/lon dimensions and decides which row of the
// dispatch table applies.
func Classify(cs *coordinates.CoordinateSet) Geometry {
	lat, hasLat := cs.Dim(string(coordinates.Lat))
	lon, hasLon := cs.Dim(string(coordinates.Lon))

	if hasLat && hasLon {
		if lat.IsStacked() || lon.IsStacked() {
			return GeomStackedPoints
		}
		if isUniform(lat) && isUniform(lon) {
			return GeomRegularGrid
		}
		return GeomIrregularGrid
	}

	stackedLatLon, hasStacked := cs.Dim("lat_lon")
	if hasStacked && stackedLatLon.IsStacked() {
		return GeomStackedPoints
	}

	if len(cs.Dims) == 1 {
		if cs.Dims[0].Size() <= 1 {
			return GeomIsolated
		}
		return GeomOneD
	}
	return GeomIsolated
}

func isUniform(d coordinates.Dimension) bool {
	for _, a := range d.Axes {
		if !a.IsUniform() {
			return false
		}
	}
	return true
}

// LatLonValues pulls the lat/lon 1-D coordinate arrays out of cs, whether
// stacked or unstacked.
func LatLonValues(cs *coordinates.CoordinateSet) (lat, lon []float64, stacked bool, ok bool) {
	if d, has := cs.Dim("lat_lon"); has && d.IsStacked() {
		return d.Axes[0].Values(), d.Axes[1].Values(), true, true
	}
	latDim, hasLat := cs.Dim(string(coordinates.Lat))
	lonDim, hasLon := cs.Dim(string(coordinates.Lon))
	if hasLat && hasLon {
		return latDim.Axes[0].Values(), lonDim.Axes[0].Values(), false, true
	}
	return nil, nil, false, false
}
