package graph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/sources"
	"github.com/geopods/podflow/internal/units"
)

func gridCoords(t *testing.T, latStart, latStop, latStep, lonStart, lonStop, lonStep float64) *coordinates.CoordinateSet {
	t.Helper()
	lat, err := coordinates.FromUniform(coordinates.Lat, coordinates.DtypeFloat64, latStart, latStop, latStep)
	require.NoError(t, err)
	lon, err := coordinates.FromUniform(coordinates.Lon, coordinates.DtypeFloat64, lonStart, lonStop, lonStep)
	require.NoError(t, err)
	cs, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{lat}}, {Axes: []*coordinates.Axis{lon}}})
	require.NoError(t, err)
	return cs
}

func TestDataSourceEvalIdentityNearest(t *testing.T) {
	native := gridCoords(t, 0, 3, 1, 0, 3, 1)
	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i)
	}
	src := sources.NewMemSource(native, data)
	ds := &DataSource{Adapter: src, Method: "nearest"}

	out, err := ds.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.Equal(t, data, out.Values)
}

func TestDataSourceEvalEmptyIntersectionIsNaN(t *testing.T) {
	native := gridCoords(t, 0, 3, 1, 0, 3, 1)
	data := make([]float64, 16)
	src := sources.NewMemSource(native, data)
	ds := &DataSource{Adapter: src, Method: "nearest"}

	request := gridCoords(t, 100, 103, 1, 100, 103, 1)
	out, err := ds.Eval(context.Background(), request, nil)
	require.NoError(t, err)
	for _, v := range out.Values {
		require.True(t, math.IsNaN(v))
	}
}

func TestDataSourceEvalNoDataBecomesNaN(t *testing.T) {
	native := gridCoords(t, 0, 1, 1, 0, 1, 1)
	data := []float64{-9999, 1, 2, 3}
	src := sources.NewMemSource(native, data)
	src.NoData = []float64{-9999}
	ds := &DataSource{Adapter: src, Method: "nearest"}

	out, err := ds.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.True(t, math.IsNaN(out.Values[0]))
	require.Equal(t, 1.0, out.Values[1])
}

func TestDataSourceEvalWritesIntoOut(t *testing.T) {
	native := gridCoords(t, 0, 1, 1, 0, 1, 1)
	data := []float64{1, 2, 3, 4}
	src := sources.NewMemSource(native, data)
	ds := &DataSource{Adapter: src, Method: "nearest"}

	buf, err := units.New(native.DimNames(), native.Shape())
	require.NoError(t, err)
	_, err = ds.Eval(context.Background(), native, buf)
	require.NoError(t, err)
	require.Equal(t, data, buf.Values)
}

func TestDataSourceFindCoordinates(t *testing.T) {
	native := gridCoords(t, 0, 1, 1, 0, 1, 1)
	src := sources.NewMemSource(native, []float64{1, 2, 3, 4})
	ds := &DataSource{Adapter: src, Method: "nearest"}

	found, err := ds.FindCoordinates(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, native.Shape(), found[0].Shape())
}
