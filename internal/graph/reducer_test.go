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

// gridDataSource builds a DataSource over a dense lat x lon grid so a
// Reducer's chunked path (which re-requests arbitrary sub-tiles) exercises
// the same gather/intersect machinery a real source would.
func gridDataSource(t *testing.T, n int, fill func(i, j int) float64) (*DataSource, *coordinates.CoordinateSet) {
	t.Helper()
	native := gridCoords(t, 0, float64(n-1), 1, 0, float64(n-1), 1)
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = fill(i, j)
		}
	}
	src := sources.NewMemSource(native, data)
	return &DataSource{Adapter: src, Method: "nearest"}, native
}

func TestReducerMeanSumCountOneShot(t *testing.T) {
	ds, native := gridDataSource(t, 3, func(i, j int) float64 { return float64(i*3 + j) })
	// values: [[0,1,2],[3,4,5],[6,7,8]]
	r, err := NewReducer(ds, []string{"lon"}, "mean", 1_000_000)
	require.NoError(t, err)

	out, err := r.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"lat"}, out.Dims)
	require.InDeltaSlice(t, []float64{1, 4, 7}, out.Values, 1e-9)

	sumR, err := NewReducer(ds, []string{"lon"}, "sum", 1_000_000)
	require.NoError(t, err)
	sumOut, err := sumR.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{3, 12, 21}, sumOut.Values, 1e-9)

	countR, err := NewReducer(ds, []string{"lon"}, "count", 1_000_000)
	require.NoError(t, err)
	countOut, err := countR.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{3, 3, 3}, countOut.Values)
}

func TestReducerMinMax(t *testing.T) {
	ds, native := gridDataSource(t, 3, func(i, j int) float64 { return float64(i*3 + j) })
	minR, err := NewReducer(ds, []string{"lon"}, "min", 1_000_000)
	require.NoError(t, err)
	minOut, err := minR.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 3, 6}, minOut.Values)

	maxR, err := NewReducer(ds, []string{"lon"}, "max", 1_000_000)
	require.NoError(t, err)
	maxOut, err := maxR.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 5, 8}, maxOut.Values)
}

func TestReducerStdPopulationFormula(t *testing.T) {
	// row 0: [0,1,2] -> mean 1, variance ((1)^2+0+1)/3 = 2/3, std = sqrt(2/3)
	ds, native := gridDataSource(t, 3, func(i, j int) float64 { return float64(i*3 + j) })
	r, err := NewReducer(ds, []string{"lon"}, "std", 1_000_000)
	require.NoError(t, err)
	out, err := r.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.InDelta(t, math.Sqrt(2.0/3.0), out.Values[0], 1e-9)
}

func TestReducerMedianOddAndEven(t *testing.T) {
	native := gridCoords(t, 0, 0, 1, 0, 3, 1)
	data := []float64{5, 1, 3, 2} // median of [5,1,3,2] sorted [1,2,3,5] -> (2+3)/2=2.5
	src := sources.NewMemSource(native, data)
	ds := &DataSource{Adapter: src, Method: "nearest"}

	r, err := NewReducer(ds, []string{"lon"}, "median", 1_000_000)
	require.NoError(t, err)
	out, err := r.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.InDelta(t, 2.5, out.Values[0], 1e-9)
}

func TestReducerModePicksMostFrequent(t *testing.T) {
	native := gridCoords(t, 0, 0, 1, 0, 4, 1)
	data := []float64{1, 2, 2, 3, 3}
	src := sources.NewMemSource(native, data)
	ds := &DataSource{Adapter: src, Method: "nearest"}
	// two modes tie (2 and 3, each count 2); smallest wins deterministically.

	r, err := NewReducer(ds, []string{"lon"}, "mode", 1_000_000)
	require.NoError(t, err)
	out, err := r.Eval(context.Background(), native, nil)
	require.NoError(t, err)
	require.Equal(t, 2.0, out.Values[0])
}

func TestReducerRejectsUnknownDimension(t *testing.T) {
	ds, native := gridDataSource(t, 2, func(i, j int) float64 { return 0 })
	r, err := NewReducer(ds, []string{"alt"}, "mean", 1_000_000)
	require.NoError(t, err)
	_, err = r.Eval(context.Background(), native, nil)
	require.Error(t, err)
}

func TestReducerRejectsUnknownMethod(t *testing.T) {
	ds, _ := gridDataSource(t, 2, func(i, j int) float64 { return 0 })
	_, err := NewReducer(ds, []string{"lon"}, "bogus", 1_000_000)
	require.Error(t, err)
}

func TestReducerChunkedMatchesOneShot(t *testing.T) {
	ds, native := gridDataSource(t, 5, func(i, j int) float64 { return float64(i*5 + j) })

	oneShot, err := NewReducer(ds, []string{"lon"}, "mean", 1_000_000)
	require.NoError(t, err)
	wantOut, err := oneShot.Eval(context.Background(), native, nil)
	require.NoError(t, err)

	chunked, err := NewReducer(ds, []string{"lon"}, "mean", 2)
	require.NoError(t, err)
	gotOut, err := chunked.Eval(context.Background(), native, nil)
	require.NoError(t, err)

	require.InDeltaSlice(t, wantOut.Values, gotOut.Values, 1e-9)
}

func TestReducerChunkedStdMatchesOneShot(t *testing.T) {
	ds, native := gridDataSource(t, 5, func(i, j int) float64 { return float64((i+1) * (j + 1)) })

	oneShot, err := NewReducer(ds, []string{"lon"}, "std", 1_000_000)
	require.NoError(t, err)
	wantOut, err := oneShot.Eval(context.Background(), native, nil)
	require.NoError(t, err)

	chunked, err := NewReducer(ds, []string{"lon"}, "std", 2)
	require.NoError(t, err)
	gotOut, err := chunked.Eval(context.Background(), native, nil)
	require.NoError(t, err)

	require.InDeltaSlice(t, wantOut.Values, gotOut.Values, 1e-9)
}

func TestReducerChunkedMedianMatchesOneShot(t *testing.T) {
	ds, native := gridDataSource(t, 5, func(i, j int) float64 { return float64((i*7 + j*3) % 11) })

	oneShot, err := NewReducer(ds, []string{"lon"}, "median", 1_000_000)
	require.NoError(t, err)
	wantOut, err := oneShot.Eval(context.Background(), native, nil)
	require.NoError(t, err)

	chunked, err := NewReducer(ds, []string{"lon"}, "median", 2)
	require.NoError(t, err)
	gotOut, err := chunked.Eval(context.Background(), native, nil)
	require.NoError(t, err)

	require.InDeltaSlice(t, wantOut.Values, gotOut.Values, 1e-9)
}

func TestReducerFindCoordinatesDropsReducedDims(t *testing.T) {
	ds, _ := gridDataSource(t, 3, func(i, j int) float64 { return 0 })
	r, err := NewReducer(ds, []string{"lon"}, "mean", 1_000_000)
	require.NoError(t, err)

	found, err := r.FindCoordinates(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, []string{"lat"}, found[0].DimNames())
}

func TestReducerWritesIntoOut(t *testing.T) {
	ds, native := gridDataSource(t, 2, func(i, j int) float64 { return float64(i + j) })
	r, err := NewReducer(ds, []string{"lon"}, "sum", 1_000_000)
	require.NoError(t, err)

	buf, err := units.New([]string{"lat"}, []int{2})
	require.NoError(t, err)
	_, err = r.Eval(context.Background(), native, buf)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 3}, buf.Values)
}
