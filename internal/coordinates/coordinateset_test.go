package coordinates

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func latLonSet(t *testing.T) *CoordinateSet {
	t.Helper()
	lat, err := FromUniform(Lat, DtypeFloat64, 0, 4, 1)
	require.NoError(t, err)
	lon, err := FromUniform(Lon, DtypeFloat64, 10, 13, 1)
	require.NoError(t, err)
	cs, err := New([]Dimension{{Axes: []*Axis{lat}}, {Axes: []*Axis{lon}}})
	require.NoError(t, err)
	return cs
}

func TestCoordinateSetShape(t *testing.T) {
	cs := latLonSet(t)
	require.Equal(t, []int{5, 4}, cs.Shape())
	require.Equal(t, []string{"lat", "lon"}, cs.DimNames())
}

func TestCoordinateSetRejectsDuplicateNames(t *testing.T) {
	lat1, _ := FromUniform(Lat, DtypeFloat64, 0, 1, 1)
	lat2, _ := FromUniform(Lat, DtypeFloat64, 0, 1, 1)
	_, err := New([]Dimension{{Axes: []*Axis{lat1}}, {Axes: []*Axis{lat2}}})
	require.Error(t, err)
}

func TestCoordinateSetRejectsMismatchedStackedLengths(t *testing.T) {
	lat, _ := FromUniform(Lat, DtypeFloat64, 0, 3, 1)
	lon, _ := FromUniform(Lon, DtypeFloat64, 0, 5, 1)
	_, err := New([]Dimension{{Axes: []*Axis{lat, lon}}})
	require.Error(t, err)
}

func TestStackAndUnstack(t *testing.T) {
	cs := latLonSet(t)
	stacked, err := cs.Stack([]string{"lat", "lon"})
	require.NoError(t, err)
	require.Equal(t, []string{"lat_lon"}, stacked.DimNames())

	unstacked, err := stacked.Unstack("lat_lon")
	require.NoError(t, err)
	require.Equal(t, []string{"lat", "lon"}, unstacked.DimNames())
}

func TestStackRejectsMismatchedSizes(t *testing.T) {
	lat, _ := FromUniform(Lat, DtypeFloat64, 0, 2, 1)
	lon, _ := FromUniform(Lon, DtypeFloat64, 0, 10, 1)
	mismatched, err := New([]Dimension{{Axes: []*Axis{lat}}, {Axes: []*Axis{lon}}})
	require.NoError(t, err)
	_, err = mismatched.Stack([]string{"lat", "lon"})
	require.Error(t, err)
}

func TestIntersectNarrowsNamedDimensionsOnly(t *testing.T) {
	cs := latLonSet(t)
	narrowed, sels, err := cs.Intersect(map[string][2]float64{"lat": {1, 2}}, false)
	require.NoError(t, err)
	require.Equal(t, []int{2, 4}, narrowed.Shape())
	require.Len(t, sels, 1)
	require.Equal(t, "lat", sels[0].Name)
}

func TestMergeRejectsOverlap(t *testing.T) {
	cs := latLonSet(t)
	_, err := cs.Merge(cs)
	require.Error(t, err)
}

func TestMergeDisjoint(t *testing.T) {
	lat, _ := FromUniform(Lat, DtypeFloat64, 0, 4, 1)
	latSet, err := New([]Dimension{{Axes: []*Axis{lat}}})
	require.NoError(t, err)

	timeAxis, _ := FromUniform(Time, DtypeTime, 0, 2, 1)
	timeSet, err := New([]Dimension{{Axes: []*Axis{timeAxis}}})
	require.NoError(t, err)

	merged, err := latSet.Merge(timeSet)
	require.NoError(t, err)
	require.Equal(t, []string{"lat", "time"}, merged.DimNames())
}

func TestChunkShapeRespectsBudget(t *testing.T) {
	lat, _ := FromUniform(Lat, DtypeFloat64, 0, 99, 1)
	lon, _ := FromUniform(Lon, DtypeFloat64, 0, 99, 1)
	cs, err := New([]Dimension{{Axes: []*Axis{lat}}, {Axes: []*Axis{lon}}})
	require.NoError(t, err)

	// lat is kept whole; lon is the reduced dimension and absorbs the
	// budget shrink.
	shape := cs.ChunkShape([]string{"lat"}, []string{"lon"}, 1000)
	require.Equal(t, 100, shape["lat"])
	require.LessOrEqual(t, shape["lat"]*shape["lon"], 1000)
}

func TestChunkShapeLeavesUnmentionedDimsFull(t *testing.T) {
	lat, _ := FromUniform(Lat, DtypeFloat64, 0, 9, 1)
	lon, _ := FromUniform(Lon, DtypeFloat64, 0, 9, 1)
	tm, _ := FromUniform(Time, DtypeTime, 0, 9, 1)
	cs, err := New([]Dimension{{Axes: []*Axis{lat}}, {Axes: []*Axis{lon}}, {Axes: []*Axis{tm}}})
	require.NoError(t, err)

	shape := cs.ChunkShape([]string{"lat"}, []string{"lon"}, 5)
	require.Equal(t, 10, shape["lat"])
	require.Equal(t, 10, shape["time"])
	require.LessOrEqual(t, shape["lon"], 5)
}

func TestIterChunksCoversWholeSet(t *testing.T) {
	cs := latLonSet(t)
	it := cs.IterChunks(map[string]int{"lat": 2, "lon": 2})

	total := 0
	for {
		tile, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		shape := tile.Shape()
		total += shape[0] * shape[1]
	}
	require.Equal(t, 5*4, total)
}

func TestIterChunksSingleTileWhenUnspecified(t *testing.T) {
	cs := latLonSet(t)
	it := cs.IterChunks(nil)
	tile, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cs.Shape(), tile.Shape())

	_, ok, err = it.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
