package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

func TestFingerprintIsDeterministicAndOrderSensitive(t *testing.T) {
	a := Fingerprint([]byte(`{"kind":"x"}`), []byte(`{"dims":[]}`))
	b := Fingerprint([]byte(`{"kind":"x"}`), []byte(`{"dims":[]}`))
	require.Equal(t, a, b)

	c := Fingerprint([]byte(`{"kind":"x"}1`), []byte(`{"dims":[]}`))
	require.NotEqual(t, a, c)

	// Concatenation without a separator would collide; the separator byte
	// must make (def="ab", req="cd") distinct from (def="a", req="bcd").
	d1 := Fingerprint([]byte("ab"), []byte("cd"))
	d2 := Fingerprint([]byte("a"), []byte("bcd"))
	require.NotEqual(t, d1, d2)
}

func TestPutThenGetRoundTripsUnitsArrayEntry(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	defer c.Close()

	arr, err := units.New([]string{"lat"}, []int{3})
	require.NoError(t, err)
	arr.Values = []float64{1, 2, 3}

	fp := Fingerprint([]byte("def"), []byte("req"))
	ok := c.Put(fp, Entry{Kind: KindUnitsArray, Array: arr}, true)
	require.True(t, ok)

	got, err := c.Get(fp)
	require.NoError(t, err)
	require.Equal(t, KindUnitsArray, got.Kind)
	require.Equal(t, arr.Values, got.Array.Values)
}

func TestGetMissingFingerprintReturnsCacheMiss(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get("does-not-exist")
	require.Error(t, err)
	var miss *errs.CacheMiss
	require.ErrorAs(t, err, &miss)
}

func TestPutWithoutOverwriteSkipsExistingKey(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	defer c.Close()

	fp := Fingerprint([]byte("def"), []byte("req"))
	require.True(t, c.Put(fp, Entry{Kind: KindSourceListing, SourceListing: []string{"a"}}, true))

	replaced := c.Put(fp, Entry{Kind: KindSourceListing, SourceListing: []string{"b"}}, false)
	require.False(t, replaced)

	got, err := c.Get(fp)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got.SourceListing)
}

func TestPutCoordinateSetEntry(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	defer c.Close()

	lat, err := coordinates.FromUniform(coordinates.Lat, coordinates.DtypeFloat64, 0, 2, 1)
	require.NoError(t, err)
	cs, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{lat}}})
	require.NoError(t, err)

	fp := Fingerprint([]byte("def2"), []byte("req2"))
	require.True(t, c.Put(fp, Entry{Kind: KindCoordinateSet, Coordinates: cs}, true))

	got, err := c.Get(fp)
	require.NoError(t, err)
	require.Equal(t, KindCoordinateSet, got.Kind)
	require.Equal(t, []string{"lat"}, got.Coordinates.DimNames())
}
