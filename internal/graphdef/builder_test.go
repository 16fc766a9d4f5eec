package graphdef

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/graph"
)

func uniformGrid(t *testing.T) *coordinates.CoordinateSet {
	t.Helper()
	lat, err := coordinates.FromUniform(coordinates.Lat, coordinates.DtypeFloat64, 0, 2, 1)
	require.NoError(t, err)
	lon, err := coordinates.FromUniform(coordinates.Lon, coordinates.DtypeFloat64, 0, 2, 1)
	require.NoError(t, err)
	cs, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{lat}}, {Axes: []*coordinates.Axis{lon}}})
	require.NoError(t, err)
	return cs
}

func memSourceDef(t *testing.T, values []float64) *graph.Definition {
	t.Helper()
	coordsJSON, err := EncodeCoordinates(uniformGrid(t))
	require.NoError(t, err)
	var coordsAttr map[string]interface{}
	require.NoError(t, json.Unmarshal(coordsJSON, &coordsAttr))

	return &graph.Definition{
		Kind: "data_source",
		Attrs: map[string]interface{}{
			"adapter":     "mem",
			"method":      "nearest",
			"coordinates": coordsAttr,
			"values":      toInterfaceSlice(values),
		},
	}
}

func TestBuilderBuildsDataSourceAndEvaluates(t *testing.T) {
	values := make([]float64, 9)
	for i := range values {
		values[i] = float64(i)
	}
	def := memSourceDef(t, values)

	b := NewBuilder(nil, 1_000_000)
	node, err := b.Build(def)
	require.NoError(t, err)

	out, err := node.Eval(context.Background(), uniformGrid(t), nil)
	require.NoError(t, err)
	require.Equal(t, values, out.Values)
}

func TestBuilderBuildsReducerOverDataSource(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8}
	def := &graph.Definition{
		Kind: "reducer",
		Attrs: map[string]interface{}{
			"method":      "sum",
			"reduce_dims": toInterfaceSlice([]string{"lon"}),
		},
		Inputs: map[string]*graph.Definition{
			"input": memSourceDef(t, values),
		},
	}

	b := NewBuilder(nil, 1_000_000)
	node, err := b.Build(def)
	require.NoError(t, err)

	out, err := node.Eval(context.Background(), uniformGrid(t), nil)
	require.NoError(t, err)
	require.Equal(t, []float64{3, 12, 21}, out.Values)
}

func TestBuilderBuildsCompositorRespectingOrder(t *testing.T) {
	first := memSourceDef(t, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})
	second := memSourceDef(t, []float64{2, 2, 2, 2, 2, 2, 2, 2, 2})

	def := &graph.Definition{
		Kind: "compositor",
		Attrs: map[string]interface{}{
			"order": toInterfaceSlice([]string{"primary", "fallback"}),
		},
		Inputs: map[string]*graph.Definition{
			"primary":  first,
			"fallback": second,
		},
	}

	b := NewBuilder(nil, 1_000_000)
	node, err := b.Build(def)
	require.NoError(t, err)

	out, err := node.Eval(context.Background(), uniformGrid(t), nil)
	require.NoError(t, err)
	for _, v := range out.Values {
		require.Equal(t, 1.0, v)
	}
}

func multiOutputMemSourceDef(t *testing.T, values []float64, outputNames []string) *graph.Definition {
	t.Helper()
	def := memSourceDef(t, values)
	def.Attrs["output_names"] = toInterfaceSlice(outputNames)
	return def
}

func TestBuilderBuildsMultiOutputCompositor(t *testing.T) {
	first := multiOutputMemSourceDef(t, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}, []string{"a"})
	second := multiOutputMemSourceDef(t, []float64{2, 2, 2, 2, 2, 2, 2, 2, 2}, []string{"b"})

	def := &graph.Definition{
		Kind: "compositor",
		Attrs: map[string]interface{}{
			"order":        toInterfaceSlice([]string{"primary", "fallback"}),
			"multi_output": true,
		},
		Inputs: map[string]*graph.Definition{
			"primary":  first,
			"fallback": second,
		},
	}

	b := NewBuilder(nil, 1_000_000)
	node, err := b.Build(def)
	require.NoError(t, err)

	c, ok := node.(*graph.Compositor)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, c.OutputNames)

	out, err := node.Eval(context.Background(), uniformGrid(t), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"lat", "lon", "outputs"}, out.Dims)
	require.Equal(t, []int{3, 3, 2}, out.Shape)
	for i := 0; i < 9; i++ {
		require.Equal(t, 1.0, out.Values[i*2])   // "a" slot, filled by the primary source
		require.Equal(t, 2.0, out.Values[i*2+1]) // "b" slot, only the fallback source contributes it
	}
}

func TestBuilderRejectsMixedMultiOutputCompositor(t *testing.T) {
	standard := memSourceDef(t, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})
	multi := multiOutputMemSourceDef(t, []float64{2, 2, 2, 2, 2, 2, 2, 2, 2}, []string{"b"})

	def := &graph.Definition{
		Kind: "compositor",
		Attrs: map[string]interface{}{
			"order": toInterfaceSlice([]string{"primary", "fallback"}),
		},
		Inputs: map[string]*graph.Definition{
			"primary":  standard,
			"fallback": multi,
		},
	}

	b := NewBuilder(nil, 1_000_000)
	_, err := b.Build(def)
	require.Error(t, err)
}

func TestBuilderRejectsUnknownKind(t *testing.T) {
	b := NewBuilder(nil, 1_000_000)
	_, err := b.Build(&graph.Definition{Kind: "bogus"})
	require.Error(t, err)
}

func TestBuilderRejectsUnregisteredAdapterKind(t *testing.T) {
	b := NewBuilder(nil, 1_000_000)
	_, err := b.Build(&graph.Definition{Kind: "data_source", Attrs: map[string]interface{}{"adapter": "blob"}})
	require.Error(t, err)
}

func toInterfaceSlice[T any](in []T) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
