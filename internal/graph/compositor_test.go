package graph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/scheduler"
	"github.com/geopods/podflow/internal/units"
)

type constNode struct {
	dims   []string
	shape  []int
	values []float64
}

func (n constNode) Eval(ctx context.Context, request *coordinates.CoordinateSet, out *units.Array) (*units.Array, error) {
	a, err := units.New(n.dims, n.shape)
	if err != nil {
		return nil, err
	}
	copy(a.Values, n.values)
	if out != nil {
		copy(out.Values, a.Values)
		return out, nil
	}
	return a, nil
}

func (n constNode) FindCoordinates(ctx context.Context) ([]*coordinates.CoordinateSet, error) {
	return nil, nil
}

type multiOutputConstNode struct {
	constNode
	outputNames []string
}

func (n multiOutputConstNode) OutputNames() []string { return n.outputNames }

func oneByOneRequest(t *testing.T) *coordinates.CoordinateSet {
	t.Helper()
	row, err := coordinates.FromValues(coordinates.Lat, coordinates.DtypeFloat64, []float64{0})
	require.NoError(t, err)
	col, err := coordinates.FromValues(coordinates.Lon, coordinates.DtypeFloat64, []float64{0})
	require.NoError(t, err)
	cs, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{row}}, {Axes: []*coordinates.Axis{col}}})
	require.NoError(t, err)
	return cs
}

func twoByThreeRequest(t *testing.T) *coordinates.CoordinateSet {
	t.Helper()
	row, err := coordinates.FromValues(coordinates.Lat, coordinates.DtypeFloat64, []float64{0, 1})
	require.NoError(t, err)
	col, err := coordinates.FromValues(coordinates.Lon, coordinates.DtypeFloat64, []float64{0, 1, 2})
	require.NoError(t, err)
	cs, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{row}}, {Axes: []*coordinates.Axis{col}}})
	require.NoError(t, err)
	return cs
}

func TestCompositeShortCircuitOverlay(t *testing.T) {
	request := twoByThreeRequest(t)

	nan := math.NaN()
	a, err := units.New([]string{"lat", "lon"}, []int{2, 3})
	require.NoError(t, err)
	copy(a.Values, []float64{nan, nan, nan, 1, 1, 1})

	b, err := units.New([]string{"lat", "lon"}, []int{2, 3})
	require.NoError(t, err)
	copy(b.Values, []float64{0, 0, 0, 0, 0, 0})

	result, err := Composite(request, []*units.Array{a, b})
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 0, 1, 1, 1}, result.Values)
}

func TestCompositeStopsAfterFirstFullSource(t *testing.T) {
	request := twoByThreeRequest(t)

	a, err := units.New([]string{"lat", "lon"}, []int{2, 3})
	require.NoError(t, err)
	copy(a.Values, []float64{1, 2, 3, 4, 5, 6})

	b, err := units.New([]string{"lat", "lon"}, []int{2, 3})
	require.NoError(t, err)
	copy(b.Values, []float64{9, 9, 9, 9, 9, 9})

	result, err := Composite(request, []*units.Array{a, b})
	require.NoError(t, err)
	require.Equal(t, a.Values, result.Values)
}

func TestCompositeRejectsShapeMismatch(t *testing.T) {
	request := twoByThreeRequest(t)
	bad, err := units.New([]string{"lat", "lon"}, []int{2, 2})
	require.NoError(t, err)
	_, err = Composite(request, []*units.Array{bad})
	require.Error(t, err)
}

func TestNewCompositorRejectsMismatchedSourceCoordinateSize(t *testing.T) {
	sources := []Node{
		constNode{dims: []string{"lat", "lon"}, shape: []int{2, 3}, values: make([]float64, 6)},
		constNode{dims: []string{"lat", "lon"}, shape: []int{2, 3}, values: make([]float64, 6)},
	}
	onlyOne, err := coordinates.FromValues(coordinates.Lat, coordinates.DtypeFloat64, []float64{0})
	require.NoError(t, err)
	sc, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{onlyOne}}})
	require.NoError(t, err)

	_, err = NewCompositor(sources, false, sc, nil)
	require.Error(t, err)
}

func TestSelectSourcesWithoutSourceCoordinatesReturnsAll(t *testing.T) {
	sources := []Node{
		constNode{},
		constNode{},
		constNode{},
	}
	c, err := NewCompositor(sources, false, nil, nil)
	require.NoError(t, err)

	request := twoByThreeRequest(t)
	selected, err := c.SelectSources(request)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, selected)
}

func TestSelectSourcesNarrowsByPosition(t *testing.T) {
	sources := []Node{
		constNode{},
		constNode{},
		constNode{},
	}
	srcLat, err := coordinates.FromValues(coordinates.Lat, coordinates.DtypeFloat64, []float64{0, 10, 20})
	require.NoError(t, err)
	sc, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{srcLat}}})
	require.NoError(t, err)
	c, err := NewCompositor(sources, false, sc, nil)
	require.NoError(t, err)

	reqLat, err := coordinates.FromUniform(coordinates.Lat, coordinates.DtypeFloat64, -1, 11, 1)
	require.NoError(t, err)
	request, err := coordinates.New([]coordinates.Dimension{{Axes: []*coordinates.Axis{reqLat}}})
	require.NoError(t, err)

	selected, err := c.SelectSources(request)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, selected)
}

func TestCompositorEvalSequentialOverlay(t *testing.T) {
	request := twoByThreeRequest(t)
	nan := math.NaN()
	sources := []Node{
		constNode{dims: []string{"lat", "lon"}, shape: []int{2, 3}, values: []float64{nan, nan, nan, 1, 1, 1}},
		constNode{dims: []string{"lat", "lon"}, shape: []int{2, 3}, values: []float64{0, 0, 0, 0, 0, 0}},
	}
	c, err := NewCompositor(sources, false, nil, nil)
	require.NoError(t, err)

	out, err := c.Eval(context.Background(), request, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 0, 1, 1, 1}, out.Values)
}

func TestCompositorEvalWithSchedulerPreservesOrder(t *testing.T) {
	request := twoByThreeRequest(t)
	nan := math.NaN()
	sources := []Node{
		constNode{dims: []string{"lat", "lon"}, shape: []int{2, 3}, values: []float64{nan, nan, nan, 1, 1, 1}},
		constNode{dims: []string{"lat", "lon"}, shape: []int{2, 3}, values: []float64{0, 0, 0, 0, 0, 0}},
	}
	c, err := NewCompositor(sources, false, nil, scheduler.New(4))
	require.NoError(t, err)

	out, err := c.Eval(context.Background(), request, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 0, 1, 1, 1}, out.Values)
}

func TestNewCompositorRejectsMixedStandardAndMultiOutputSources(t *testing.T) {
	sources := []Node{
		constNode{dims: []string{"lat", "lon"}, shape: []int{1, 1}, values: []float64{1}},
		multiOutputConstNode{
			constNode:   constNode{dims: []string{"lat", "lon", "outputs"}, shape: []int{1, 1, 1}, values: []float64{1}},
			outputNames: []string{"temp"},
		},
	}
	_, err := NewCompositor(sources, true, nil, nil)
	require.Error(t, err)
}

func TestNewCompositorRejectsMultiOutputFlagMismatch(t *testing.T) {
	standard := []Node{constNode{dims: []string{"lat", "lon"}, shape: []int{1, 1}, values: []float64{1}}}
	_, err := NewCompositor(standard, true, nil, nil)
	require.Error(t, err)

	multi := []Node{multiOutputConstNode{
		constNode:   constNode{dims: []string{"lat", "lon", "outputs"}, shape: []int{1, 1, 1}, values: []float64{1}},
		outputNames: []string{"temp"},
	}}
	_, err = NewCompositor(multi, false, nil, nil)
	require.Error(t, err)
}

func TestNewCompositorUnionsOutputNamesFirstSeenOrder(t *testing.T) {
	sources := []Node{
		multiOutputConstNode{outputNames: []string{"temp", "precip"}},
		multiOutputConstNode{outputNames: []string{"precip", "wind"}},
	}
	c, err := NewCompositor(sources, true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"temp", "precip", "wind"}, c.OutputNames)
}

func TestCompositorEvalMultiOutputAlignsAndComposites(t *testing.T) {
	nan := math.NaN()
	sources := []Node{
		multiOutputConstNode{
			constNode:   constNode{dims: []string{"lat", "lon", "outputs"}, shape: []int{1, 1, 2}, values: []float64{10, nan}},
			outputNames: []string{"temp", "precip"},
		},
		multiOutputConstNode{
			constNode:   constNode{dims: []string{"lat", "lon", "outputs"}, shape: []int{1, 1, 2}, values: []float64{20, 30}},
			outputNames: []string{"precip", "wind"},
		},
	}
	c, err := NewCompositor(sources, true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"temp", "precip", "wind"}, c.OutputNames)

	out, err := c.Eval(context.Background(), oneByOneRequest(t), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"lat", "lon", "outputs"}, out.Dims)
	require.Equal(t, []float64{10, 20, 30}, out.Values)
}

func TestCompositorEvalWritesIntoOut(t *testing.T) {
	request := twoByThreeRequest(t)
	sources := []Node{
		constNode{dims: []string{"lat", "lon"}, shape: []int{2, 3}, values: []float64{1, 2, 3, 4, 5, 6}},
	}
	c, err := NewCompositor(sources, false, nil, nil)
	require.NoError(t, err)

	buf, err := units.New([]string{"lat", "lon"}, []int{2, 3})
	require.NoError(t, err)
	_, err = c.Eval(context.Background(), request, buf)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3, 4, 5, 6}, buf.Values)
}
