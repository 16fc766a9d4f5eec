package graph

import (
	"context"
	"math"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/interp"
	"github.com/geopods/podflow/internal/sources"
	"github.com/geopods/podflow/internal/units"
)

// DataSource wraps a sources.Adapter as a Node, implementing the eval
// algorithm of spec.md §4.5.
type DataSource struct {
	Adapter sources.Adapter
	Method  string // nearest, bilinear, cubic_spline, nearest_preview, ...

	SpatialTolerance float64
	TimeTolerance    float64
	AltTolerance     float64

	// Outputs, when non-empty, makes this source multi-output (spec.md
	// §4.8): Eval appends a trailing "outputs" dimension with one slot per
	// name. Each slot holds the same evaluated field; a data source has no
	// native notion of distinct per-output values, so this carries the
	// dimension and naming contract without inventing per-output content.
	Outputs []string
}

// OutputNames implements MultiOutputNode. A standard (non-multi-output)
// source returns nil.
func (ds *DataSource) OutputNames() []string { return ds.Outputs }

func (ds *DataSource) FindCoordinates(ctx context.Context) ([]*coordinates.CoordinateSet, error) {
	native, err := ds.Adapter.NativeCoordinates(ctx)
	if err != nil {
		return nil, err
	}
	return []*coordinates.CoordinateSet{native}, nil
}

func requestBounds(cs *coordinates.CoordinateSet) map[string][2]float64 {
	bounds := make(map[string][2]float64, len(cs.Dims))
	for _, d := range cs.Dims {
		bounds[d.Name()] = d.Axes[0].Bounds()
	}
	return bounds
}

func (ds *DataSource) Eval(ctx context.Context, request *coordinates.CoordinateSet, out *units.Array) (*units.Array, error) {
	select {
	case <-ctx.Done():
		return nil, &errs.Cancelled{}
	default:
	}

	if err := ds.Adapter.Open(ctx); err != nil {
		return nil, err
	}
	native, err := ds.Adapter.NativeCoordinates(ctx)
	if err != nil {
		return nil, err
	}

	outer := ds.Method != "nearest"
	subCoords, selections, err := native.Intersect(requestBounds(request), outer)
	if err != nil {
		return nil, err
	}

	reqDims := request.DimNames()
	if totalCells(subCoords.Shape()) == 0 {
		if len(ds.Outputs) > 0 {
			return units.Full(append(append([]string(nil), reqDims...), "outputs"), append(append([]int(nil), request.Shape()...), len(ds.Outputs)), math.NaN())
		}
		return units.Full(reqDims, request.Shape(), math.NaN())
	}

	if ds.Method == "nearest_preview" {
		subCoords, selections = downStridePreview(subCoords, selections, request)
	}

	ranges := make([]coordinates.IndexRange, len(native.Dims))
	selByName := make(map[string]coordinates.DimSelection, len(selections))
	for _, s := range selections {
		selByName[s.Name] = s
	}
	for i, d := range native.Dims {
		if s, ok := selByName[d.Name()]; ok {
			ranges[i] = s.Range
		} else {
			idx := make([]int, d.Size())
			for j := range idx {
				idx[j] = j
			}
			ranges[i] = coordinates.IndexRange{Indices: idx}
		}
	}

	raw, err := ds.Adapter.Read(ctx, ranges)
	if err != nil {
		return nil, errs.NewUpstreamUnavailable(err, "data source read failed")
	}

	subArray, err := units.New(subCoords.DimNames(), subCoords.Shape())
	if err != nil {
		return nil, err
	}
	copy(subArray.Values, raw)
	remapNoData(subArray, ds.Adapter.NoDataValues())

	result, err := ds.interpolate(ctx, subCoords, subArray, request)
	if err != nil {
		return nil, err
	}

	if len(ds.Outputs) > 0 {
		result, err = broadcastOutputs(result, ds.Outputs)
		if err != nil {
			return nil, err
		}
	}

	if out != nil {
		if len(out.Values) != len(result.Values) {
			return nil, errs.NewDimensionMismatch("data source eval: output buffer has %d cells, result has %d", len(out.Values), len(result.Values))
		}
		copy(out.Values, result.Values)
		return out, nil
	}
	return result, nil
}

// broadcastOutputs appends a trailing "outputs" dimension to a, one slot
// per name, each slot a copy of a's values.
func broadcastOutputs(a *units.Array, names []string) (*units.Array, error) {
	dims := append(append([]string(nil), a.Dims...), "outputs")
	shape := append(append([]int(nil), a.Shape...), len(names))
	out, err := units.New(dims, shape)
	if err != nil {
		return nil, err
	}
	n := len(names)
	for i, v := range a.Values {
		base := i * n
		for slot := 0; slot < n; slot++ {
			out.Values[base+slot] = v
		}
	}
	return out, nil
}

func totalCells(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func remapNoData(a *units.Array, noData []float64) {
	if len(noData) == 0 {
		return
	}
	for i, v := range a.Values {
		for _, nd := range noData {
			if v == nd {
				a.Values[i] = math.NaN()
				break
			}
		}
	}
}

// downStridePreview thins each uniform axis of subCoords per spec.md
// §4.5's nearest_preview rule: stride = round(request_step/native_step),
// never below 1. Per the open-question (c) policy decision, a destination
// step smaller than the source step always preserves the source cadence
// (stride stays 1) rather than falling back inconsistently.
func downStridePreview(subCoords *coordinates.CoordinateSet, selections []coordinates.DimSelection, request *coordinates.CoordinateSet) (*coordinates.CoordinateSet, []coordinates.DimSelection) {
	newDims := make([]coordinates.Dimension, len(subCoords.Dims))
	newSelections := make([]coordinates.DimSelection, 0, len(selections))
	selByName := make(map[string]coordinates.DimSelection, len(selections))
	for _, s := range selections {
		selByName[s.Name] = s
	}

	for i, d := range subCoords.Dims {
		reqDim, hasReq := request.Dim(d.Name())
		sel, hasSel := selByName[d.Name()]
		if !hasReq || !hasSel || len(d.Axes) != 1 || !d.Axes[0].IsUniform() || !reqDim.Axes[0].IsUniform() {
			newDims[i] = d
			if hasSel {
				newSelections = append(newSelections, sel)
			}
			continue
		}
		nativeStep := math.Abs(d.Axes[0].Step())
		reqStep := math.Abs(reqDim.Axes[0].Step())
		if nativeStep == 0 || reqStep <= nativeStep {
			newDims[i] = d
			newSelections = append(newSelections, sel)
			continue
		}
		stride := int(math.Round(reqStep / nativeStep))
		if stride < 1 {
			stride = 1
		}
		var strided []int
		for j := 0; j < len(sel.Range.Indices); j += stride {
			strided = append(strided, sel.Range.Indices[j])
		}
		newRange := coordinates.IndexRange{Indices: strided}
		newAxis, err := d.Axes[0].Slice(coordinates.IndexRange{Indices: indicesRelative(sel.Range.Indices, strided)})
		if err != nil {
			newDims[i] = d
			newSelections = append(newSelections, sel)
			continue
		}
		newDims[i] = coordinates.Dimension{Axes: []*coordinates.Axis{newAxis}}
		newSelections = append(newSelections, coordinates.DimSelection{Name: d.Name(), Dim: newDims[i], Range: newRange})
	}

	out, err := coordinates.New(newDims)
	if err != nil {
		return subCoords, selections
	}
	return out, newSelections
}

// indicesRelative maps strided absolute indices (a subset of full) back to
// positions within full, for slicing an axis already restricted to full.
func indicesRelative(full, strided []int) []int {
	pos := make(map[int]int, len(full))
	for i, v := range full {
		pos[v] = i
	}
	out := make([]int, len(strided))
	for i, v := range strided {
		out[i] = pos[v]
	}
	return out
}
