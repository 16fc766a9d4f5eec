package graph

import (
	"context"
	"math"
	"sort"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// Reducer collapses ReduceDims out of Input's evaluation via Method, one of
// mean/sum/count/min/max/std/median/mode (spec.md §4.9).
type Reducer struct {
	Input      Node
	ReduceDims []string
	Method     string
	// ChunkBudget bounds the cell count of a single materialized tile before
	// Eval switches from a one-shot reduce to iter_chunks streaming. Zero
	// means "always one-shot" (only safe for small inputs; production
	// callers should set this from config.Config.ChunkBudget).
	ChunkBudget int
}

var validReduceMethods = map[string]bool{
	"mean": true, "sum": true, "count": true, "min": true, "max": true,
	"std": true, "median": true, "mode": true,
}

func NewReducer(input Node, reduceDims []string, method string, chunkBudget int) (*Reducer, error) {
	if !validReduceMethods[method] {
		return nil, errs.NewConfigurationError("reducer: unknown method %q", method)
	}
	return &Reducer{Input: input, ReduceDims: reduceDims, Method: method, ChunkBudget: chunkBudget}, nil
}

// FindCoordinates advertises the input's coordinates with ReduceDims
// already dropped, mirroring EvaluatedCoordinates.
func (r *Reducer) FindCoordinates(ctx context.Context) ([]*coordinates.CoordinateSet, error) {
	found, err := r.Input.FindCoordinates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*coordinates.CoordinateSet, 0, len(found))
	for _, cs := range found {
		reduced, err := r.evaluatedCoordinates(cs)
		if err != nil {
			return nil, err
		}
		out = append(out, reduced)
	}
	return out, nil
}

// evaluatedCoordinates drops ReduceDims from cs, validating every requested
// name is actually present (spec.md §4.9: "rejects unknown names").
func (r *Reducer) evaluatedCoordinates(cs *coordinates.CoordinateSet) (*coordinates.CoordinateSet, error) {
	for _, name := range r.ReduceDims {
		if _, ok := cs.Dim(name); !ok {
			return nil, errs.NewDimensionMismatch("reducer: dimension %q is not one of the input's dimensions", name)
		}
	}
	var kept []coordinates.Dimension
	for _, d := range cs.Dims {
		drop := false
		for _, name := range r.ReduceDims {
			if d.Name() == name {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, d)
		}
	}
	return coordinates.New(kept)
}

// Eval evaluates Input over request and reduces ReduceDims out, one-shot
// when request's total cell count fits ChunkBudget, or by streaming over
// iter_chunks tiles otherwise (spec.md §4.9).
func (r *Reducer) Eval(ctx context.Context, request *coordinates.CoordinateSet, out *units.Array) (*units.Array, error) {
	evaluated, err := r.evaluatedCoordinates(request)
	if err != nil {
		return nil, err
	}

	var result *units.Array
	if r.ChunkBudget <= 0 || totalCells(request.Shape()) <= r.ChunkBudget {
		full, err := r.Input.Eval(ctx, request, nil)
		if err != nil {
			return nil, err
		}
		result, err = r.reduceFull(full)
		if err != nil {
			return nil, err
		}
	} else {
		result, err = r.reduceChunked(ctx, request, evaluated)
		if err != nil {
			return nil, err
		}
	}

	if out != nil {
		if len(out.Values) != len(result.Values) {
			return nil, errs.NewDimensionMismatch("reducer eval: output buffer has %d cells, result has %d", len(out.Values), len(result.Values))
		}
		copy(out.Values, result.Values)
		return out, nil
	}
	return result, nil
}

// reduceFull materializes Input's whole evaluation and reduces it in one
// pass, for mean/sum/count/min/max/std via the relevant aggregate function
// and for median/mode via CollectAlong's raw per-cell groups.
func (r *Reducer) reduceFull(full *units.Array) (*units.Array, error) {
	switch r.Method {
	case "sum":
		return full.ReduceAlong(r.ReduceDims, nansum)
	case "count":
		return full.ReduceAlong(r.ReduceDims, countFinite)
	case "mean":
		return full.ReduceAlong(r.ReduceDims, nanmean)
	case "min":
		return full.ReduceAlong(r.ReduceDims, nanmin)
	case "max":
		return full.ReduceAlong(r.ReduceDims, nanmax)
	case "std":
		return full.ReduceAlong(r.ReduceDims, nanstd)
	case "median":
		return full.ReduceAlong(r.ReduceDims, nanmedian)
	case "mode":
		return full.ReduceAlong(r.ReduceDims, nanmode)
	default:
		return nil, errs.NewConfigurationError("reducer: unknown method %q", r.Method)
	}
}

// reduceChunked streams Input over request's iter_chunks tiling (kept dims
// full, ReduceDims split per CoordinateSet.ChunkShape), merging each tile's
// contribution into a running per-cell accumulator. median/mode fall back
// to exact buffered accumulation across tiles (Open Question (b): this
// module documents the exact, not approximate, choice) rather than a
// t-digest, since the chunk budget already bounds memory per reduced axis.
func (r *Reducer) reduceChunked(ctx context.Context, request, evaluated *coordinates.CoordinateSet) (*units.Array, error) {
	keptDims := evaluated.DimNames()
	chunkShape := request.ChunkShape(keptDims, r.ReduceDims, r.ChunkBudget)
	it := request.IterChunks(chunkShape)

	acc := newAccumulator(r.Method, evaluated)
	for {
		select {
		case <-ctx.Done():
			return nil, &errs.Cancelled{}
		default:
		}
		tileCoords, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		tileData, err := r.Input.Eval(ctx, tileCoords, nil)
		if err != nil {
			return nil, err
		}
		if err := acc.absorb(tileData, r.ReduceDims); err != nil {
			return nil, err
		}
	}
	return acc.finalize()
}

func nansum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}

func countFinite(values []float64) float64 { return float64(len(values)) }

func nanmean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return nansum(values) / float64(len(values))
}

func nanmin(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	best := values[0]
	for _, v := range values[1:] {
		if v < best {
			best = v
		}
	}
	return best
}

func nanmax(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// nanstd is the population standard deviation (ddof=0) of the finite values.
func nanstd(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m := nanmean(values)
	s := 0.0
	for _, v := range values {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(values)))
}

func nanmedian(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func nanmode(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	counts := make(map[float64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := values[0], 0
	// Deterministic tie-break: smallest value wins, so iterate sorted.
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	seen := make(map[float64]bool, len(sorted))
	for _, v := range sorted {
		if seen[v] {
			continue
		}
		seen[v] = true
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// accumulator merges streamed tile contributions into one evaluated-shape
// result, per §4.9's streaming recurrences.
type accumulator struct {
	method string
	dims   []string
	shape  []int

	n      []float64 // sum/count/mean
	sum    []float64
	min    []float64
	max    []float64
	avg    []float64 // welford running mean (std)
	m2     []float64 // welford running M2 (std)
	cnt    []int     // welford running n (std)
	groups [][]float64 // median/mode: exact buffered values per cell
}

func newAccumulator(method string, evaluated *coordinates.CoordinateSet) *accumulator {
	shape := evaluated.Shape()
	cells := totalCells(shape)
	a := &accumulator{method: method, dims: evaluated.DimNames(), shape: shape}
	switch method {
	case "sum", "count", "mean":
		a.sum = make([]float64, cells)
		a.n = make([]float64, cells)
	case "min":
		a.min = fillNaN(cells)
	case "max":
		a.max = fillNaN(cells)
	case "std":
		a.avg = make([]float64, cells)
		a.m2 = make([]float64, cells)
		a.cnt = make([]int, cells)
	case "median", "mode":
		a.groups = make([][]float64, cells)
	}
	return a
}

func fillNaN(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func (a *accumulator) absorb(tile *units.Array, reduceDims []string) error {
	switch a.method {
	case "sum", "count", "mean":
		tileSum, err := tile.ReduceAlong(reduceDims, nansum)
		if err != nil {
			return err
		}
		tileCount, err := tile.ReduceAlong(reduceDims, countFinite)
		if err != nil {
			return err
		}
		for i := range tileSum.Values {
			a.sum[i] += tileSum.Values[i]
			a.n[i] += tileCount.Values[i]
		}
	case "min":
		tileMin, err := tile.ReduceAlong(reduceDims, nanmin)
		if err != nil {
			return err
		}
		for i, v := range tileMin.Values {
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(a.min[i]) || v < a.min[i] {
				a.min[i] = v
			}
		}
	case "max":
		tileMax, err := tile.ReduceAlong(reduceDims, nanmax)
		if err != nil {
			return err
		}
		for i, v := range tileMax.Values {
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(a.max[i]) || v > a.max[i] {
				a.max[i] = v
			}
		}
	case "std":
		return a.absorbStd(tile, reduceDims)
	case "median", "mode":
		_, groups, err := tile.CollectAlong(reduceDims)
		if err != nil {
			return err
		}
		for i, g := range groups {
			a.groups[i] = append(a.groups[i], g...)
		}
	}
	return nil
}

// absorbStd merges one tile's batch statistics into the running Welford
// triple via Chan's parallel-variance formula.
func (a *accumulator) absorbStd(tile *units.Array, reduceDims []string) error {
	tileCount, err := tile.ReduceAlong(reduceDims, countFinite)
	if err != nil {
		return err
	}
	tileMean, err := tile.ReduceAlong(reduceDims, nanmean)
	if err != nil {
		return err
	}
	tileM2, err := tile.ReduceAlong(reduceDims, func(values []float64) float64 {
		if len(values) == 0 {
			return 0
		}
		m := nanmean(values)
		s := 0.0
		for _, v := range values {
			d := v - m
			s += d * d
		}
		return s
	})
	if err != nil {
		return err
	}

	for i := range tileCount.Values {
		nB := int(tileCount.Values[i])
		if nB == 0 {
			continue
		}
		meanB, m2B := tileMean.Values[i], tileM2.Values[i]
		nA := a.cnt[i]
		if nA == 0 {
			a.cnt[i], a.avg[i], a.m2[i] = nB, meanB, m2B
			continue
		}
		delta := meanB - a.avg[i]
		nAB := nA + nB
		a.avg[i] += delta * float64(nB) / float64(nAB)
		a.m2[i] += m2B + delta*delta*float64(nA)*float64(nB)/float64(nAB)
		a.cnt[i] = nAB
	}
	return nil
}

func (a *accumulator) finalize() (*units.Array, error) {
	out, err := units.New(a.dims, a.shape)
	if err != nil {
		return nil, err
	}
	switch a.method {
	case "sum":
		copy(out.Values, a.sum)
	case "count":
		copy(out.Values, a.n)
	case "mean":
		for i := range out.Values {
			if a.n[i] == 0 {
				out.Values[i] = math.NaN()
			} else {
				out.Values[i] = a.sum[i] / a.n[i]
			}
		}
	case "min":
		copy(out.Values, a.min)
	case "max":
		copy(out.Values, a.max)
	case "std":
		for i := range out.Values {
			if a.cnt[i] == 0 {
				out.Values[i] = math.NaN()
			} else {
				out.Values[i] = math.Sqrt(a.m2[i] / float64(a.cnt[i]))
			}
		}
	case "median":
		for i, g := range a.groups {
			out.Values[i] = nanmedian(g)
		}
	case "mode":
		for i, g := range a.groups {
			out.Values[i] = nanmode(g)
		}
	}
	return out, nil
}
