package graph

import (
	"context"
	"math"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/scheduler"
	"github.com/geopods/podflow/internal/units"
)

// Compositor implements the ordered-overlay Node family of spec.md §4.8.
// Sources are tried in priority order (earliest wins); Sched dispatches
// them under the shared thread budget of spec.md §5 (nil falls back to
// strictly sequential evaluation).
type Compositor struct {
	Sources []Node
	// SourceCoordinates holds one synthetic coordinate per source, used by
	// SelectSources to skip sources whose entry doesn't intersect the
	// request.
	SourceCoordinates *coordinates.CoordinateSet
	// MultiOutput marks every source as contributing an extra "outputs"
	// dimension. Composing standard and multi-output sources together is a
	// ConfigurationError, validated at construction via NewCompositor.
	MultiOutput bool
	// OutputNames is the union of every multi-output source's OutputNames,
	// preserving first-seen order across Sources. Empty unless MultiOutput.
	OutputNames []string

	Sched *scheduler.Scheduler
}

// NewCompositor validates the standard/multi-output mixing invariant of
// spec.md §4.8 before returning a usable Compositor. source_coordinates,
// when given, carries one value per source along every one of its
// dimensions (dimension size == len(sources)). A source counts as
// multi-output when it implements MultiOutputNode and advertises at least
// one output name (a DataSource without Outputs is standard). When
// multiOutput is set, every source must be multi-output; OutputNames
// becomes the union of their advertised names, first-seen order preserved.
// Mixing standard and multi-output sources is rejected regardless of what
// multiOutput says, since that mix can never be composited consistently.
func NewCompositor(nodeSources []Node, multiOutput bool, sourceCoords *coordinates.CoordinateSet, sched *scheduler.Scheduler) (*Compositor, error) {
	if sourceCoords != nil {
		for _, d := range sourceCoords.Dims {
			if d.Size() != len(nodeSources) {
				return nil, errs.NewConfigurationError(
					"compositor: source_coordinates dimension %q has size %d, expected %d (one per source)",
					d.Name(), d.Size(), len(nodeSources))
			}
		}
	}

	var outputNames []string
	seen := make(map[string]bool)
	multiOutputSources := 0
	for _, s := range nodeSources {
		mo, ok := s.(MultiOutputNode)
		if !ok || len(mo.OutputNames()) == 0 {
			continue
		}
		multiOutputSources++
		for _, name := range mo.OutputNames() {
			if !seen[name] {
				seen[name] = true
				outputNames = append(outputNames, name)
			}
		}
	}
	if multiOutputSources > 0 && multiOutputSources != len(nodeSources) {
		return nil, errs.NewConfigurationError(
			"compositor: cannot mix standard and multi-output sources (%d of %d sources are multi-output)",
			multiOutputSources, len(nodeSources))
	}
	if multiOutput != (multiOutputSources > 0) {
		return nil, errs.NewConfigurationError(
			"compositor: multi_output=%t but %d of %d sources implement multi-output", multiOutput, multiOutputSources, len(nodeSources))
	}

	return &Compositor{Sources: nodeSources, MultiOutput: multiOutput, OutputNames: outputNames, SourceCoordinates: sourceCoords, Sched: sched}, nil
}

func (c *Compositor) FindCoordinates(ctx context.Context) ([]*coordinates.CoordinateSet, error) {
	var out []*coordinates.CoordinateSet
	for _, s := range c.Sources {
		found, err := s.FindCoordinates(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// SelectSources returns the indices of sources whose SourceCoordinates
// entry intersects request, or every source index when SourceCoordinates
// is unset. A source at index i is kept when, for every dimension
// SourceCoordinates shares a name with request, that dimension's i'th
// value falls within request's bounds for it.
func (c *Compositor) SelectSources(request *coordinates.CoordinateSet) ([]int, error) {
	if c.SourceCoordinates == nil {
		idx := make([]int, len(c.Sources))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}

	bounds := requestBounds(request)
	var selected []int
	for i := range c.Sources {
		include := true
		for _, d := range c.SourceCoordinates.Dims {
			b, ok := bounds[d.Name()]
			if !ok {
				continue
			}
			v := d.Axes[0].At(i)
			if v < b[0] || v > b[1] {
				include = false
				break
			}
		}
		if include {
			selected = append(selected, i)
		}
	}
	return selected, nil
}

// Eval dispatches selected sources (sequentially, or concurrently under
// Sched) then composites their results with Composite.
func (c *Compositor) Eval(ctx context.Context, request *coordinates.CoordinateSet, out *units.Array) (*units.Array, error) {
	selected, err := c.SelectSources(request)
	if err != nil {
		return nil, err
	}

	tasks := make([]scheduler.Task, len(selected))
	for i, srcIdx := range selected {
		select {
		case <-ctx.Done():
			return nil, &errs.Cancelled{}
		default:
		}
		source := c.Sources[srcIdx]
		tasks[i] = func(ctx context.Context) (*units.Array, error) {
			return source.Eval(ctx, request, nil)
		}
	}

	var outputs []*units.Array
	if c.Sched != nil {
		outputs, err = c.Sched.Run(ctx, tasks)
	} else {
		outputs = make([]*units.Array, len(tasks))
		for i, t := range tasks {
			select {
			case <-ctx.Done():
				return nil, &errs.Cancelled{}
			default:
			}
			outputs[i], err = t(ctx)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	var result *units.Array
	if c.MultiOutput && len(c.OutputNames) > 0 {
		for i, srcIdx := range selected {
			if outputs[i] == nil {
				continue
			}
			mo, ok := c.Sources[srcIdx].(MultiOutputNode)
			if !ok {
				return nil, errs.NewConfigurationError("compositor: source %d is not multi-output but compositor is", srcIdx)
			}
			aligned, err := alignOutputs(outputs[i], mo.OutputNames(), c.OutputNames)
			if err != nil {
				return nil, err
			}
			outputs[i] = aligned
		}
		dims := append(append([]string(nil), request.DimNames()...), "outputs")
		shape := append(append([]int(nil), request.Shape()...), len(c.OutputNames))
		result, err = compositeInto(dims, shape, outputs)
	} else {
		result, err = Composite(request, outputs)
	}
	if err != nil {
		return nil, err
	}
	if out != nil {
		if len(out.Values) != len(result.Values) {
			return nil, errs.NewDimensionMismatch("compositor eval: output buffer has %d cells, result has %d", len(out.Values), len(result.Values))
		}
		copy(out.Values, result.Values)
		return out, nil
	}
	return result, nil
}

// Composite runs the OrderedCompositor algorithm of spec.md §4.8: later
// outputs only fill cells still missing from earlier ones, short-circuiting
// once nothing remains missing.
func Composite(request *coordinates.CoordinateSet, outputs []*units.Array) (*units.Array, error) {
	return compositeInto(request.DimNames(), request.Shape(), outputs)
}

// compositeInto is Composite generalized over an explicit dims/shape pair
// rather than deriving them from request, so the multi-output path in Eval
// can composite over request's shape plus a trailing "outputs" dimension.
func compositeInto(dims []string, shape []int, outputs []*units.Array) (*units.Array, error) {
	result, err := units.Full(dims, shape, math.NaN())
	if err != nil {
		return nil, err
	}
	missing := len(result.Values)
	filled := make([]bool, len(result.Values))

	for _, out := range outputs {
		if out == nil {
			continue
		}
		if len(out.Values) != len(result.Values) {
			return nil, errs.NewDimensionMismatch("composite: source output has %d cells, request has %d", len(out.Values), len(result.Values))
		}
		for i, v := range out.Values {
			if filled[i] || math.IsNaN(v) {
				continue
			}
			result.Values[i] = v
			filled[i] = true
			missing--
		}
		if missing == 0 {
			break
		}
	}
	return result, nil
}

// alignOutputs remaps src's "outputs" dimension, currently ordered per
// srcNames, onto unionNames, filling any name src doesn't contribute with
// NaN. Returns src unchanged when the two orders already match.
func alignOutputs(src *units.Array, srcNames, unionNames []string) (*units.Array, error) {
	idx := src.DimIndex("outputs")
	if idx < 0 {
		return nil, errs.NewDimensionMismatch("compositor: multi-output source result has no %q dimension", "outputs")
	}
	if src.Shape[idx] != len(srcNames) {
		return nil, errs.NewDimensionMismatch("compositor: multi-output source has %d %q slots but advertises %d names", src.Shape[idx], "outputs", len(srcNames))
	}
	if sameOrder(srcNames, unionNames) {
		return src, nil
	}

	outShape := append([]int(nil), src.Shape...)
	outShape[idx] = len(unionNames)
	out, err := units.Full(src.Dims, outShape, math.NaN())
	if err != nil {
		return nil, err
	}

	slotOf := make(map[string]int, len(unionNames))
	for i, name := range unionNames {
		slotOf[name] = i
	}
	copyOutputsDim(src, srcNames, out, idx, slotOf)
	return out, nil
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// copyOutputsDim scatters src's values into dst along the outputs
// dimension at position outputsIdx, mapping each source slot to dst's
// slot per slotOf. Positions along every other dimension carry over
// unchanged. Mirrors units.Array.Transpose's linear-index decode/encode.
func copyOutputsDim(src *units.Array, srcNames []string, dst *units.Array, outputsIdx int, slotOf map[string]int) {
	srcStrides := arrayStrides(src.Shape)
	dstStrides := arrayStrides(dst.Shape)
	coords := make([]int, len(src.Shape))

	for linear := 0; linear < len(src.Values); linear++ {
		rem := linear
		for i, st := range srcStrides {
			coords[i] = rem / st
			rem %= st
		}
		slot, ok := slotOf[srcNames[coords[outputsIdx]]]
		if !ok {
			continue
		}
		dstLinear := 0
		for i, st := range dstStrides {
			if i == outputsIdx {
				dstLinear += slot * st
			} else {
				dstLinear += coords[i] * st
			}
		}
		dst.Values[dstLinear] = src.Values[linear]
	}
}

func arrayStrides(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}
