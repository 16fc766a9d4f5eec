package coordinates

import (
	"strings"

	"github.com/geopods/podflow/internal/errs"
)

// Dimension is one entry of a CoordinateSet: a single Axis for an unstacked
// dimension, or several same-length Axes sharing one positional index for a
// stacked dimension (e.g. along-track lat/lon pairs), per spec.md §3.
type Dimension struct {
	Axes []*Axis
}

// Name is the dimension's composite name: the axis name for an unstacked
// dimension, or its axis names joined with "_" when stacked.
func (d Dimension) Name() string {
	names := make([]string, len(d.Axes))
	for i, a := range d.Axes {
		names[i] = string(a.Name())
	}
	return strings.Join(names, "_")
}

func (d Dimension) Size() int {
	if len(d.Axes) == 0 {
		return 0
	}
	return d.Axes[0].Size()
}

func (d Dimension) IsStacked() bool { return len(d.Axes) > 1 }

// CoordinateSet is an ordered collection of Dimensions whose names are
// unique. Iteration order over Dims is the grid's axis order; Shape()[i]
// corresponds to Dims[i].
type CoordinateSet struct {
	Dims []Dimension
}

// New validates and constructs a CoordinateSet. A stacked dimension's axes
// must all share the same size; dimension names must be unique.
func New(dims []Dimension) (*CoordinateSet, error) {
	seen := make(map[string]bool, len(dims))
	for _, d := range dims {
		if len(d.Axes) == 0 {
			return nil, errs.NewInvalidCoordinates("coordinate set: dimension with no axes")
		}
		n := d.Axes[0].Size()
		for _, a := range d.Axes[1:] {
			if a.Size() != n {
				return nil, errs.NewInvalidCoordinates(
					"coordinate set: stacked dimension %q has mismatched axis lengths", d.Name())
			}
		}
		name := d.Name()
		if seen[name] {
			return nil, errs.NewInvalidCoordinates("coordinate set: duplicate dimension name %q", name)
		}
		seen[name] = true
	}
	return &CoordinateSet{Dims: append([]Dimension(nil), dims...)}, nil
}

// Shape returns the grid shape in Dims order.
func (c *CoordinateSet) Shape() []int {
	shape := make([]int, len(c.Dims))
	for i, d := range c.Dims {
		shape[i] = d.Size()
	}
	return shape
}

// DimNames returns the composite names in order.
func (c *CoordinateSet) DimNames() []string {
	names := make([]string, len(c.Dims))
	for i, d := range c.Dims {
		names[i] = d.Name()
	}
	return names
}

// Dim returns the Dimension named name, or false if absent.
func (c *CoordinateSet) Dim(name string) (Dimension, bool) {
	for _, d := range c.Dims {
		if d.Name() == name {
			return d, true
		}
	}
	return Dimension{}, false
}

// indexOf returns the position of the dimension named name, or -1.
func (c *CoordinateSet) indexOf(name string) int {
	for i, d := range c.Dims {
		if d.Name() == name {
			return i
		}
	}
	return -1
}

// Stack combines several currently-unstacked single-axis dimensions named
// in names into one stacked dimension, preserving their relative axis
// order. All must have equal size.
func (c *CoordinateSet) Stack(names []string) (*CoordinateSet, error) {
	if len(names) < 2 {
		return nil, errs.NewInvalidCoordinates("stack: need at least 2 dimensions, got %d", len(names))
	}
	var axes []*Axis
	var size int
	idxSet := make(map[int]bool, len(names))
	for i, n := range names {
		idx := c.indexOf(n)
		if idx < 0 {
			return nil, errs.NewInvalidCoordinates("stack: dimension %q not found", n)
		}
		d := c.Dims[idx]
		if d.IsStacked() {
			return nil, errs.NewInvalidCoordinates("stack: dimension %q is already stacked", n)
		}
		if i == 0 {
			size = d.Size()
		} else if d.Size() != size {
			return nil, errs.NewInvalidCoordinates("stack: dimension %q size %d does not match %d", n, d.Size(), size)
		}
		axes = append(axes, d.Axes[0])
		idxSet[idx] = true
	}

	var newDims []Dimension
	inserted := false
	for i, d := range c.Dims {
		if idxSet[i] {
			if !inserted {
				newDims = append(newDims, Dimension{Axes: axes})
				inserted = true
			}
			continue
		}
		newDims = append(newDims, d)
	}
	return New(newDims)
}

// Unstack splits the stacked dimension named name back into single-axis
// dimensions, in their original relative order.
func (c *CoordinateSet) Unstack(name string) (*CoordinateSet, error) {
	idx := c.indexOf(name)
	if idx < 0 {
		return nil, errs.NewInvalidCoordinates("unstack: dimension %q not found", name)
	}
	d := c.Dims[idx]
	if !d.IsStacked() {
		return nil, errs.NewInvalidCoordinates("unstack: dimension %q is not stacked", name)
	}
	var newDims []Dimension
	newDims = append(newDims, c.Dims[:idx]...)
	for _, a := range d.Axes {
		newDims = append(newDims, Dimension{Axes: []*Axis{a}})
	}
	newDims = append(newDims, c.Dims[idx+1:]...)
	return New(newDims)
}

// DimSelection is the result of intersecting one dimension: the narrowed
// Dimension and the index range kept from each of its axes (stacked axes
// share one range, since they move together).
type DimSelection struct {
	Name  string
	Dim   Dimension
	Range IndexRange
}

// Intersect narrows each of c's dimensions to the bounds carried in
// bounds (keyed by dimension name; unmentioned dimensions pass through
// unnarrowed). outer widens each intersected dimension by one element on
// each side when a neighbor exists, per Axis.Intersect.
func (c *CoordinateSet) Intersect(bounds map[string][2]float64, outer bool) (*CoordinateSet, []DimSelection, error) {
	var newDims []Dimension
	var selections []DimSelection
	for _, d := range c.Dims {
		name := d.Name()
		b, ok := bounds[name]
		if !ok {
			newDims = append(newDims, d)
			continue
		}
		// A stacked dimension intersects on its first axis and applies the
		// resulting index range to every axis in the stack together.
		sub0, r, err := d.Axes[0].Intersect(b, outer)
		if err != nil {
			return nil, nil, err
		}
		axes := make([]*Axis, len(d.Axes))
		axes[0] = sub0
		for i := 1; i < len(d.Axes); i++ {
			sliced, err := d.Axes[i].Slice(r)
			if err != nil {
				return nil, nil, err
			}
			axes[i] = sliced
		}
		nd := Dimension{Axes: axes}
		newDims = append(newDims, nd)
		selections = append(selections, DimSelection{Name: name, Dim: nd, Range: r})
	}
	out, err := New(newDims)
	if err != nil {
		return nil, nil, err
	}
	return out, selections, nil
}

// Merge concatenates c with other, which must not share any dimension
// names with c.
func (c *CoordinateSet) Merge(other *CoordinateSet) (*CoordinateSet, error) {
	seen := make(map[string]bool, len(c.Dims))
	for _, d := range c.Dims {
		seen[d.Name()] = true
	}
	for _, d := range other.Dims {
		if seen[d.Name()] {
			return nil, errs.NewInvalidCoordinates("merge: duplicate dimension %q", d.Name())
		}
	}
	merged := append(append([]Dimension(nil), c.Dims...), other.Dims...)
	return New(merged)
}

// ChunkShape computes a per-dimension tile shape whose cell count stays
// within budget: keptDims (the dims a Reducer streams across, kept whole in
// the result) are assigned their full size, then reducedDims are shrunk in
// order to fit whatever budget remains, per spec.md §4.2/§4.9's policy:
//
//	s = Π(size of kept dims)
//	for each reduced dim d in order:
//	    n = budget // s
//	    chunk[d] = 1 if n == 0, else min(n, size(d))
//	    s *= chunk[d]
//
// Dims named in neither list are left at full size.
func (c *CoordinateSet) ChunkShape(keptDims, reducedDims []string, budget int) map[string]int {
	shape := make(map[string]int, len(c.Dims))
	for _, d := range c.Dims {
		shape[d.Name()] = d.Size()
	}

	s := 1
	for _, name := range keptDims {
		s *= max1(shape[name])
	}
	if budget < 1 {
		budget = 1
	}

	for _, name := range reducedDims {
		full, ok := shape[name]
		if !ok {
			continue
		}
		n := budget / max1(s)
		chunk := full
		switch {
		case n == 0:
			chunk = 1
		case n < full:
			chunk = n
		}
		shape[name] = chunk
		s *= chunk
	}
	return shape
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ChunkIterator walks a CoordinateSet in row-major tiles of chunkShape,
// grounded on a hyperslab chunk-coordinator: a counter over tile indices
// per dimension, advanced least-significant-dimension-first.
type ChunkIterator struct {
	set       *CoordinateSet
	chunkDims []int // tile size per dimension, aligned with set.Dims
	tileCount []int // number of tiles per dimension
	cursor    []int
	done      bool
}

// NewChunkIterator builds an iterator over set using chunkShape (dimension
// name -> tile size; omitted dimensions default to full size).
func NewChunkIterator(set *CoordinateSet, chunkShape map[string]int) *ChunkIterator {
	n := len(set.Dims)
	chunkDims := make([]int, n)
	tileCount := make([]int, n)
	for i, d := range set.Dims {
		size := d.Size()
		cs, ok := chunkShape[d.Name()]
		if !ok || cs <= 0 || cs > size {
			cs = size
		}
		chunkDims[i] = cs
		if cs == 0 {
			tileCount[i] = 0
		} else {
			tileCount[i] = (size + cs - 1) / cs
		}
	}
	it := &ChunkIterator{set: set, chunkDims: chunkDims, tileCount: tileCount, cursor: make([]int, n)}
	for _, tc := range tileCount {
		if tc == 0 {
			it.done = true
		}
	}
	return it
}

// Next returns the next tile as a sliced CoordinateSet, or false when
// exhausted.
func (it *ChunkIterator) Next() (*CoordinateSet, bool, error) {
	if it.done {
		return nil, false, nil
	}

	newDims := make([]Dimension, len(it.set.Dims))
	for i, d := range it.set.Dims {
		size := d.Size()
		cs := it.chunkDims[i]
		start := it.cursor[i] * cs
		stop := start + cs
		if stop > size {
			stop = size
		}
		r := contiguousRange(start, stop)
		axes := make([]*Axis, len(d.Axes))
		for j, a := range d.Axes {
			sliced, err := a.Slice(r)
			if err != nil {
				return nil, false, err
			}
			axes[j] = sliced
		}
		newDims[i] = Dimension{Axes: axes}
	}
	tile, err := New(newDims)
	if err != nil {
		return nil, false, err
	}

	it.advance()
	return tile, true, nil
}

func (it *ChunkIterator) advance() {
	for i := len(it.cursor) - 1; i >= 0; i-- {
		it.cursor[i]++
		if it.cursor[i] < it.tileCount[i] {
			return
		}
		it.cursor[i] = 0
	}
	it.done = true
}

// IterChunks builds a ChunkIterator over c, per spec.md §4.2's
// iter_chunks operation.
func (c *CoordinateSet) IterChunks(chunkShape map[string]int) *ChunkIterator {
	return NewChunkIterator(c, chunkShape)
}
