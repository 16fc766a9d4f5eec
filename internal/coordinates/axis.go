// Package coordinates implements the one-dimensional coordinate axes and
// the ordered CoordinateSet collections built from them (spec.md §3, §4.1,
// §4.2). This is the coordinate-algebra core of the evaluation kernel.
package coordinates

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/geopods/podflow/internal/errs"
)

// Dtype is the runtime tag on an Axis's values, grounded on the
// "runtime-typed arrays" design note (spec.md §9): a sum type dispatched at
// construction time rather than a generic parameter, since the dtype
// decides calendar-aware arithmetic in AreaBounds.
type Dtype int

const (
	DtypeFloat64 Dtype = iota
	DtypeTime
)

func (d Dtype) String() string {
	if d == DtypeTime {
		return "time"
	}
	return "f64"
}

// Name is one of the fixed axis names spec.md §3 allows.
type Name string

const (
	Lat  Name = "lat"
	Lon  Name = "lon"
	Alt  Name = "alt"
	Time Name = "time"
)

func ValidName(n Name) bool {
	switch n {
	case Lat, Lon, Alt, Time:
		return true
	default:
		return false
	}
}

// uniformEpsilonFactor is the relative tolerance used to classify an axis's
// spacing as uniform: diffs must agree within 1e-9*|step| (spec.md §4.1).
const uniformEpsilonFactor = 1e-9

// Axis is a named 1-D coordinate axis, numeric or time. Values for a time
// axis are stored as nanoseconds since the Unix epoch so that both dtypes
// share the same arithmetic; AreaBounds is where the dtype actually
// branches into calendar-aware addition.
type Axis struct {
	name   Name
	dtype  Dtype
	values []float64 // always materialized; uniform axes keep start/stop/step too

	isUniform    bool
	start        float64
	stop         float64
	step         float64
	isMonotonic  bool
	isDescending bool
	bounds       [2]float64
}

// IndexRange is the set of source-axis indices selected by an Intersect or
// Select call, in the order they appear in the returned Axis. It is kept as
// an explicit index list rather than a [start,stop) pair because unsorted
// axes are selected via a boolean mask, not a contiguous run.
type IndexRange struct {
	Indices []int
}

func contiguousRange(start, stop int) IndexRange {
	if stop <= start {
		return IndexRange{}
	}
	idx := make([]int, stop-start)
	for i := range idx {
		idx[i] = start + i
	}
	return IndexRange{Indices: idx}
}

func (r IndexRange) Len() int { return len(r.Indices) }

// FromUniform constructs a regularly spaced axis. size = floor((stop-start)/step)+1.
// step may be negative (descending axis).
func FromUniform(name Name, dtype Dtype, start, stop, step float64) (*Axis, error) {
	if !ValidName(name) {
		return nil, errs.NewInvalidCoordinates("invalid axis name %q", name)
	}
	if step == 0 {
		return nil, errs.NewInvalidCoordinates("uniform axis %q: step must be non-zero", name)
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	if n < 0 {
		n = 0
	}
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = start + float64(i)*step
	}
	a := &Axis{name: name, dtype: dtype, values: values, isUniform: true, start: start, stop: stop, step: step}
	a.classify()
	return a, nil
}

// FromValues constructs an axis from explicit values, sorted or not.
// Regularity is tested from the values themselves.
func FromValues(name Name, dtype Dtype, values []float64) (*Axis, error) {
	if !ValidName(name) {
		return nil, errs.NewInvalidCoordinates("invalid axis name %q", name)
	}
	cp := make([]float64, len(values))
	copy(cp, values)
	a := &Axis{name: name, dtype: dtype, values: cp}
	a.classify()
	return a, nil
}

func (a *Axis) classify() {
	n := len(a.values)
	a.bounds = computeBounds(a.values)
	if n <= 1 {
		a.isMonotonic = true
		a.isDescending = false
		if !a.isUniform {
			a.isUniform = true
		}
		return
	}

	ascending, descending := true, true
	for i := 1; i < n; i++ {
		if a.values[i] < a.values[i-1] {
			ascending = false
		}
		if a.values[i] > a.values[i-1] {
			descending = false
		}
	}
	a.isMonotonic = ascending || descending
	a.isDescending = descending && !ascending

	if !a.isUniform {
		a.isUniform = a.testUniform()
	}
	if a.isUniform && a.step == 0 {
		a.step = a.values[1] - a.values[0]
		a.start = a.values[0]
		a.stop = a.values[n-1]
	}
}

func (a *Axis) testUniform() bool {
	n := len(a.values)
	if n <= 1 {
		return true
	}
	if !a.isMonotonic {
		return false
	}
	step := a.values[1] - a.values[0]
	if step == 0 {
		return false
	}
	eps := uniformEpsilonFactor * math.Abs(step)
	if a.dtype == DtypeTime {
		// Time diffs compare as integer nanoseconds: no floating tolerance.
		stepNanos := int64(math.Round(step))
		for i := 2; i < n; i++ {
			d := int64(math.Round(a.values[i] - a.values[i-1]))
			if d != stepNanos {
				return false
			}
		}
		return true
	}
	for i := 2; i < n; i++ {
		d := a.values[i] - a.values[i-1]
		if math.Abs(d-step) > eps {
			return false
		}
	}
	return true
}

func computeBounds(values []float64) [2]float64 {
	lo, hi := math.NaN(), math.NaN()
	haveAny := false
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if !haveAny {
			lo, hi = v, v
			haveAny = true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return [2]float64{lo, hi}
}

func (a *Axis) Name() Name        { return a.name }
func (a *Axis) Dtype() Dtype      { return a.dtype }
func (a *Axis) Size() int         { return len(a.values) }
func (a *Axis) Values() []float64 { return a.values }
func (a *Axis) Bounds() [2]float64 { return a.bounds }
func (a *Axis) IsMonotonic() bool { return a.isMonotonic }
func (a *Axis) IsDescending() bool { return a.isDescending }
func (a *Axis) IsUniform() bool   { return a.isUniform }
func (a *Axis) Step() float64     { return a.step }
func (a *Axis) IsEmpty() bool     { return len(a.values) == 0 }

func (a *Axis) At(i int) float64 { return a.values[i] }

// BoundaryUnit is a calendar unit for a time axis's area-bounds offset.
type BoundaryUnit string

const (
	UnitDay    BoundaryUnit = "D"
	UnitHour   BoundaryUnit = "h"
	UnitMinute BoundaryUnit = "m"
	UnitSecond BoundaryUnit = "s"
	UnitMonth  BoundaryUnit = "M"
	UnitYear   BoundaryUnit = "Y"
)

// Boundary describes the widening applied by AreaBounds. Exactly one of
// Symmetric, Asymmetric, PerPoint (numeric axes) or TimeCount/TimeUnit (time
// axes) should be set; the zero value means "no widening".
type Boundary struct {
	Symmetric  *float64
	Asymmetric *[2]float64 // [lower, upper]
	PerPoint   []float64   // per-point symmetric half-width, envelope taken per the open-question decision (per-vertex envelope)
	TimeCount  int
	TimeUnit   BoundaryUnit
}

func addCalendar(epochNanos float64, count int, unit BoundaryUnit) (float64, error) {
	t := time.Unix(0, int64(epochNanos)).UTC()
	switch unit {
	case UnitYear:
		t = t.AddDate(count, 0, 0)
	case UnitMonth:
		t = t.AddDate(0, count, 0)
	case UnitDay:
		t = t.Add(time.Duration(count) * 24 * time.Hour)
	case UnitHour:
		t = t.Add(time.Duration(count) * time.Hour)
	case UnitMinute:
		t = t.Add(time.Duration(count) * time.Minute)
	case UnitSecond:
		t = t.Add(time.Duration(count) * time.Second)
	default:
		return 0, errs.NewConfigurationError("unknown time boundary unit %q", unit)
	}
	return float64(t.UnixNano()), nil
}

// AreaBounds returns [min-δ⁻, max+δ⁺] widened per Boundary. Empty axes
// yield the NaN sentinel bounds.
func (a *Axis) AreaBounds(b Boundary) ([2]float64, error) {
	if a.IsEmpty() {
		return a.bounds, nil
	}
	lo, hi := a.bounds[0], a.bounds[1]

	if a.dtype == DtypeTime {
		if b.TimeUnit == "" {
			return a.bounds, nil
		}
		newLo, err := addCalendar(lo, -b.TimeCount, b.TimeUnit)
		if err != nil {
			return [2]float64{}, err
		}
		newHi, err := addCalendar(hi, b.TimeCount, b.TimeUnit)
		if err != nil {
			return [2]float64{}, err
		}
		return [2]float64{newLo, newHi}, nil
	}

	switch {
	case b.PerPoint != nil:
		if len(b.PerPoint) != len(a.values) {
			return [2]float64{}, errs.NewInvalidCoordinates(
				"area_bounds: per-point offsets length %d does not match axis size %d",
				len(b.PerPoint), len(a.values))
		}
		// Open question (a): per-vertex envelope.
		envLo, envHi := math.Inf(1), math.Inf(-1)
		for i, v := range a.values {
			if math.IsNaN(v) {
				continue
			}
			off := b.PerPoint[i]
			if v-off < envLo {
				envLo = v - off
			}
			if v+off > envHi {
				envHi = v + off
			}
		}
		return [2]float64{envLo, envHi}, nil
	case b.Asymmetric != nil:
		return [2]float64{lo - b.Asymmetric[0], hi + b.Asymmetric[1]}, nil
	case b.Symmetric != nil:
		return [2]float64{lo - *b.Symmetric, hi + *b.Symmetric}, nil
	default:
		return a.bounds, nil
	}
}

// Intersect returns the sub-axis whose values fall within otherBounds, plus
// the indices into the original axis that were kept. When outer is true the
// result is widened by one element on each side when a neighbor exists. A
// value exactly on the boundary is included. Disjoint bounds or an empty
// axis yield an empty axis.
func (a *Axis) Intersect(otherBounds [2]float64, outer bool) (*Axis, IndexRange, error) {
	if a.IsEmpty() || math.IsNaN(otherBounds[0]) || math.IsNaN(otherBounds[1]) {
		return a.empty(), IndexRange{}, nil
	}

	if a.isMonotonic && !a.isDescending {
		return a.intersectSortedAscending(otherBounds, outer)
	}
	if a.isMonotonic && a.isDescending {
		return a.intersectSortedDescending(otherBounds, outer)
	}
	return a.intersectUnsorted(otherBounds, outer)
}

// Select is equivalent to Intersect but always preserves the axis's
// original index ordering (relevant only when Intersect would otherwise
// reorder, which it never does here: both walk the axis in its own
// direction). Kept as a distinct entry point per spec.md §4.1's contract.
func (a *Axis) Select(otherBounds [2]float64, outer bool) (*Axis, IndexRange, error) {
	return a.Intersect(otherBounds, outer)
}

func (a *Axis) empty() *Axis {
	return &Axis{name: a.name, dtype: a.dtype, values: nil, isMonotonic: true, bounds: [2]float64{math.NaN(), math.NaN()}}
}

func (a *Axis) intersectSortedAscending(b [2]float64, outer bool) (*Axis, IndexRange, error) {
	n := len(a.values)
	lo := sort.SearchFloat64s(a.values, b[0])
	for lo > 0 && a.values[lo-1] >= b[0] {
		lo--
	}
	hi := sort.SearchFloat64s(a.values, b[1])
	for hi < n && a.values[hi] <= b[1] {
		hi++
	}
	if lo >= hi {
		return a.empty(), IndexRange{}, nil
	}
	if outer {
		if lo > 0 {
			lo--
		}
		if hi < n {
			hi++
		}
	}
	sub, err := FromValues(a.name, a.dtype, a.values[lo:hi])
	if err != nil {
		return nil, IndexRange{}, err
	}
	return sub, contiguousRange(lo, hi), nil
}

func (a *Axis) intersectSortedDescending(b [2]float64, outer bool) (*Axis, IndexRange, error) {
	n := len(a.values)
	// values[0] is the largest, values[n-1] the smallest.
	lo := 0
	for lo < n && a.values[lo] > b[1] {
		lo++
	}
	hi := lo
	for hi < n && a.values[hi] >= b[0] {
		hi++
	}
	if lo >= hi {
		return a.empty(), IndexRange{}, nil
	}
	if outer {
		if lo > 0 {
			lo--
		}
		if hi < n {
			hi++
		}
	}
	sub, err := FromValues(a.name, a.dtype, a.values[lo:hi])
	if err != nil {
		return nil, IndexRange{}, err
	}
	return sub, contiguousRange(lo, hi), nil
}

func (a *Axis) intersectUnsorted(b [2]float64, outer bool) (*Axis, IndexRange, error) {
	n := len(a.values)
	mask := make([]bool, n)
	any := false
	for i, v := range a.values {
		if v >= b[0] && v <= b[1] {
			mask[i] = true
			any = true
		}
	}
	if outer && any {
		widened := make([]bool, n)
		copy(widened, mask)
		for i := 0; i < n; i++ {
			if mask[i] {
				if i > 0 {
					widened[i-1] = true
				}
				if i < n-1 {
					widened[i+1] = true
				}
			}
		}
		mask = widened
	}
	var idx []int
	var vals []float64
	for i, keep := range mask {
		if keep {
			idx = append(idx, i)
			vals = append(vals, a.values[i])
		}
	}
	if len(idx) == 0 {
		return a.empty(), IndexRange{}, nil
	}
	sub, err := FromValues(a.name, a.dtype, vals)
	if err != nil {
		return nil, IndexRange{}, err
	}
	return sub, IndexRange{Indices: idx}, nil
}

// Slice returns a new Axis restricted to the given index range, without any
// bounds-based selection. Used by CoordinateSet.iter_chunks.
func (a *Axis) Slice(r IndexRange) (*Axis, error) {
	vals := make([]float64, len(r.Indices))
	for i, idx := range r.Indices {
		if idx < 0 || idx >= len(a.values) {
			return nil, fmt.Errorf("axis %q: index %d out of range [0,%d)", a.name, idx, len(a.values))
		}
		vals[i] = a.values[idx]
	}
	return FromValues(a.name, a.dtype, vals)
}

// SliceContiguous is a convenience wrapper over Slice for a [start,stop) run.
func (a *Axis) SliceContiguous(start, stop int) (*Axis, error) {
	return a.Slice(contiguousRange(start, stop))
}
