// Package graph implements the Node contract (spec.md §4.4) and its two
// families: DataSource (§4.5) and Compositor/Reducer (§4.8, §4.9).
package graph

import (
	"context"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/units"
)

// Node is the abstract evaluation contract every graph element satisfies.
// Implementations must be deterministic given their inputs and the
// request. out, when non-nil, receives the result in place (callers may
// still use the returned value; both point at the same data).
type Node interface {
	Eval(ctx context.Context, request *coordinates.CoordinateSet, out *units.Array) (*units.Array, error)
	FindCoordinates(ctx context.Context) ([]*coordinates.CoordinateSet, error)
}

// MultiOutputNode is implemented by nodes that contribute an extra
// "outputs" dimension alongside the request's own dimensions, one slot per
// named output (spec.md §4.8). Compositor type-asserts for this to reject
// mixing standard and multi-output sources and to compute the union of
// output names across sources, preserving first-seen order.
type MultiOutputNode interface {
	Node
	OutputNames() []string
}

// Definition is the serializable shape of a node (spec.md §6): kind, a
// bag of attributes, and named input ports holding nested definitions.
type Definition struct {
	Kind   string                 `json:"kind"`
	Attrs  map[string]interface{} `json:"attrs,omitempty"`
	Inputs map[string]*Definition `json:"inputs,omitempty"`
}
