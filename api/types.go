package api

import (
	"encoding/json"

	"github.com/geopods/podflow/internal/graph"
)

// EvalRequest is the POST /eval body: a node graph definition (spec.md §6)
// plus the request coordinates (§4.2's CoordinateSet) to evaluate it over.
// Coordinates is kept as raw JSON so it can be canonically re-marshaled for
// the cache fingerprint without a lossy intermediate decode/re-encode.
type EvalRequest struct {
	Graph       *graph.Definition `json:"graph" binding:"required"`
	Coordinates json.RawMessage   `json:"coordinates" binding:"required"`
}

// GraphRequest is the POST /graph body: a node graph definition to
// validate (and report the coordinates it would advertise) without
// evaluating it over any request coordinates.
type GraphRequest struct {
	Graph *graph.Definition `json:"graph" binding:"required"`
}

// GraphResponse reports what a validated graph definition advertises,
// mirroring graph.Node.FindCoordinates (spec.md §4.4).
type GraphResponse struct {
	Coordinates []json.RawMessage `json:"coordinates"`
}
