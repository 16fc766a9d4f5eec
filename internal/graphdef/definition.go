// Package graphdef implements the §6 "graph serialization" collaborator
// contract: a node definition's on-disk/wire encoding, the matching
// encoding for the request coordinates half of a cache fingerprint, and a
// Builder that turns a decoded Definition back into a live graph.Node tree.
package graphdef

import (
	"encoding/json"

	"github.com/geopods/podflow/internal/graph"
)

// Encode canonically serializes a node definition to JSON. encoding/json
// already sorts map[string]interface{} keys alphabetically when marshaling,
// which is what makes this output stable enough to feed a fingerprint hash
// (internal/cache) without a dedicated canonicalization pass.
func Encode(def *graph.Definition) ([]byte, error) {
	return json.Marshal(def)
}

// Decode parses a definition previously produced by Encode.
func Decode(data []byte) (*graph.Definition, error) {
	var def graph.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}
