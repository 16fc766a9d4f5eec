// Package sources implements the data-source adapter interface of
// spec.md §6 and its concrete backends.
package sources

import (
	"context"

	"github.com/geopods/podflow/internal/coordinates"
)

// Adapter is the collaborator interface consumed by internal/graph's
// DataSource node (spec.md §4.5, §6). Open/Close are idempotent and may be
// deferred to the first Read call.
type Adapter interface {
	NativeCoordinates(ctx context.Context) (*coordinates.CoordinateSet, error)
	Open(ctx context.Context) error
	Close() error
	// Read returns a dense row-major float64 buffer for the given index
	// ranges, one per native dimension, in native dimension order.
	Read(ctx context.Context, ranges []coordinates.IndexRange) ([]float64, error)
	// NoDataValues lists sentinel values remapped to NaN before any
	// interpolation runs.
	NoDataValues() []float64
}
