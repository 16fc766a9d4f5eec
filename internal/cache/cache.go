// Package cache implements the §6 cache collaborator: a fingerprint-keyed
// store holding whichever of a UnitsArray, a CoordinateSet or a
// source-listing a caller last computed for that fingerprint, backed by
// github.com/dgraph-io/ristretto (see DESIGN.md for how this dependency is
// exercised). The Get/Set-keyed-by-request-hash shape is used from
// api/endpoint.go.
package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgraph-io/ristretto"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// Kind tags which alternative of the §6 cache value sum type an Entry
// holds.
type Kind int

const (
	KindUnitsArray Kind = iota
	KindCoordinateSet
	KindSourceListing
)

// Entry is the §6 cache value: "UnitsArray | CoordinateSet |
// source-listing". Exactly the field matching Kind is populated.
type Entry struct {
	Kind           Kind
	Array          *units.Array
	Coordinates    *coordinates.CoordinateSet
	SourceListing  []string
}

// cost estimates an Entry's weight against Cache's MaxCost budget: eight
// bytes per float64 cell for a UnitsArray/CoordinateSet-sized payload, or one
// per string byte for a source listing. Exact byte accounting isn't the point —
// ristretto only needs a consistent relative weight to admit/evict by.
func (e Entry) cost() int64 {
	switch e.Kind {
	case KindUnitsArray:
		if e.Array == nil {
			return 1
		}
		return int64(len(e.Array.Values)*8) + 1
	case KindCoordinateSet:
		if e.Coordinates == nil {
			return 1
		}
		n := int64(0)
		for _, d := range e.Coordinates.Dims {
			for _, a := range d.Axes {
				n += int64(a.Size() * 8)
			}
		}
		return n + 1
	case KindSourceListing:
		n := int64(0)
		for _, s := range e.SourceListing {
			n += int64(len(s))
		}
		return n + 1
	default:
		return 1
	}
}

// Cache wraps a *ristretto.Cache keyed by fingerprint string.
type Cache struct {
	rc *ristretto.Cache
}

// New builds a Cache sized to maxCostMB megabytes, fed from
// internal/config.Config.CacheSizeMB. NumCounters is one counter per 100
// bytes of budget, i.e. one per entry when entries average 100 bytes.
func New(maxCostMB uint64) (*Cache, error) {
	maxCost := int64(maxCostMB) * 1024 * 1024
	if maxCost <= 0 {
		maxCost = 1
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 100, // ~100 bytes/entry assumption, per ristretto's sizing docs
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{rc: rc}, nil
}

// Fingerprint is a stable hash of (node_definition_json, request_
// coordinates_json), per spec.md §6.
func Fingerprint(nodeDefinitionJSON, requestCoordinatesJSON []byte) string {
	h := sha256.New()
	h.Write(nodeDefinitionJSON)
	h.Write([]byte{0}) // separator: avoids (a+b, c) colliding with (a, b+c)
	h.Write(requestCoordinatesJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry stored under fingerprint, or errs.CacheMiss if
// absent. Ristretto is a best-effort cache: an admitted Set is not
// guaranteed to still be present on the next Get, which is exactly what
// "cache miss is non-fatal" (spec.md §7) already expects of callers.
func (c *Cache) Get(fingerprint string) (Entry, error) {
	v, ok := c.rc.Get(fingerprint)
	if !ok {
		return Entry{}, &errs.CacheMiss{Fingerprint: fingerprint}
	}
	entry, ok := v.(Entry)
	if !ok {
		return Entry{}, &errs.CacheCorrupt{Fingerprint: fingerprint, Reason: "stored value is not a cache.Entry"}
	}
	return entry, nil
}

// Put stores entry under fingerprint. overwrite=false skips the write if a
// value is already stored there (ristretto has no atomic compare-and-swap,
// so this check is best-effort against a concurrent writer, acceptable
// since §6 only requires a coarse keyed lock per the writer-exclusive
// disk-cache note, not linearizable CAS semantics). Returns whether the
// value was admitted; ristretto may still refuse an admission that fails
// its internal cost/frequency policy.
func (c *Cache) Put(fingerprint string, entry Entry, overwrite bool) bool {
	if !overwrite {
		if _, ok := c.rc.Get(fingerprint); ok {
			return false
		}
	}
	ok := c.rc.Set(fingerprint, entry, entry.cost())
	c.rc.Wait()
	return ok
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() { c.rc.Close() }
