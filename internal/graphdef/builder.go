package graphdef

import (
	"encoding/json"
	"sort"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/graph"
	"github.com/geopods/podflow/internal/scheduler"
	"github.com/geopods/podflow/internal/sources"
)

// AdapterFactory builds a sources.Adapter from a "data_source" definition's
// attrs, for adapter kinds the graph itself cannot construct from JSON alone
// (a blob adapter needs a live sources.ConnectionMaker, supplied by the
// caller out of band — spec.md §1/§6 treats this as an external
// collaborator). The builtin "mem" adapter kind needs no factory: its whole
// state (coordinates + values) already round-trips through JSON.
type AdapterFactory func(attrs map[string]interface{}) (sources.Adapter, error)

// Builder reconstructs a live graph.Node tree from a decoded Definition
// (spec.md §6: "the core defines the shape; the on-disk encoding is a
// collaborator concern" — this is that collaborator).
type Builder struct {
	Adapters           map[string]AdapterFactory
	Sched              *scheduler.Scheduler
	DefaultChunkBudget int
}

func NewBuilder(sched *scheduler.Scheduler, defaultChunkBudget int) *Builder {
	return &Builder{Adapters: make(map[string]AdapterFactory), Sched: sched, DefaultChunkBudget: defaultChunkBudget}
}

// RegisterAdapter installs the factory used for "data_source" definitions
// whose attrs["adapter"] equals kind.
func (b *Builder) RegisterAdapter(kind string, factory AdapterFactory) {
	b.Adapters[kind] = factory
}

// Build recursively constructs a graph.Node from def.
func (b *Builder) Build(def *graph.Definition) (graph.Node, error) {
	if def == nil {
		return nil, errs.NewConfigurationError("graphdef: nil definition")
	}
	switch def.Kind {
	case "data_source":
		return b.buildDataSource(def)
	case "compositor":
		return b.buildCompositor(def)
	case "reducer":
		return b.buildReducer(def)
	default:
		return nil, errs.NewConfigurationError("graphdef: unknown node kind %q", def.Kind)
	}
}

func (b *Builder) buildDataSource(def *graph.Definition) (graph.Node, error) {
	kind := asString(def.Attrs["adapter"], "mem")

	var adapter sources.Adapter
	var err error
	if kind == "mem" {
		adapter, err = buildMemAdapter(def.Attrs)
	} else {
		factory, ok := b.Adapters[kind]
		if !ok {
			return nil, errs.NewConfigurationError("graphdef: no adapter factory registered for kind %q", kind)
		}
		adapter, err = factory(def.Attrs)
	}
	if err != nil {
		return nil, err
	}

	return &graph.DataSource{
		Adapter:          adapter,
		Method:           asString(def.Attrs["method"], "nearest"),
		SpatialTolerance: asFloat(def.Attrs["spatial_tolerance"], 0),
		TimeTolerance:    asFloat(def.Attrs["time_tolerance"], 0),
		AltTolerance:     asFloat(def.Attrs["alt_tolerance"], 0),
		Outputs:          asStringSlice(def.Attrs["output_names"]),
	}, nil
}

func buildMemAdapter(attrs map[string]interface{}) (sources.Adapter, error) {
	coordsRaw, ok := attrs["coordinates"]
	if !ok {
		return nil, errs.NewConfigurationError("graphdef: mem adapter requires attrs.coordinates")
	}
	coordsJSON, err := json.Marshal(coordsRaw)
	if err != nil {
		return nil, err
	}
	coords, err := DecodeCoordinates(coordsJSON)
	if err != nil {
		return nil, err
	}
	values := asFloatSlice(attrs["values"])
	src := sources.NewMemSource(coords, values)
	src.NoData = asFloatSlice(attrs["no_data"])
	return src, nil
}

func (b *Builder) buildCompositor(def *graph.Definition) (graph.Node, error) {
	order := asStringSlice(def.Attrs["order"])
	if len(order) == 0 {
		for name := range def.Inputs {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	nodeSources := make([]graph.Node, 0, len(order))
	for _, name := range order {
		inputDef, ok := def.Inputs[name]
		if !ok {
			return nil, errs.NewConfigurationError("graphdef: compositor order names input %q, which has no definition", name)
		}
		child, err := b.Build(inputDef)
		if err != nil {
			return nil, err
		}
		nodeSources = append(nodeSources, child)
	}

	var sourceCoords *coordinates.CoordinateSet
	if raw, ok := def.Attrs["source_coordinates"]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		sourceCoords, err = DecodeCoordinates(data)
		if err != nil {
			return nil, err
		}
	}

	multiOutput := asBool(def.Attrs["multi_output"], false)
	return graph.NewCompositor(nodeSources, multiOutput, sourceCoords, b.Sched)
}

func (b *Builder) buildReducer(def *graph.Definition) (graph.Node, error) {
	inputDef, ok := def.Inputs["input"]
	if !ok {
		return nil, errs.NewConfigurationError("graphdef: reducer requires input port %q", "input")
	}
	input, err := b.Build(inputDef)
	if err != nil {
		return nil, err
	}

	budget := int(asFloat(def.Attrs["chunk_budget"], float64(b.DefaultChunkBudget)))
	return graph.NewReducer(input, asStringSlice(def.Attrs["reduce_dims"]), asString(def.Attrs["method"], ""), budget)
}

func asString(v interface{}, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

func asBool(v interface{}, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func asFloat(v interface{}, fallback float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return fallback
}

func asFloatSlice(v interface{}) []float64 {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, len(items))
	for i, it := range items {
		out[i], _ = it.(float64)
	}
	return out
}

func asStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i], _ = it.(string)
	}
	return out
}
