package graphdef

import (
	"encoding/json"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
)

// wireAxis is the on-disk shape of a single coordinates.Axis. Uniform axes
// with a non-zero step round-trip through Start/Stop/Step (FromUniform);
// irregular and single-value axes carry their Values directly (FromValues). Either form also works for decoding a
// uniform axis, since FromValues re-derives uniformity from the values.
type wireAxis struct {
	Name  string    `json:"name"`
	Dtype string    `json:"dtype"`
	Start *float64  `json:"start,omitempty"`
	Stop  *float64  `json:"stop,omitempty"`
	Step  *float64  `json:"step,omitempty"`
	Values []float64 `json:"values,omitempty"`
}

type wireDimension struct {
	Axes []wireAxis `json:"axes"`
}

type wireCoordinateSet struct {
	Dims []wireDimension `json:"dims"`
}

func dtypeToWire(d coordinates.Dtype) string {
	if d == coordinates.DtypeTime {
		return "time"
	}
	return "f64"
}

func dtypeFromWire(s string) coordinates.Dtype {
	if s == "time" {
		return coordinates.DtypeTime
	}
	return coordinates.DtypeFloat64
}

func axisToWire(a *coordinates.Axis) wireAxis {
	w := wireAxis{Name: string(a.Name()), Dtype: dtypeToWire(a.Dtype())}
	if a.IsUniform() && a.Size() > 0 && a.Step() != 0 {
		start, stop, step := a.Values()[0], a.Values()[a.Size()-1], a.Step()
		w.Start, w.Stop, w.Step = &start, &stop, &step
		return w
	}
	w.Values = a.Values()
	return w
}

func axisFromWire(w wireAxis) (*coordinates.Axis, error) {
	name := coordinates.Name(w.Name)
	dtype := dtypeFromWire(w.Dtype)
	if w.Start != nil && w.Stop != nil && w.Step != nil {
		return coordinates.FromUniform(name, dtype, *w.Start, *w.Stop, *w.Step)
	}
	return coordinates.FromValues(name, dtype, w.Values)
}

// EncodeCoordinates serializes a CoordinateSet for the "request_coordinates
// _json" half of a cache fingerprint (spec.md §6) or for persisting a node's
// native_coordinates alongside its definition.
func EncodeCoordinates(cs *coordinates.CoordinateSet) ([]byte, error) {
	w := wireCoordinateSet{Dims: make([]wireDimension, len(cs.Dims))}
	for i, d := range cs.Dims {
		axes := make([]wireAxis, len(d.Axes))
		for j, a := range d.Axes {
			axes[j] = axisToWire(a)
		}
		w.Dims[i] = wireDimension{Axes: axes}
	}
	return json.Marshal(w)
}

// DecodeCoordinates parses a CoordinateSet previously produced by
// EncodeCoordinates.
func DecodeCoordinates(data []byte) (*coordinates.CoordinateSet, error) {
	var w wireCoordinateSet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	dims := make([]coordinates.Dimension, len(w.Dims))
	for i, wd := range w.Dims {
		if len(wd.Axes) == 0 {
			return nil, errs.NewInvalidCoordinates("decode coordinates: dimension %d has no axes", i)
		}
		axes := make([]*coordinates.Axis, len(wd.Axes))
		for j, wa := range wd.Axes {
			a, err := axisFromWire(wa)
			if err != nil {
				return nil, err
			}
			axes[j] = a
		}
		dims[i] = coordinates.Dimension{Axes: axes}
	}
	return coordinates.New(dims)
}
