package graphdef

import (
	"encoding/json"

	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/sources"
)

// BlobAdapterFactory builds the "blob" AdapterFactory a Builder registers
// for data_source definitions backed by Azure Blob Storage (§1/§6's
// out-of-scope external collaborator), given a live ConnectionMaker built
// from the deployment's trusted storage accounts. Mirrors buildMemAdapter's
// attrs shape, substituting attrs.resource (an "account/container/blob"
// path the ConnectionMaker resolves) for the mem adapter's inline values.
func BlobAdapterFactory(connMaker sources.ConnectionMaker) AdapterFactory {
	return func(attrs map[string]interface{}) (sources.Adapter, error) {
		resource := asString(attrs["resource"], "")
		if resource == "" {
			return nil, errs.NewConfigurationError("graphdef: blob adapter requires attrs.resource")
		}

		coordsRaw, ok := attrs["coordinates"]
		if !ok {
			return nil, errs.NewConfigurationError("graphdef: blob adapter requires attrs.coordinates")
		}
		coordsJSON, err := json.Marshal(coordsRaw)
		if err != nil {
			return nil, err
		}
		coords, err := DecodeCoordinates(coordsJSON)
		if err != nil {
			return nil, err
		}

		conn, err := connMaker(resource)
		if err != nil {
			return nil, err
		}

		return sources.NewBlobSource(conn, coords, asFloatSlice(attrs["no_data"])), nil
	}
}
