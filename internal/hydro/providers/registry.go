package providers

import (
	"strings"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// Names lists the adapters New can build.
func Names() []string {
	return []string{bomName, eaufranceName, nwisName}
}

// New builds the adapter registered under name. "usgs" is accepted for NWIS.
func New(name string, deps Deps) (hydro.Adapter, error) {
	return NewAt(name, "", deps)
}

// NewAt is New against a non-default upstream base URL, such as a mirror.
func NewAt(name, baseURL string, deps Deps) (hydro.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case nwisName, "usgs":
		return NewNWISProvider(deps, baseURL), nil
	case eaufranceName:
		return NewEaufranceProvider(deps, baseURL), nil
	case bomName:
		return NewBOMProvider(deps, baseURL), nil
	}
	return nil, &hydro.ValidationError{Field: "source", Value: name, Valid: Names()}
}

var (
	_ hydro.Adapter = (*NWISProvider)(nil)
	_ hydro.Adapter = (*EaufranceProvider)(nil)
	_ hydro.Adapter = (*BOMProvider)(nil)
)
