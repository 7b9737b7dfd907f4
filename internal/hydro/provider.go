package hydro

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MetadataQuery narrows a metadata download. Fields a source does not
// understand are ignored.
type MetadataQuery struct {
	Variable   string
	StateCodes []string // NWIS only
	Entity     string   // Eaufrance: "stations" (default) or "sites"
}

// Adapter abstracts one upstream hydrological service (NWIS, Eaufrance, BOM).
type Adapter interface {
	Name() string
	// SiteColumn is the metadata column holding the source-native site id.
	SiteColumn() string
	NormalizeArgs(q Query) (Args, error)
	GetMetadata(ctx context.Context, q MetadataQuery) (*Metadata, error)
	// GetDataSingleSite returns (nil, nil) when the site has no data for
	// the requested range. meta may be nil and must not be modified.
	GetDataSingleSite(ctx context.Context, site string, args Args, meta *Metadata) (*Table, error)
}

// WriteMode decides what a Sink does when the site already has stored data.
type WriteMode int

const (
	WriteReject WriteMode = iota
	WriteOverwrite
	WriteAppend
)

func (m WriteMode) String() string {
	switch m {
	case WriteOverwrite:
		return "overwrite"
	case WriteAppend:
		return "append"
	default:
		return "reject"
	}
}

// ParseWriteMode accepts "overwrite", "append" or "reject".
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return WriteReject, nil
	case "overwrite":
		return WriteOverwrite, nil
	case "append":
		return WriteAppend, nil
	}
	return WriteReject, &ValidationError{Field: "mode", Value: s, Valid: []string{"append", "overwrite", "reject"}}
}

// ErrExists is returned by a Sink in WriteReject mode when data is already stored.
type ErrExists struct {
	Target string
}

func (e *ErrExists) Error() string {
	return fmt.Sprintf("%s already exists; use overwrite or append", e.Target)
}

// Sink persists one site's table.
type Sink interface {
	Write(ctx context.Context, table *Table, mode WriteMode) error
}

// Store is the contract for the scheduler's result store.
type Store interface {
	Sink
	GetLatest(source, site string) (*Table, error)
	GetRange(source, site string, from, to time.Time) ([]Record, error)
}
