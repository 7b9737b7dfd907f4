package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

var (
	// ErrNotFound is returned when no data is stored for a site.
	ErrNotFound = errors.New("no data stored for site")
)

// series holds a time-ordered record history for one source/site pair.
type series struct {
	Records []hydro.Record
	Updated time.Time
}

// MemoryStore is a concurrency-safe in-memory hydro.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: source/site, value: history
	data map[string]*series

	// retention configuration
	maxHistory int           // max number of records per site
	maxAge     time.Duration // optional max age of a record's timestamp

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*series),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// IsNotFound reports whether err means nothing is stored.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func key(source, site string) string {
	return source + "/" + site
}

// Write stores the table according to mode and enforces retention.
func (s *MemoryStore) Write(ctx context.Context, t *hydro.Table, mode hydro.WriteMode) error {
	k := key(t.Source, t.Site)

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[k]
	switch {
	case !ok || len(history.Records) == 0:
		history = &series{}
		s.data[k] = history
		history.Records = append([]hydro.Record(nil), t.Records...)
	case mode == hydro.WriteOverwrite:
		history.Records = append([]hydro.Record(nil), t.Records...)
	case mode == hydro.WriteAppend:
		history.Records = hydro.MergeRecords(history.Records, t.Records)
	default:
		return &hydro.ErrExists{Target: k}
	}
	history.Updated = s.now().UTC()

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Records) > s.maxHistory {
		over := len(history.Records) - s.maxHistory
		history.Records = history.Records[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Records); i++ {
			if !history.Records[i].Timestamp.Before(cutoff) {
				break
			}
		}
		history.Records = history.Records[i:]
	}
	return nil
}

// GetLatest returns the full stored table for a site.
func (s *MemoryStore) GetLatest(source, site string) (*hydro.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key(source, site)]
	if !ok || len(history.Records) == 0 {
		return nil, ErrNotFound
	}
	return &hydro.Table{
		Source:  source,
		Site:    site,
		Records: append([]hydro.Record(nil), history.Records...),
	}, nil
}

// GetRange returns the stored records between from and to (inclusive).
func (s *MemoryStore) GetRange(source, site string, from, to time.Time) ([]hydro.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key(source, site)]
	if !ok || len(history.Records) == 0 {
		return nil, ErrNotFound
	}

	result := hydro.Window(history.Records, from, to)
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

var _ hydro.Store = (*MemoryStore)(nil)
