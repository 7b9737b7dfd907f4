package hydro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultLookback is the window a watch job fetches when none is configured.
const DefaultLookback = 7 * 24 * time.Hour

// WatchJob is one recurring fetch run by the scheduler.
type WatchJob struct {
	Source    string        `yaml:"source" json:"source" validate:"required"`
	Sites     []string      `yaml:"sites" json:"sites" validate:"required,min=1,dive,required"`
	Variable  string        `yaml:"variable" json:"variable" validate:"required"`
	Frequency string        `yaml:"frequency" json:"frequency"`
	Statistic string        `yaml:"statistic" json:"statistic"`
	Lookback  time.Duration `yaml:"lookback" json:"lookback"`
}

// Key identifies the job in logs.
func (j WatchJob) Key() string {
	return fmt.Sprintf("%s:%s:%s", j.Source, j.Variable, j.Frequency)
}

// SourceInfo describes a registered source.
type SourceInfo struct {
	Name       string `json:"name"`
	SiteColumn string `json:"siteColumn"`
}

// Service fronts one Client per source and keeps the latest fetched
// tables in a Store.
type Service struct {
	clients map[string]*Client
	store   Store
	archive Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new Service. Clients are keyed by their adapter name.
func NewService(store Store, clients []*Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		clients: make(map[string]*Client, len(clients)),
		store:   store,
		logger:  logger.With("component", "service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, c := range clients {
		s.clients[c.Adapter().Name()] = c
	}
	return s
}

// SetArchive adds a second sink that every stored table is also appended to.
func (s *Service) SetArchive(sink Sink) {
	s.archive = sink
}

// Sources lists the registered sources sorted by name.
func (s *Service) Sources() []SourceInfo {
	out := make([]SourceInfo, 0, len(s.clients))
	for name, c := range s.clients {
		out = append(out, SourceInfo{Name: name, SiteColumn: c.Adapter().SiteColumn()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Client returns the client registered for source.
func (s *Service) Client(source string) (*Client, error) {
	c, ok := s.clients[source]
	if !ok {
		valid := make([]string, 0, len(s.clients))
		for name := range s.clients {
			valid = append(valid, name)
		}
		sort.Strings(valid)
		return nil, &ValidationError{Field: "source", Value: source, Valid: valid}
	}
	return c, nil
}

// Fetch runs a live request against one source without storing anything.
func (s *Service) Fetch(ctx context.Context, source string, req DataRequest) (*Results, error) {
	c, err := s.Client(source)
	if err != nil {
		return nil, err
	}
	req.Write = false
	return c.GetData(ctx, req)
}

// FetchAndStore fetches the job's window and appends every table that came
// back to the store. Sites without data leave the stored history untouched.
func (s *Service) FetchAndStore(ctx context.Context, job WatchJob) error {
	lookback := job.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	end := s.now()
	req := DataRequest{
		Sites: job.Sites,
		Query: Query{
			Variables: []string{job.Variable},
			Frequency: job.Frequency,
			Statistic: job.Statistic,
			Start:     end.Add(-lookback),
			End:       end,
		},
	}

	res, err := s.Fetch(ctx, job.Source, req)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Key(), err)
	}

	var errs []error
	stored := 0
	for _, site := range res.Sites {
		r := res.BySite[site]
		if r.Status != StatusOK {
			continue
		}
		if err := s.store.Write(ctx, r.Table, WriteAppend); err != nil {
			errs = append(errs, fmt.Errorf("store %s/%s: %w", job.Source, site, err))
			continue
		}
		if s.archive != nil {
			if err := s.archive.Write(ctx, r.Table, WriteAppend); err != nil {
				errs = append(errs, fmt.Errorf("archive %s/%s: %w", job.Source, site, err))
			}
		}
		stored++
	}

	s.logger.Info("watch job finished",
		"job", job.Key(),
		"run_id", res.RunID,
		"stored", stored,
		"failed", len(res.Failed()),
	)
	return errors.Join(errs...)
}

// RunJobs runs every job concurrently. A failing job is logged and does not
// affect the others.
func (s *Service) RunJobs(ctx context.Context, jobs []WatchJob) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job WatchJob) {
			defer wg.Done()
			if err := s.FetchAndStore(ctx, job); err != nil {
				s.logger.Error("watch job failed", "job", job.Key(), "error", err)
			}
		}(job)
	}
	wg.Wait()
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(source, site string) (*Table, error) {
	return s.store.GetLatest(source, site)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(source, site string, from, to time.Time) ([]Record, error) {
	return s.store.GetRange(source, site, from, to)
}
