package hydro

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Client drives one Adapter over a list of sites. It owns the adapter's
// metadata table and the optional sink results are written to.
type Client struct {
	adapter  Adapter
	metadata *Metadata
	sink     Sink
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithMetadata uses an in-memory metadata table.
func WithMetadata(m *Metadata) Option {
	return func(c *Client) error {
		if m == nil {
			return nil
		}
		cp := *m
		cp.Columns = append([]string(nil), m.Columns...)
		cp.Rows = append([]map[string]string(nil), m.Rows...)
		c.metadata = &cp
		return nil
	}
}

// WithMetadataFile loads the metadata table from a CSV file.
func WithMetadataFile(path string) Option {
	return func(c *Client) error {
		if path == "" {
			return nil
		}
		m, err := LoadMetadataFile(path)
		if err != nil {
			return fmt.Errorf("provided metadata could not be read as a table: %w", err)
		}
		c.metadata = m
		return nil
	}
}

func WithSink(s Sink) Option {
	return func(c *Client) error {
		c.sink = s
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// NewClient creates a Client. Supplied metadata must carry the adapter's
// site column.
func NewClient(adapter Adapter, opts ...Option) (*Client, error) {
	c := &Client{
		adapter: adapter,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("source", adapter.Name())
	if c.metadata != nil && !c.metadata.HasColumn(adapter.SiteColumn()) {
		return nil, &ValidationError{
			Field: "metadata",
			Value: adapter.SiteColumn(),
			Msg:   "metadata is missing required column " + adapter.SiteColumn(),
		}
	}
	return c, nil
}

func (c *Client) Adapter() Adapter { return c.adapter }

// Metadata returns the current metadata table, or nil if none was loaded.
func (c *Client) Metadata() *Metadata { return c.metadata }

// LoadMetadata downloads metadata from the adapter and replaces the owned table.
// An empty upstream result leaves an empty table, not an error.
func (c *Client) LoadMetadata(ctx context.Context, q MetadataQuery) error {
	m, err := c.adapter.GetMetadata(ctx, q)
	if err != nil {
		return fmt.Errorf("%s: get metadata: %w", c.adapter.Name(), err)
	}
	if m == nil {
		m = NewMetadata(c.adapter.SiteColumn())
	}
	c.metadata = m
	c.logger.Info("metadata loaded", "rows", m.Len())
	return nil
}

// GetSites resolves the ordered, de-duplicated site list.
func (c *Client) GetSites(explicit []string, fromMetadata bool) ([]string, error) {
	return ResolveSites(explicit, c.metadata, c.adapter.SiteColumn(), fromMetadata)
}

// DataRequest is one Client.GetData run.
type DataRequest struct {
	Sites             []string
	SitesFromMetadata bool
	Query             Query

	// Write sends every successful table to the Client's sink.
	Write bool
	Mode  WriteMode

	// StopOnExhaustedRetries halts the remaining sites once a site fails
	// with a transient error that survived every retry. Otherwise each
	// site's failure is recorded and the run continues.
	StopOnExhaustedRetries bool

	// Workers > 1 fetches sites concurrently. Outbound calls still share
	// the adapter's rate limiter.
	Workers int

	Progress func(done, total int)
}

// GetData normalizes the query once and fetches every resolved site.
// The returned Results are non-nil whenever sites were resolved, even
// when a halting error is also returned.
func (c *Client) GetData(ctx context.Context, req DataRequest) (*Results, error) {
	sites, err := c.GetSites(req.Sites, req.SitesFromMetadata)
	if err != nil {
		return nil, err
	}
	args, err := c.adapter.NormalizeArgs(req.Query)
	if err != nil {
		return nil, err
	}
	if req.Write && c.sink == nil {
		return nil, &ValidationError{Field: "write", Msg: "write requested but no output sink is configured"}
	}

	results := &Results{
		RunID:  uuid.NewString(),
		Sites:  sites,
		BySite: make(map[string]SiteResult, len(sites)),
	}
	logger := c.logger.With("run_id", results.RunID)
	logger.Info("fetching data", "sites", len(sites), "variables", args.Variables)

	workers := req.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(sites) {
		workers = len(sites)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		done    int
		haltErr error
	)
	sem := make(chan struct{}, workers)

	for _, site := range sites {
		if runCtx.Err() != nil {
			break
		}
		sem <- struct{}{}
		if runCtx.Err() != nil {
			<-sem
			break
		}

		wg.Add(1)
		go func(site string) {
			defer wg.Done()
			defer func() { <-sem }()

			res := c.fetchSite(runCtx, logger, site, args, req)

			mu.Lock()
			defer mu.Unlock()
			results.BySite[site] = res
			done++
			if req.Progress != nil {
				req.Progress(done, len(sites))
			}
			if res.Status == StatusFailed && req.StopOnExhaustedRetries && IsTransient(res.Err) && haltErr == nil {
				haltErr = fmt.Errorf("site %s: %w", site, res.Err)
				cancel()
			}
		}(site)
	}
	wg.Wait()

	if haltErr != nil {
		logger.Error("run halted", "completed", done, "total", len(sites), "error", haltErr)
		return results, haltErr
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	logger.Info("run finished", "sites", len(sites), "failed", len(results.Failed()))
	return results, nil
}

func (c *Client) fetchSite(ctx context.Context, logger *slog.Logger, site string, args Args, req DataRequest) SiteResult {
	table, err := c.adapter.GetDataSingleSite(ctx, site, args, c.metadata)
	if err != nil {
		logger.Error("site fetch failed", "site", site, "error", err)
		return SiteResult{Site: site, Status: StatusFailed, Err: err}
	}
	if table == nil || len(table.Records) == 0 {
		logger.Info("no data for site", "site", site)
		return SiteResult{Site: site, Status: StatusNoData}
	}
	if table.Source == "" {
		table.Source = c.adapter.Name()
	}
	table.Site = site

	if req.Write {
		if err := c.sink.Write(ctx, table, req.Mode); err != nil {
			logger.Error("write failed", "site", site, "error", err)
			return SiteResult{Site: site, Status: StatusFailed, Err: fmt.Errorf("write %s: %w", site, err)}
		}
	}
	logger.Debug("site fetched", "site", site, "records", len(table.Records))
	return SiteResult{Site: site, Status: StatusOK, Table: table}
}
