package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// DefaultUserAgent is sent with every upstream request unless overridden.
const DefaultUserAgent = "river-data-aggregation/1.0"

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// Deps bundles what every provider needs to reach its upstream.
type Deps struct {
	Client    *http.Client
	Limiters  *Limiters
	Retry     *RetryPolicy
	Logger    *slog.Logger
	UserAgent string
}

// response is a fully read HTTP response.
type response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// transportError tags a non-success status with the URL that produced it.
func (r *response) transportError() error {
	return &hydro.TransportError{URL: r.URL, StatusCode: r.StatusCode}
}

// executor performs GET requests for one source: one limiter slot per call,
// then retried attempts, each guarded by the source's circuit breaker.
type executor struct {
	name      string
	client    *http.Client
	limiter   *RateLimiter
	retry     *RetryPolicy
	breaker   *gobreaker.CircuitBreaker
	userAgent string
	logger    *slog.Logger
}

func newExecutor(name string, deps Deps) *executor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "provider", "source", name)

	ua := deps.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Only calls that exhausted their retries on a transient failure count.
		IsSuccessful: func(err error) bool {
			return err == nil || !hydro.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return &executor{
		name:      name,
		client:    deps.Client,
		limiter:   deps.Limiters.For(name),
		retry:     deps.Retry,
		breaker:   cb,
		userAgent: ua,
		logger:    logger,
	}
}

// get issues one outbound call. 429 and 5xx are retried; any other status
// is handed back for the caller to interpret. The breaker sees the call as
// a whole: it is consulted before the first attempt and records only the
// final outcome, so retries always run to completion.
func (e *executor) get(ctx context.Context, rawURL string) (*response, error) {
	if e.client == nil {
		return nil, errNoHTTPClient
	}
	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var callErr error
	result, err := e.breaker.Execute(func() (interface{}, error) {
		var resp *response
		callErr = e.retry.Do(ctx, e.name, func(ctx context.Context) error {
			r, err := e.attempt(ctx, rawURL)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		return resp, callErr
	})
	if callErr != nil {
		return nil, callErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: %v", e.name, errCircuitOpen, err)
		}
		return nil, err
	}

	resp, ok := result.(*response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}

func (e *executor) attempt(ctx context.Context, rawURL string) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/json")

	e.logger.Debug("request", "url", rawURL)
	httpResp, err := e.client.Do(req)
	if err != nil {
		return nil, &hydro.TransportError{URL: rawURL, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &hydro.TransportError{URL: rawURL, Err: err}
	}
	if hydro.RetriableStatus(httpResp.StatusCode) {
		return nil, &hydro.TransportError{URL: rawURL, StatusCode: httpResp.StatusCode}
	}
	return &response{URL: rawURL, StatusCode: httpResp.StatusCode, Body: body}, nil
}
