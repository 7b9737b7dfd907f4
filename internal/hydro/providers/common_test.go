package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

// testDeps returns unpaced dependencies whose retries do not actually sleep.
func testDeps(t *testing.T, settings hydro.Settings) (Deps, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	logger := quietLogger()
	return Deps{
		Client:   &http.Client{Timeout: 5 * time.Second},
		Limiters: NewLimiters(settings),
		Retry:    NewRetryPolicy(settings, logger).WithSleep(rec.sleep),
		Logger:   logger,
	}, rec
}

func fastSettings() hydro.Settings {
	return hydro.Settings{RateLimit: 0, Retries: 3, Backoff: 10 * time.Millisecond}
}

func TestExecutorRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", got, DefaultUserAgent)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	deps, rec := testDeps(t, fastSettings())
	exec := newExecutor("test", deps)

	resp, err := exec.get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("body = %q, want ok", resp.Body)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 10*time.Millisecond || rec.waits[1] != 20*time.Millisecond {
		t.Errorf("waits = %v, want [10ms 20ms]", rec.waits)
	}
}

func TestExecutorExhaustedRetriesReturnTransportError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	deps, _ := testDeps(t, fastSettings())
	_, err := newExecutor("test", deps).get(context.Background(), srv.URL)

	var te *hydro.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusTooManyRequests || te.URL != srv.URL {
		t.Errorf("err = %+v", te)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecutorReturnsClientErrorsWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	deps, _ := testDeps(t, fastSettings())
	resp, err := newExecutor("test", deps).get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func alwaysUnavailable(calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
}

func TestExecutorUsesEveryConfiguredAttempt(t *testing.T) {
	var calls int32
	srv := alwaysUnavailable(&calls)
	defer srv.Close()

	settings := fastSettings()
	settings.Retries = 8
	deps, rec := testDeps(t, settings)
	_, err := newExecutor("test", deps).get(context.Background(), srv.URL)

	var te *hydro.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want a 503 TransportError", err)
	}
	if !hydro.IsTransient(err) {
		t.Error("exhausted 503 should stay transient")
	}
	if calls != 8 {
		t.Errorf("calls = %d, want 8", calls)
	}
	if len(rec.waits) != 7 {
		t.Errorf("waits = %d, want 7", len(rec.waits))
	}
}

func TestExecutorOpensBreakerAfterRepeatedExhaustedCalls(t *testing.T) {
	var calls int32
	srv := alwaysUnavailable(&calls)
	defer srv.Close()

	settings := fastSettings()
	settings.Retries = 2
	deps, _ := testDeps(t, settings)
	exec := newExecutor("test", deps)

	for i := 0; i < 6; i++ {
		if _, err := exec.get(context.Background(), srv.URL); !hydro.IsTransient(err) {
			t.Fatalf("call %d: err = %v, want transient", i+1, err)
		}
	}
	if calls != 12 {
		t.Fatalf("calls = %d, want 12", calls)
	}

	_, err := exec.get(context.Background(), srv.URL)
	if !errors.Is(err, errCircuitOpen) {
		t.Errorf("err = %v, want circuit open", err)
	}
	if calls != 12 {
		t.Errorf("open breaker still reached upstream: calls = %d", calls)
	}
}

func TestExecutorIgnoresClientErrorsForBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	deps, _ := testDeps(t, fastSettings())
	exec := newExecutor("test", deps)
	for i := 0; i < 10; i++ {
		resp, err := exec.get(context.Background(), srv.URL)
		if err != nil || resp.StatusCode != http.StatusNotFound {
			t.Fatalf("call %d: resp = %+v, err = %v", i+1, resp, err)
		}
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}
