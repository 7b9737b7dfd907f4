package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
	"github.com/i474232898/river-data-aggregation/internal/store"
)

// stubAdapter serves one record per requested site, except "EMPTY".
type stubAdapter struct{}

func (stubAdapter) Name() string       { return "stub" }
func (stubAdapter) SiteColumn() string { return "site_id" }

func (stubAdapter) NormalizeArgs(q hydro.Query) (hydro.Args, error) {
	n := hydro.Normalizer{Variables: hydro.Mapping{hydro.VariableDischarge: "Q"}}
	return n.Normalize(q)
}

func (stubAdapter) GetMetadata(ctx context.Context, q hydro.MetadataQuery) (*hydro.Metadata, error) {
	return hydro.NewMetadata("site_id"), nil
}

func (stubAdapter) GetDataSingleSite(ctx context.Context, site string, args hydro.Args, meta *hydro.Metadata) (*hydro.Table, error) {
	if site == "EMPTY" {
		return nil, nil
	}
	return &hydro.Table{Records: []hydro.Record{{Timestamp: args.Start, Value: hydro.Float(1.5)}}}, nil
}

func newTestApp(t *testing.T) (*fiber.App, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := hydro.NewClient(stubAdapter{}, hydro.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	memStore := store.NewMemoryStore(10, 0)
	svc := hydro.NewService(memStore, []*hydro.Client{c}, logger)

	app := fiber.New()
	RegisterRoutes(app, svc)
	return app, memStore
}

func do(t *testing.T, app *fiber.App, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestSources(t *testing.T) {
	app, _ := newTestApp(t)
	resp, body := do(t, app, "/api/v1/sources")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var got struct {
		Sources []hydro.SourceInfo `json:"sources"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Sources) != 1 || got.Sources[0].Name != "stub" || got.Sources[0].SiteColumn != "site_id" {
		t.Errorf("sources = %+v", got.Sources)
	}
}

func TestDataValidation(t *testing.T) {
	app, _ := newTestApp(t)
	for _, target := range []string{
		// Missing from/to.
		"/api/v1/sources/stub/data?site=A",
		// Missing site.
		"/api/v1/sources/stub/data?from=2024-01-01&to=2024-01-02",
		// Inverted window.
		"/api/v1/sources/stub/data?site=A&from=2024-01-02&to=2024-01-01",
		// Unknown variable is rejected by normalization.
		"/api/v1/sources/stub/data?site=A&variable=temperature&from=2024-01-01&to=2024-01-02",
		// Unknown source.
		"/api/v1/sources/ecmwf/data?site=A&from=2024-01-01&to=2024-01-02",
	} {
		resp, _ := do(t, app, target)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestDataFetch(t *testing.T) {
	app, memStore := newTestApp(t)
	resp, body := do(t, app, "/api/v1/sources/stub/data?site=A,EMPTY&from=2024-01-01T00:00:00Z&to=1704153600")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, body)
	}
	var got resultsResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID == "" || len(got.Sites) != 2 {
		t.Fatalf("response = %+v", got)
	}
	if got.Sites[0].Status != hydro.StatusOK || got.Sites[0].Table == nil || got.Sites[0].Table.Site != "A" {
		t.Errorf("site A = %+v", got.Sites[0])
	}
	if got.Sites[1].Status != hydro.StatusNoData {
		t.Errorf("site EMPTY status = %q", got.Sites[1].Status)
	}

	if _, err := memStore.GetLatest("stub", "A"); err == nil {
		t.Error("live fetch should not write to the store")
	}
}

func TestLatestAndHistory(t *testing.T) {
	app, memStore := newTestApp(t)

	resp, _ := do(t, app, "/api/v1/sources/stub/latest?site=A")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
	resp, _ = do(t, app, "/api/v1/sources/stub/latest")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing site: expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := memStore.Write(context.Background(), &hydro.Table{
		Source: "stub",
		Site:   "A",
		Records: []hydro.Record{
			{Timestamp: day, Value: hydro.Float(1)},
			{Timestamp: day.AddDate(0, 0, 1), Value: hydro.Float(2)},
		},
	}, hydro.WriteAppend)
	if err != nil {
		t.Fatal(err)
	}

	resp, body := do(t, app, "/api/v1/sources/stub/latest?site=A")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var table hydro.Table
	if err := json.Unmarshal(body, &table); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(table.Records) != 2 {
		t.Errorf("records = %d, want 2", len(table.Records))
	}

	resp, body = do(t, app, "/api/v1/sources/stub/history?site=A&from=2024-01-02&to=2024-01-05")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var history struct {
		Records []hydro.Record `json:"records"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(history.Records) != 1 || *history.Records[0].Value != 2 {
		t.Errorf("history = %+v", history.Records)
	}

	resp, _ = do(t, app, "/api/v1/sources/stub/history?site=A&from=2030-01-01&to=2030-01-02")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty range: expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-01-02T00:00:00Z", "2024-01-02", "1704153600"} {
		got, err := parseTime(in)
		if err != nil || !got.Equal(want) {
			t.Errorf("parseTime(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseTime("yesterday"); err == nil {
		t.Error("expected an error for an unparseable time")
	}
}
