package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

const rdbSites = "# US Geological Survey\n" +
	"# retrieved: 2024-01-01\n" +
	"agency_cd\tsite_no\tstation_nm\tsite_tp_cd\tdec_lat_va\tdec_long_va\n" +
	"5s\t15s\t50s\t7s\t16s\t16s\n" +
	"USGS\t01010000\tSt. John River at Ninemile Bridge, Maine\tST\t46.70055556\t-69.7155556\n" +
	"USGS\t01010070\tBig Black River near Depot Mtn, Maine\tST\t46.89388889\t-69.7516667\n"

const dvJSON = `{"value":{"timeSeries":[{
  "name":"USGS:01646500:00060:00003",
  "variable":{"variableCode":[{"value":"00060"}],"noDataValue":-999999.0,
    "options":{"option":[{"name":"Statistic","optionCode":"00003"}]}},
  "values":[{"value":[
    {"value":"2340","qualifiers":["A"],"dateTime":"2020-01-02T00:00:00.000"},
    {"value":"-999999","qualifiers":["A","Ice"],"dateTime":"2020-01-03T00:00:00.000"},
    {"value":"2250","qualifiers":["A"],"dateTime":"2020-01-01T00:00:00.000"}
  ],"method":[{"methodDescription":""}]}]
}]}}`

func TestNWISNormalizeArgs(t *testing.T) {
	p := NewNWISProvider(Deps{Limiters: NewLimiters(fastSettings())}, "")
	args, err := p.NormalizeArgs(hydro.Query{
		Variables: []string{"discharge", "stage"},
		Frequency: "daily",
		Statistic: "mean",
		Start:     time.Date(2020, 1, 1, 13, 45, 0, 0, time.UTC),
		End:       time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NormalizeArgs: %v", err)
	}
	if strings.Join(args.Variables, ",") != "00060,00065" {
		t.Errorf("variables = %v", args.Variables)
	}
	if args.Frequency != "dv" || args.Statistic != "00003" {
		t.Errorf("frequency/statistic = %q/%q", args.Frequency, args.Statistic)
	}
	if args.StartParam != "2020-01-01" || args.EndParam != "2020-01-31" {
		t.Errorf("params = %q..%q", args.StartParam, args.EndParam)
	}

	if _, err := p.NormalizeArgs(hydro.Query{Variables: []string{"discharge"}, Frequency: "monthly"}); !hydro.IsValidation(err) {
		t.Errorf("monthly: err = %v, want ValidationError", err)
	}
	if _, err := p.NormalizeArgs(hydro.Query{Variables: []string{"discharge"}, Frequency: "instantaneous", Statistic: "mean"}); !hydro.IsValidation(err) {
		t.Errorf("iv with statistic: err = %v, want ValidationError", err)
	}
}

func TestParseStateCodes(t *testing.T) {
	all, err := ParseStateCodes(nil)
	if err != nil || len(all) != len(nwisStates) {
		t.Fatalf("ParseStateCodes(nil) = %d codes, %v", len(all), err)
	}

	got, err := ParseStateCodes([]string{"ME", "ny"})
	if err != nil {
		t.Fatalf("ParseStateCodes: %v", err)
	}
	if strings.Join(got, ",") != "me,ny" {
		t.Errorf("got %v, want [me ny]", got)
	}

	_, err = ParseStateCodes([]string{"me", "zz", "qq"})
	var ve *hydro.ValidationError
	if !errors.As(err, &ve) || ve.Value != "zz, qq" {
		t.Errorf("err = %v, want ValidationError naming zz, qq", err)
	}
}

func TestNWISGetMetadata(t *testing.T) {
	var mu sync.Mutex
	var states []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		states = append(states, q.Get("stateCd"))
		mu.Unlock()
		if r.URL.Path != "/nwis/site/" || q.Get("format") != "rdb" || q.Get("parameterCd") != "00060" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if q.Get("stateCd") == "vt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, rdbSites)
	}))
	defer srv.Close()

	deps, _ := testDeps(t, fastSettings())
	p := NewNWISProvider(deps, srv.URL)
	m, err := p.GetMetadata(context.Background(), hydro.MetadataQuery{Variable: "discharge", StateCodes: []string{"me", "vt"}})
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("rows = %d, want 2", m.Len())
	}
	row, ok := m.Find("site_no", "01010070")
	if !ok || row["station_nm"] != "Big Black River near Depot Mtn, Maine" {
		t.Errorf("row = %v", row)
	}
	if strings.Join(states, ",") != "me,vt" {
		t.Errorf("states requested = %v", states)
	}
}

func TestNWISGetDataSingleSite(t *testing.T) {
	var path, rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, rawQuery = r.URL.Path, r.URL.RawQuery
		if r.URL.Query().Get("sites") == "00000000" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, dvJSON)
	}))
	defer srv.Close()

	deps, _ := testDeps(t, fastSettings())
	p := NewNWISProvider(deps, srv.URL)
	c, _ := hydro.NewClient(p, hydro.WithLogger(quietLogger()))

	res, err := c.GetData(context.Background(), hydro.DataRequest{
		Sites: []string{"01646500", "00000000"},
		Query: hydro.Query{
			Variables: []string{"discharge"},
			Frequency: "daily",
			Statistic: "mean",
			Start:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:       time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if !res.BySite["00000000"].NoData() {
		t.Errorf("404 site status = %q, want no_data", res.BySite["00000000"].Status)
	}
	if path != "/nwis/dv/" {
		t.Errorf("path = %q", path)
	}
	if !strings.Contains(rawQuery, "startDT=2020-01-01") || !strings.Contains(rawQuery, "statCd=00003") {
		t.Errorf("query = %q", rawQuery)
	}

	table := res.BySite["01646500"].Table
	if table == nil || len(table.Records) != 3 {
		t.Fatalf("table = %+v", table)
	}
	if *table.Records[0].Value != 2250 {
		t.Errorf("first value = %v, want 2250 (sorted by time)", *table.Records[0].Value)
	}
	if table.Records[2].Value != nil {
		t.Error("noDataValue should decode as nil")
	}
	if table.Records[2].QualityFlag != "A,Ice" {
		t.Errorf("quality = %q", table.Records[2].QualityFlag)
	}
	if table.Records[0].Extra["parameter_cd"] != "00060" || table.Records[0].Extra["stat_cd"] != "00003" {
		t.Errorf("extra = %v", table.Records[0].Extra)
	}
}

func TestParseRDBEmpty(t *testing.T) {
	m, err := parseRDB([]byte("# nothing here\n"))
	if err != nil {
		t.Fatalf("parseRDB: %v", err)
	}
	if m.Len() != 0 || !m.HasColumn("site_no") {
		t.Errorf("metadata = %+v", m)
	}
}

func TestNewUnknownSource(t *testing.T) {
	deps, _ := testDeps(t, fastSettings())
	if _, err := New("usgs", deps); err != nil {
		t.Errorf("New(usgs): %v", err)
	}
	_, err := New("ecmwf", deps)
	var ve *hydro.ValidationError
	if !errors.As(err, &ve) || len(ve.Valid) != 3 {
		t.Errorf("err = %v", err)
	}
}

func TestNWISFailingSitesEachGetFullRetries(t *testing.T) {
	var mu sync.Mutex
	perSite := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		perSite[r.URL.Query().Get("sites")]++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	settings := fastSettings()
	settings.Retries = 5
	deps, _ := testDeps(t, settings)
	c, _ := hydro.NewClient(NewNWISProvider(deps, srv.URL), hydro.WithLogger(quietLogger()))

	res, err := c.GetData(context.Background(), hydro.DataRequest{
		Sites: []string{"A", "B", "C"},
		Query: hydro.Query{Variables: []string{"discharge"}},
	})
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	for _, site := range []string{"A", "B", "C"} {
		if perSite[site] != 5 {
			t.Errorf("site %s: upstream calls = %d, want 5", site, perSite[site])
		}
		r := res.BySite[site]
		if r.Status != hydro.StatusFailed || !hydro.IsTransient(r.Err) {
			t.Errorf("site %s: status = %q, err = %v; want a transient failure", site, r.Status, r.Err)
		}
	}
}

func TestNWISRecordsOwnTheirExtra(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, dvJSON)
	}))
	defer srv.Close()

	deps, _ := testDeps(t, fastSettings())
	p := NewNWISProvider(deps, srv.URL)
	args, err := p.NormalizeArgs(hydro.Query{Variables: []string{"discharge"}})
	if err != nil {
		t.Fatal(err)
	}
	table, err := p.GetDataSingleSite(context.Background(), "01646500", args, nil)
	if err != nil {
		t.Fatalf("GetDataSingleSite: %v", err)
	}
	if table.Records[0].Series != "00060:00003" {
		t.Errorf("series = %q, want 00060:00003", table.Records[0].Series)
	}
	table.Records[0].Extra["parameter_cd"] = "changed"
	if table.Records[1].Extra["parameter_cd"] != "00060" {
		t.Errorf("second record extra = %v, want its own copy", table.Records[1].Extra)
	}
}
