package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

const (
	nwisName    = "nwis"
	nwisBaseURL = "https://waterservices.usgs.gov"
)

var nwisNormalizer = hydro.Normalizer{
	Variables: hydro.Mapping{
		hydro.VariableDischarge: "00060",
		hydro.VariableStage:     "00065",
	},
	Frequencies: hydro.Mapping{
		hydro.FrequencyDaily:         "dv",
		hydro.FrequencyInstantaneous: "iv",
	},
	Statistics: hydro.Mapping{
		hydro.StatisticMean:    "00003",
		hydro.StatisticMaximum: "00001",
		hydro.StatisticMinimum: "00002",
	},
}

// nwisStates maps the lowercase postal codes NWIS accepts for stateCd.
var nwisStates = map[string]string{
	"al": "Alabama", "ak": "Alaska", "az": "Arizona", "ar": "Arkansas",
	"ca": "California", "co": "Colorado", "ct": "Connecticut", "de": "Delaware",
	"dc": "District of Columbia", "fl": "Florida", "ga": "Georgia", "hi": "Hawaii",
	"id": "Idaho", "il": "Illinois", "in": "Indiana", "ia": "Iowa",
	"ks": "Kansas", "ky": "Kentucky", "la": "Louisiana", "me": "Maine",
	"md": "Maryland", "ma": "Massachusetts", "mi": "Michigan", "mn": "Minnesota",
	"ms": "Mississippi", "mo": "Missouri", "mt": "Montana", "ne": "Nebraska",
	"nv": "Nevada", "nh": "New Hampshire", "nj": "New Jersey", "nm": "New Mexico",
	"ny": "New York", "nc": "North Carolina", "nd": "North Dakota", "oh": "Ohio",
	"ok": "Oklahoma", "or": "Oregon", "pa": "Pennsylvania", "pr": "Puerto Rico",
	"ri": "Rhode Island", "sc": "South Carolina", "sd": "South Dakota", "tn": "Tennessee",
	"tx": "Texas", "ut": "Utah", "vt": "Vermont", "va": "Virginia",
	"wa": "Washington", "wv": "West Virginia", "wi": "Wisconsin", "wy": "Wyoming",
}

// ParseStateCodes validates state codes. No codes selects every state.
func ParseStateCodes(codes []string) ([]string, error) {
	if len(codes) == 0 {
		all := make([]string, 0, len(nwisStates))
		for c := range nwisStates {
			all = append(all, c)
		}
		sort.Strings(all)
		return all, nil
	}

	out := make([]string, 0, len(codes))
	var unknown []string
	for _, c := range codes {
		lc := strings.ToLower(strings.TrimSpace(c))
		if _, ok := nwisStates[lc]; !ok {
			unknown = append(unknown, c)
			continue
		}
		out = append(out, lc)
	}
	if len(unknown) > 0 {
		return nil, &hydro.ValidationError{
			Field: "state_code",
			Value: strings.Join(unknown, ", "),
			Msg:   "state code(s) " + strings.Join(unknown, ", ") + " not recognised",
		}
	}
	return out, nil
}

// NWISProvider reads USGS water services: site inventory in RDB, daily and
// instantaneous values in WaterML JSON.
type NWISProvider struct {
	exec   *executor
	base   string
	logger *slog.Logger
}

// NewNWISProvider creates the adapter. An empty baseURL selects the public service.
func NewNWISProvider(deps Deps, baseURL string) *NWISProvider {
	if baseURL == "" {
		baseURL = nwisBaseURL
	}
	exec := newExecutor(nwisName, deps)
	return &NWISProvider{
		exec:   exec,
		base:   strings.TrimRight(baseURL, "/"),
		logger: exec.logger,
	}
}

func (p *NWISProvider) Name() string       { return nwisName }
func (p *NWISProvider) SiteColumn() string { return "site_no" }

// NormalizeArgs maps to parameter codes and formats the bounds as dates.
// Both bounds are optional; without them NWIS returns the latest value.
func (p *NWISProvider) NormalizeArgs(q hydro.Query) (hydro.Args, error) {
	if q.Frequency == "" {
		q.Frequency = hydro.FrequencyDaily
	}
	args, err := nwisNormalizer.Normalize(q)
	if err != nil {
		return hydro.Args{}, err
	}
	if len(args.Variables) == 0 {
		return hydro.Args{}, &hydro.ValidationError{Field: "variable", Msg: "variable is required", Valid: nwisNormalizer.Variables.Keys()}
	}
	if args.Frequency == "iv" && args.Statistic != "" {
		return hydro.Args{}, &hydro.ValidationError{Field: "statistic", Value: q.Statistic, Msg: "statistics only apply to daily values"}
	}
	if !args.Start.IsZero() {
		args.StartParam = args.Start.Format("2006-01-02")
	}
	if !args.End.IsZero() {
		args.EndParam = args.End.Format("2006-01-02")
	}
	return args, nil
}

// GetMetadata downloads the site inventory one state at a time.
func (p *NWISProvider) GetMetadata(ctx context.Context, q hydro.MetadataQuery) (*hydro.Metadata, error) {
	var variable string
	if q.Variable != "" {
		mapped, err := hydro.MapArgument("variable", []string{q.Variable}, nwisNormalizer.Variables)
		if err != nil {
			return nil, err
		}
		variable = mapped[0]
	}
	states, err := ParseStateCodes(q.StateCodes)
	if err != nil {
		return nil, err
	}

	meta := hydro.NewMetadata(p.SiteColumn())
	for i, state := range states {
		m, err := p.stateMetadata(ctx, state, variable)
		if err != nil {
			return nil, err
		}
		meta.Append(m)
		p.logger.Debug("state metadata downloaded", "state", state, "sites", m.Len(), "progress", i+1, "total", len(states))
	}
	return meta, nil
}

func (p *NWISProvider) stateMetadata(ctx context.Context, state, variable string) (*hydro.Metadata, error) {
	params := url.Values{}
	params.Set("format", "rdb")
	params.Set("stateCd", state)
	params.Set("siteStatus", "all")
	if variable != "" {
		params.Set("parameterCd", variable)
	}
	u := p.base + "/nwis/site/?" + params.Encode()

	resp, err := p.exec.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return hydro.NewMetadata(p.SiteColumn()), nil
	}
	if resp.StatusCode >= 400 {
		return nil, resp.transportError()
	}
	m, err := parseRDB(resp.Body)
	if err != nil {
		return nil, &hydro.UpstreamDataError{URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	return m, nil
}

// parseRDB reads USGS tab-delimited output: '#' comments, a header row,
// a column-format row, then data.
func parseRDB(body []byte) (*hydro.Metadata, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		m          *hydro.Metadata
		skipFormat bool
	)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if m == nil {
			m = hydro.NewMetadata(fields...)
			skipFormat = true
			continue
		}
		if skipFormat {
			skipFormat = false
			continue
		}
		row := make(map[string]string, len(m.Columns))
		for i, c := range m.Columns {
			if i < len(fields) {
				row[c] = fields[i]
			}
		}
		m.Rows = append(m.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if m == nil {
		return hydro.NewMetadata("site_no"), nil
	}
	return m, nil
}

type waterML struct {
	Value struct {
		TimeSeries []nwisSeries `json:"timeSeries"`
	} `json:"value"`
}

type nwisSeries struct {
	Name     string `json:"name"`
	Variable struct {
		VariableCode []struct {
			Value string `json:"value"`
		} `json:"variableCode"`
		NoDataValue *float64 `json:"noDataValue"`
		Options     struct {
			Option []struct {
				Name       string `json:"name"`
				OptionCode string `json:"optionCode"`
			} `json:"option"`
		} `json:"options"`
	} `json:"variable"`
	Values []struct {
		Value []struct {
			Value      string   `json:"value"`
			Qualifiers []string `json:"qualifiers"`
			DateTime   string   `json:"dateTime"`
		} `json:"value"`
		Method []struct {
			MethodDescription string `json:"methodDescription"`
		} `json:"method"`
	} `json:"values"`
}

// GetDataSingleSite fetches daily (dv) or instantaneous (iv) values. A 404
// or an empty series means no data.
func (p *NWISProvider) GetDataSingleSite(ctx context.Context, site string, args hydro.Args, meta *hydro.Metadata) (*hydro.Table, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("sites", site)
	params.Set("parameterCd", strings.Join(args.Variables, ","))
	if args.StartParam != "" {
		params.Set("startDT", args.StartParam)
	}
	if args.EndParam != "" {
		params.Set("endDT", args.EndParam)
	}
	if args.Frequency == "dv" && args.Statistic != "" {
		params.Set("statCd", args.Statistic)
	}
	u := p.base + "/nwis/" + args.Frequency + "/?" + params.Encode()

	resp, err := p.exec.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, resp.transportError()
	}

	var doc waterML
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &hydro.UpstreamDataError{URL: u, StatusCode: resp.StatusCode, Err: err}
	}

	t := &hydro.Table{Source: nwisName, Site: site}
	for _, ts := range doc.Value.TimeSeries {
		extra := map[string]string{}
		if len(ts.Variable.VariableCode) > 0 {
			extra["parameter_cd"] = ts.Variable.VariableCode[0].Value
		}
		for _, opt := range ts.Variable.Options.Option {
			if opt.Name == "Statistic" && opt.OptionCode != "" {
				extra["stat_cd"] = opt.OptionCode
			}
		}
		for _, block := range ts.Values {
			blockExtra := maps.Clone(extra)
			if len(block.Method) > 0 && block.Method[0].MethodDescription != "" {
				blockExtra["method"] = block.Method[0].MethodDescription
			}
			series := nwisSeriesID(blockExtra)
			for _, v := range block.Value {
				stamp, err := parseTimestamp(v.DateTime, nil)
				if err != nil {
					return nil, &hydro.UpstreamDataError{URL: u, Err: err}
				}
				t.Records = append(t.Records, hydro.Record{
					Timestamp:   stamp.UTC(),
					Series:      series,
					Value:       nwisValue(v.Value, ts.Variable.NoDataValue),
					QualityFlag: strings.Join(v.Qualifiers, ","),
					Extra:       maps.Clone(blockExtra),
				})
			}
		}
	}
	if len(t.Records) == 0 {
		return nil, nil
	}
	sort.SliceStable(t.Records, func(i, j int) bool {
		return t.Records[i].Timestamp.Before(t.Records[j].Timestamp)
	})
	return t, nil
}

// nwisSeriesID identifies a series within one response: parameter code,
// then statistic code and method when present.
func nwisSeriesID(extra map[string]string) string {
	parts := make([]string, 0, 3)
	for _, k := range []string{"parameter_cd", "stat_cd", "method"} {
		if v := extra[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ":")
}

func nwisValue(s string, noData *float64) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	if noData != nil && f == *noData {
		return nil
	}
	return hydro.Float(f)
}
