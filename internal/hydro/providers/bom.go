package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

const (
	bomName    = "bom"
	bomBaseURL = "http://www.bom.gov.au/waterdata/services"

	bomNoMatches = "No matches."

	// DefaultBOMAggregation is the daily aggregation window when none is set.
	DefaultBOMAggregation = "24HR"
)

var bomContinuous = []string{
	"Dry Air Temperature",
	"Relative Humidity",
	"Wind Speed",
	"Electrical Conductivity At 25C",
	"Turbidity",
	"pH",
	"Water Temperature",
	"Ground Water Level",
	"Water Course Level",
	"Water Course Discharge",
	"Storage Level",
	"Storage Volume",
}

var bomDiscrete = []string{"Rainfall", "Evaporation"}

var bomStationFields = []string{
	"station_name",
	"station_no",
	"station_id",
	"station_latitude",
	"station_longitude",
}

var bomNormalizer = hydro.Normalizer{
	Variables: hydro.Mapping{
		hydro.VariableDischarge: "Water Course Discharge",
		hydro.VariableStage:     "Water Course Level",
	},
}

var errNoMatches = errors.New("no parameter type and station number match found")

// BOMParameters lists the parameter types BOM publishes daily series for.
// category is "continuous", "discrete" or "" for both.
func BOMParameters(category string) ([]string, error) {
	switch category {
	case "":
		return append(append([]string(nil), bomDiscrete...), bomContinuous...), nil
	case "continuous":
		return append([]string(nil), bomContinuous...), nil
	case "discrete":
		return append([]string(nil), bomDiscrete...), nil
	}
	return nil, &hydro.ValidationError{Field: "category", Value: category, Valid: []string{"continuous", "discrete"}}
}

// BOMProvider reads the Bureau of Meteorology Water Data Online kisters service.
type BOMProvider struct {
	exec        *executor
	base        string
	logger      *slog.Logger
	aggregation string
	timezone    string
}

// NewBOMProvider creates the adapter. An empty baseURL selects the public service.
func NewBOMProvider(deps Deps, baseURL string) *BOMProvider {
	if baseURL == "" {
		baseURL = bomBaseURL
	}
	exec := newExecutor(bomName, deps)
	return &BOMProvider{
		exec:        exec,
		base:        baseURL,
		logger:      exec.logger,
		aggregation: DefaultBOMAggregation,
	}
}

// SetAggregation selects the daily window, "24HR" or "09HR".
func (p *BOMProvider) SetAggregation(agg string) {
	if agg != "" {
		p.aggregation = strings.ToUpper(agg)
	}
}

// SetTimezone forces every series into zone instead of the station's
// jurisdiction zone. The name is validated when a site is fetched.
func (p *BOMProvider) SetTimezone(zone string) {
	p.timezone = zone
}

func (p *BOMProvider) Name() string       { return bomName }
func (p *BOMProvider) SiteColumn() string { return "station_no" }

func (p *BOMProvider) NormalizeArgs(q hydro.Query) (hydro.Args, error) {
	args, err := bomNormalizer.Normalize(q)
	if err != nil {
		return hydro.Args{}, err
	}
	if err := hydro.RequireTimes(q.Start, q.End); err != nil {
		return hydro.Args{}, err
	}
	if len(args.Variables) != 1 {
		return hydro.Args{}, &hydro.ValidationError{Field: "variable", Msg: "exactly one variable is required", Valid: bomNormalizer.Variables.Keys()}
	}
	if args.Frequency != "" && args.Frequency != hydro.FrequencyDaily {
		return hydro.Args{}, &hydro.ValidationError{Field: "frequency", Value: args.Frequency, Valid: []string{hydro.FrequencyDaily}}
	}
	return args, nil
}

// GetMetadata lists the stations measuring the requested parameter type.
func (p *BOMProvider) GetMetadata(ctx context.Context, q hydro.MetadataQuery) (*hydro.Metadata, error) {
	parameterType := bomNormalizer.Variables[hydro.VariableDischarge]
	if q.Variable != "" {
		mapped, err := hydro.MapArgument("variable", []string{q.Variable}, bomNormalizer.Variables)
		if err != nil {
			return nil, err
		}
		parameterType = mapped[0]
	}

	header, rows, err := p.stationList(ctx, parameterType, "", strings.Join(bomStationFields, ","))
	if errors.Is(err, errNoMatches) {
		return hydro.NewMetadata(bomStationFields...), nil
	}
	if err != nil {
		return nil, err
	}
	m := hydro.NewMetadata(header...)
	m.Rows = rows
	return m, nil
}

// GetDataSingleSite fetches one station's quality-controlled daily series.
func (p *BOMProvider) GetDataSingleSite(ctx context.Context, site string, args hydro.Args, meta *hydro.Metadata) (*hydro.Table, error) {
	parameterType, err := matchBOMParameter(args.Variable())
	if err != nil {
		return nil, err
	}
	tsName, err := bomTimeseriesName(parameterType, args.Statistic, p.aggregation)
	if err != nil {
		return nil, err
	}

	loc, err := p.stationZone(ctx, site, parameterType, meta)
	if err != nil {
		return nil, err
	}

	tsID, err := p.timeseriesID(ctx, site, parameterType, tsName)
	if err != nil {
		return nil, err
	}

	from := localDate(args.Start, loc)
	to := localDate(args.End, loc)
	return p.timeseriesValues(ctx, site, tsID, from, to, loc)
}

func localDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func matchBOMParameter(name string) (string, error) {
	all, _ := BOMParameters("")
	for _, p := range all {
		if strings.EqualFold(p, name) {
			return p, nil
		}
	}
	return "", &hydro.ValidationError{Field: "variable", Value: name, Valid: all, Msg: "invalid parameter requested: " + name}
}

// bomTimeseriesName builds e.g. "DMQaQc.Merged.DailyMean.24HR" and checks it
// is published for the parameter type.
func bomTimeseriesName(parameterType, statistic, aggregation string) (string, error) {
	discrete := contains(bomDiscrete, parameterType)

	var v string
	switch strings.ToLower(statistic) {
	case "":
		v = "Mean"
		if discrete {
			v = "Total"
		}
	case hydro.StatisticMean:
		v = "Mean"
	case hydro.StatisticMaximum, "max":
		v = "Max"
	case hydro.StatisticMinimum, "min":
		v = "Min"
	case "total":
		v = "Total"
	default:
		v = strings.ToUpper(statistic[:1]) + strings.ToLower(statistic[1:])
	}
	if aggregation == "" {
		aggregation = DefaultBOMAggregation
	}
	name := fmt.Sprintf("DMQaQc.Merged.Daily%s.%s", v, strings.ToUpper(aggregation))

	var valid []string
	if discrete {
		valid = []string{"DMQaQc.Merged.DailyTotal.09HR", "DMQaQc.Merged.DailyTotal.24HR"}
	} else {
		valid = []string{
			"DMQaQc.Merged.DailyMean.24HR",
			"DMQaQc.Merged.DailyMax.24HR",
			"DMQaQc.Merged.DailyMin.24HR",
		}
		if parameterType == "Water Course Discharge" {
			valid = append(valid, "DMQaQc.Merged.DailyMean.09HR")
		}
	}
	if !contains(valid, name) {
		return "", &hydro.ValidationError{
			Field: "statistic",
			Value: name,
			Valid: valid,
			Msg:   "invalid combination of parameter type, statistic and aggregation",
		}
	}
	return name, nil
}

// stationZone resolves the zone series are reported in. An explicit zone
// still requires the station to exist.
func (p *BOMProvider) stationZone(ctx context.Context, site, parameterType string, meta *hydro.Metadata) (*time.Location, error) {
	if p.timezone != "" {
		loc, err := ResolveTimezone(p.timezone, "", p.logger)
		if err != nil {
			return nil, err
		}
		_, _, err = p.stationList(ctx, parameterType, site, strings.Join(bomStationFields, ","))
		if errors.Is(err, errNoMatches) {
			return nil, invalidStation(site)
		}
		if err != nil {
			return nil, err
		}
		return loc, nil
	}

	if row, ok := meta.Find(p.SiteColumn(), site); ok && row["DATA_OWNER_NAME"] != "" {
		return ResolveTimezone("", row["DATA_OWNER_NAME"], p.logger)
	}

	_, rows, err := p.stationList(ctx, parameterType, site, "custom_attributes")
	if errors.Is(err, errNoMatches) || (err == nil && len(rows) == 0) {
		return nil, invalidStation(site)
	}
	if err != nil {
		return nil, err
	}
	return ResolveTimezone("", rows[0]["DATA_OWNER_NAME"], p.logger)
}

func invalidStation(site string) error {
	return &hydro.ValidationError{Field: "site", Value: site, Msg: "station number " + site + " is invalid"}
}

func (p *BOMProvider) stationList(ctx context.Context, parameterType, station, returnFields string) ([]string, []map[string]string, error) {
	params := url.Values{}
	params.Set("request", "getStationList")
	params.Set("parameterType_name", parameterType)
	if station != "" {
		params.Set("station_no", station)
	}
	params.Set("returnfields", returnFields)
	return p.list(ctx, params)
}

var bomParameterFields = []string{
	"station_no",
	"station_id",
	"station_name",
	"parametertype_id",
	"parametertype_name",
	"parametertype_unitname",
	"parametertype_shortunitname",
}

// StationParameters lists every parameter type recorded at the given
// stations. Unknown stations yield an empty table.
func (p *BOMProvider) StationParameters(ctx context.Context, stations []string) (*hydro.Metadata, error) {
	if len(stations) == 0 {
		return nil, &hydro.ValidationError{Field: "site", Msg: "at least one station number is required"}
	}
	params := url.Values{}
	params.Set("request", "getParameterList")
	params.Set("station_no", strings.Join(stations, ","))
	params.Set("returnfields", strings.Join(bomParameterFields, ","))

	header, rows, err := p.list(ctx, params)
	if errors.Is(err, errNoMatches) {
		return hydro.NewMetadata(bomParameterFields...), nil
	}
	if err != nil {
		return nil, err
	}
	m := hydro.NewMetadata(header...)
	m.Rows = rows
	return m, nil
}

func (p *BOMProvider) timeseriesID(ctx context.Context, site, parameterType, tsName string) (string, error) {
	params := url.Values{}
	params.Set("request", "getTimeseriesList")
	params.Set("parametertype_name", parameterType)
	params.Set("ts_name", tsName)
	params.Set("station_no", site)

	_, rows, err := p.list(ctx, params)
	if errors.Is(err, errNoMatches) || (err == nil && len(rows) == 0) {
		return "", &hydro.UpstreamDataError{
			URL:      p.requestURL(params),
			Messages: []string{fmt.Sprintf("no %s timeseries for station %s", tsName, site)},
		}
	}
	if err != nil {
		return "", err
	}
	id := rows[0]["ts_id"]
	if id == "" {
		return "", &hydro.UpstreamDataError{URL: p.requestURL(params), Messages: []string{"timeseries list has no ts_id column"}}
	}
	return id, nil
}

type bomValues struct {
	Columns string  `json:"columns"`
	Data    [][]any `json:"data"`
}

func (p *BOMProvider) timeseriesValues(ctx context.Context, site, tsID string, from, to time.Time, loc *time.Location) (*hydro.Table, error) {
	params := url.Values{}
	params.Set("request", "getTimeseriesValues")
	params.Set("ts_id", tsID)
	params.Set("from", from.Format("2006-01-02T15:04:05-07:00"))
	params.Set("to", to.Format("2006-01-02T15:04:05-07:00"))
	params.Set("returnfields", "Timestamp,Value,Quality Code")

	u := p.requestURL(params)
	body, err := p.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	var payload []bomValues
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &hydro.UpstreamDataError{URL: u, Err: err}
	}
	if len(payload) == 0 || len(payload[0].Data) == 0 {
		return nil, nil
	}

	cols := strings.Split(payload[0].Columns, ",")
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[strings.TrimSpace(c)] = i
	}
	tsCol, ok := idx["Timestamp"]
	if !ok {
		return nil, &hydro.UpstreamDataError{URL: u, Messages: []string{"response has no Timestamp column"}}
	}
	cell := func(row []any, name string) any {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return nil
		}
		return row[i]
	}

	t := &hydro.Table{Source: bomName, Site: site}
	for _, row := range payload[0].Data {
		if tsCol >= len(row) {
			continue
		}
		ts, err := parseTimestamp(toString(row[tsCol]), loc)
		if err != nil {
			return nil, &hydro.UpstreamDataError{URL: u, Err: err}
		}
		t.Records = append(t.Records, hydro.Record{
			Timestamp:   ts.In(loc),
			Value:       toFloat(cell(row, "Value")),
			QualityFlag: toString(cell(row, "Quality Code")),
		})
	}
	if len(t.Records) == 0 {
		return nil, nil
	}
	return t, nil
}

// list runs a list-style request whose first row names the columns.
func (p *BOMProvider) list(ctx context.Context, params url.Values) ([]string, []map[string]string, error) {
	u := p.requestURL(params)
	body, err := p.fetch(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, &hydro.UpstreamDataError{URL: u, Err: err}
	}
	if len(raw) == 0 {
		return nil, nil, &hydro.UpstreamDataError{URL: u, Messages: []string{"empty response"}}
	}
	var sentinel string
	if json.Unmarshal(raw[0], &sentinel) == nil && sentinel == bomNoMatches {
		return nil, nil, errNoMatches
	}

	var header []string
	if err := json.Unmarshal(raw[0], &header); err != nil {
		return nil, nil, &hydro.UpstreamDataError{URL: u, Err: fmt.Errorf("header row: %w", err)}
	}
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, r := range raw[1:] {
		var cells []any
		if err := json.Unmarshal(r, &cells); err != nil {
			return nil, nil, &hydro.UpstreamDataError{URL: u, Err: err}
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = toString(cells[i])
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func (p *BOMProvider) requestURL(params url.Values) string {
	q := url.Values{}
	q.Set("service", "kisters")
	q.Set("type", "QueryServices")
	q.Set("format", "json")
	for k, v := range params {
		q[k] = v
	}
	return p.base + "?" + q.Encode()
}

func (p *BOMProvider) fetch(ctx context.Context, u string) ([]byte, error) {
	resp, err := p.exec.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, resp.transportError()
	}
	return resp.Body, nil
}
