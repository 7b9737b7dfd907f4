package providers

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

const (
	eaufranceName    = "eaufrance"
	eaufranceBaseURL = "https://hubeau.eaufrance.fr"

	// realtimeFrequency marks a request routed to observations_tr.
	realtimeFrequency = "TR"
)

var (
	hubeauSites = Endpoint{
		Name: "sites",
		Path: "api/v2/hydrometrie/referentiel/sites",
		Fields: []string{
			"bbox", "code_commune_site", "code_cours_eau",
			"code_departement", "code_region", "code_site",
			"code_troncon_hydro_site", "code_zone_hydro_site", "distance",
			"fields", "format", "latitude",
			"libelle_cours_eau", "libelle_site", "longitude",
			"page", "size",
		},
	}
	hubeauStations = Endpoint{
		Name: "stations",
		Path: "api/v2/hydrometrie/referentiel/stations",
		Fields: []string{
			"bbox", "code_commune_station", "code_cours_eau",
			"code_departement", "code_region", "code_sandre_reseau_station",
			"code_site", "code_station", "date_fermeture_station",
			"date_ouverture_station", "distance", "en_service",
			"fields", "format", "latitude",
			"libelle_cours_eau", "libelle_site", "libelle_station",
			"longitude", "page", "size",
		},
	}
	hubeauObsElab = Endpoint{
		Name: "obs_elab",
		Path: "api/v2/hydrometrie/obs_elab",
		Fields: []string{
			"bbox", "code_entite", "cursor",
			"date_debut_obs_elab", "date_fin_obs_elab", "distance",
			"fields", "grandeur_hydro_elab", "latitude",
			"longitude", "resultat_max", "resultat_min",
			"size",
		},
	}
	hubeauObservationsTR = Endpoint{
		Name: "observations_tr",
		Path: "api/v2/hydrometrie/observations_tr",
		Fields: []string{
			"bbox", "code_entite", "code_statut",
			"cursor", "date_debut_obs", "date_fin_obs",
			"distance", "fields", "grandeur_hydro",
			"latitude", "longitude", "size",
			"sort", "timestep",
		},
	}
)

// Elaborated series published by obs_elab: mean daily/monthly flow, daily and
// monthly instantaneous extremes of flow, and maximum instantaneous height.
// deprecatedDailyMean is the retired name of QmnJ.
const deprecatedDailyMean = "QmJ"

var obsElabVariables = []string{"QmnJ", "QmM", "HIXM", "HIXnJ", "QINM", "QINnJ", "QIXM", "QIXnJ"}

// Site attributes that the sites endpoint may return as lists.
var siteLocationFields = []string{
	"code_commune_site",
	"libelle_commune",
	"code_departement",
	"code_region",
	"libelle_region",
	"libelle_departement",
}

var eaufranceNormalizer = hydro.Normalizer{
	Variables: hydro.Mapping{
		hydro.VariableDischarge: "Q",
		hydro.VariableStage:     "H",
	},
	Frequencies: hydro.Mapping{
		hydro.FrequencyDaily:         "nJ",
		hydro.FrequencyMonthly:       "M",
		hydro.FrequencyInstantaneous: realtimeFrequency,
	},
	Statistics: hydro.Mapping{
		hydro.StatisticMean:    "m",
		hydro.StatisticMaximum: "IX",
		hydro.StatisticMinimum: "IN",
	},
}

// EaufranceProvider reads French hydrometry from the hubeau API.
type EaufranceProvider struct {
	exec   *executor
	pages  *pageFetcher
	logger *slog.Logger
	now    func() time.Time
}

// NewEaufranceProvider creates the adapter. An empty baseURL selects the public API.
func NewEaufranceProvider(deps Deps, baseURL string) *EaufranceProvider {
	if baseURL == "" {
		baseURL = eaufranceBaseURL
	}
	exec := newExecutor(eaufranceName, deps)
	return &EaufranceProvider{
		exec:   exec,
		pages:  &pageFetcher{exec: exec, base: baseURL},
		logger: exec.logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *EaufranceProvider) Name() string       { return eaufranceName }
func (p *EaufranceProvider) SiteColumn() string { return "code_station" }

// NormalizeArgs collapses variable, statistic and frequency into one
// grandeur_hydro_elab code such as "QmnJ". Instantaneous requests keep the
// plain variable codes for observations_tr.
func (p *EaufranceProvider) NormalizeArgs(q hydro.Query) (hydro.Args, error) {
	q.Start, q.End = q.Start.UTC(), q.End.UTC()
	if len(q.Variables) == 1 && isObsElabCode(q.Variables[0]) {
		return p.rawCodeArgs(q)
	}
	if q.Frequency == "" {
		q.Frequency = hydro.FrequencyDaily
	}
	args, err := eaufranceNormalizer.Normalize(q)
	if err != nil {
		return hydro.Args{}, err
	}
	if err := hydro.RequireTimes(q.Start, q.End); err != nil {
		return hydro.Args{}, err
	}
	if len(args.Variables) == 0 {
		return hydro.Args{}, &hydro.ValidationError{Field: "variable", Msg: "variable is required", Valid: eaufranceNormalizer.Variables.Keys()}
	}

	if args.Frequency == realtimeFrequency {
		if args.Statistic != "" {
			return hydro.Args{}, &hydro.ValidationError{Field: "statistic", Value: q.Statistic, Msg: "instantaneous observations take no statistic"}
		}
		return args, nil
	}

	if len(args.Variables) > 1 {
		return hydro.Args{}, &hydro.ValidationError{Field: "variable", Value: strings.Join(q.Variables, ","), Msg: "elaborated series accept a single variable"}
	}
	variable := args.Variables[0]
	statistic := args.Statistic
	if statistic == "" {
		statistic = "m"
		if variable == "H" {
			statistic = "IX"
		}
	}
	if variable == "H" && (statistic == "m" || statistic == "IN") {
		return hydro.Args{}, &hydro.ValidationError{
			Field: "statistic",
			Value: q.Statistic,
			Msg:   "stage is only available as a maximum instantaneous value from the Eaufrance API",
		}
	}

	code := variable + statistic + args.Frequency
	if !contains(obsElabVariables, code) {
		return hydro.Args{}, &hydro.ValidationError{Field: "grandeur_hydro_elab", Value: code, Valid: obsElabVariables}
	}
	return hydro.Args{
		Variables: []string{code},
		Start:     args.Start,
		End:       args.End,
	}, nil
}

// rawCodeArgs accepts a grandeur_hydro_elab code given directly as the
// variable. A frequency, when given, must agree with the code's suffix.
func (p *EaufranceProvider) rawCodeArgs(q hydro.Query) (hydro.Args, error) {
	code := q.Variables[0]
	if q.Statistic != "" {
		return hydro.Args{}, &hydro.ValidationError{Field: "statistic", Value: q.Statistic, Msg: code + " already names its statistic"}
	}
	freq, err := eaufranceNormalizer.Normalize(hydro.Query{Frequency: q.Frequency})
	if err != nil {
		return hydro.Args{}, err
	}
	current := code
	if code == deprecatedDailyMean {
		current = "QmnJ"
	}
	if freq.Frequency != "" && !strings.HasSuffix(current, freq.Frequency) {
		return hydro.Args{}, &hydro.ValidationError{Field: "frequency", Value: q.Frequency, Msg: "does not match " + code}
	}
	if err := hydro.RequireTimes(q.Start, q.End); err != nil {
		return hydro.Args{}, err
	}
	if err := hydro.CheckTimeOrder(q.Start, q.End); err != nil {
		return hydro.Args{}, err
	}
	return hydro.Args{Variables: []string{code}, Start: q.Start, End: q.End}, nil
}

func isObsElabCode(v string) bool {
	return v == deprecatedDailyMean || contains(obsElabVariables, v)
}

// GetMetadata downloads the station referential, or the site referential
// when q.Entity is "sites".
func (p *EaufranceProvider) GetMetadata(ctx context.Context, q hydro.MetadataQuery) (*hydro.Metadata, error) {
	if q.Entity == "sites" {
		rows, err := p.pages.Fetch(ctx, hubeauSites, Params{"format": "json"})
		if err != nil {
			return nil, err
		}
		return rowsToMetadata(p.collapseSites(rows), "code_site"), nil
	}

	rows, err := p.pages.Fetch(ctx, hubeauStations, Params{"format": "json"})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		delete(r, "code_sandre_reseau_station")
	}
	return rowsToMetadata(rows, p.SiteColumn()), nil
}

// collapseSites keeps the first value of multi-valued location attributes.
func (p *EaufranceProvider) collapseSites(rows []map[string]any) []map[string]any {
	for _, site := range rows {
		warned := false
		for _, field := range siteLocationFields {
			list, ok := site[field].([]any)
			if !ok {
				continue
			}
			unique := uniqueValues(list)
			if len(unique) > 1 && !warned {
				p.logger.Warn("site has several locations; only the first one is returned",
					"site", toString(site["code_site"]),
					"locations", len(unique),
				)
				warned = true
			}
			if len(unique) == 0 {
				site[field] = nil
			} else {
				site[field] = unique[0]
			}
		}
	}
	return rows
}

func uniqueValues(list []any) []any {
	seen := make(map[string]struct{}, len(list))
	var out []any
	for _, v := range list {
		k := toString(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// GetDataSingleSite clamps the window to the station's service dates when
// metadata is available, then fetches the series in chunks of MaxRecords.
func (p *EaufranceProvider) GetDataSingleSite(ctx context.Context, site string, args hydro.Args, meta *hydro.Metadata) (*hydro.Table, error) {
	start, end := args.Start, args.End
	if row, ok := meta.Find(p.SiteColumn(), site); ok {
		if open, err := parseTimestamp(row["date_ouverture_station"], time.UTC); err == nil && open.After(start) {
			start = open
		}
		if closed, err := parseTimestamp(row["date_fermeture_station"], time.UTC); err == nil && closed.Before(end) {
			end = closed
		}
		if start.After(end) {
			p.logger.Info("station not in service during requested window", "site", site)
			return nil, nil
		}
	}

	if args.Frequency == realtimeFrequency {
		return p.realtime(ctx, site, args.Variables, start, end)
	}

	code := args.Variable()
	unit := chunkMonths
	if strings.HasSuffix(code, "J") {
		unit = chunkDays
	}
	rows, err := fetchChunked(ctx, splitRange(start, end, MaxRecords, unit), func(ctx context.Context, r dateRange) ([]map[string]any, error) {
		return p.obsElab(ctx, Params{
			"code_entite":         site,
			"date_debut_obs_elab": r.Start,
			"date_fin_obs_elab":   r.End,
			"grandeur_hydro_elab": code,
		})
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return hubeauTable(site, rows, "date_obs_elab", "resultat_obs_elab", "code_qualification"), nil
}

// obsElab fetches elaborated observations, upgrading the retired QmJ code.
func (p *EaufranceProvider) obsElab(ctx context.Context, params Params) ([]map[string]any, error) {
	if code, _ := params["grandeur_hydro_elab"].(string); code == deprecatedDailyMean {
		p.logger.Warn("grandeur_hydro_elab QmJ is deprecated, use QmnJ instead")
		params["grandeur_hydro_elab"] = "QmnJ"
	}
	return p.pages.Fetch(ctx, hubeauObsElab, params)
}

// realtime reads observations_tr, which only keeps about a month of history.
func (p *EaufranceProvider) realtime(ctx context.Context, site string, variables []string, start, end time.Time) (*hydro.Table, error) {
	latest := p.now()
	earliest := latest.AddDate(0, -1, 0)
	if start.Before(earliest) {
		start = earliest
	}
	if end.After(latest) {
		end = latest
	}
	if start.After(end) {
		return nil, nil
	}

	rows, err := p.pages.Fetch(ctx, hubeauObservationsTR, Params{
		"code_entite":    site,
		"date_debut_obs": start,
		"date_fin_obs":   end,
		"grandeur_hydro": variables,
	})
	if err != nil {
		return nil, err
	}
	stations := rows[:0]
	for _, r := range rows {
		if toString(r["code_station"]) != "" {
			stations = append(stations, r)
		}
	}
	if len(stations) == 0 {
		return nil, nil
	}
	return hubeauTable(site, stations, "date_obs", "resultat_obs", "code_qualification_obs"), nil
}

func hubeauTable(site string, rows []map[string]any, timeKey, valueKey, qualityKey string) *hydro.Table {
	t := &hydro.Table{Source: eaufranceName, Site: site}
	for _, r := range rows {
		ts, err := parseTimestamp(toString(r[timeKey]), time.UTC)
		if err != nil {
			continue
		}
		rec := hydro.Record{
			Timestamp:   ts.UTC(),
			Series:      hubeauSeries(r),
			Value:       toFloat(r[valueKey]),
			QualityFlag: toString(r[qualityKey]),
			Extra:       make(map[string]string),
		}
		for k, v := range r {
			if k == timeKey || k == valueKey || k == qualityKey {
				continue
			}
			rec.Extra[k] = toString(v)
		}
		t.Records = append(t.Records, rec)
	}
	sort.SliceStable(t.Records, func(i, j int) bool {
		return t.Records[i].Timestamp.Before(t.Records[j].Timestamp)
	})
	return t
}

// hubeauSeries is the elaborated series code, or the measured quantity for
// realtime observations.
func hubeauSeries(row map[string]any) string {
	if code := toString(row["grandeur_hydro_elab"]); code != "" {
		return code
	}
	return toString(row["grandeur_hydro"])
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
