package hydro

import (
	"sort"
	"time"
)

// Canonical vocabulary exposed to callers. Each adapter maps these to its
// own source-native codes.
const (
	VariableDischarge = "discharge"
	VariableStage     = "stage"

	FrequencyDaily         = "daily"
	FrequencyMonthly       = "monthly"
	FrequencyInstantaneous = "instantaneous"

	StatisticMean    = "mean"
	StatisticMaximum = "maximum"
	StatisticMinimum = "minimum"
)

// Query is a source-agnostic data request. A scalar variable is a
// one-element Variables list. Zero Start/End mean "not supplied".
type Query struct {
	Variables []string
	Frequency string
	Statistic string
	Start     time.Time
	End       time.Time
}

// Args is a Query after an adapter has translated it into source-native codes.
type Args struct {
	Variables []string
	Frequency string
	Statistic string
	Start     time.Time
	End       time.Time

	// StartParam/EndParam hold the wire form of Start/End for sources that
	// only accept one fixed layout. Empty when the adapter formats per request.
	StartParam string
	EndParam   string
}

// Variable returns the first mapped variable, or "" if none was requested.
func (a Args) Variable() string {
	if len(a.Variables) == 0 {
		return ""
	}
	return a.Variables[0]
}

// Record is one observation. Value is nil when the source reports a gap.
// Series names the upstream series the record belongs to when one request
// can return several at the same timestamps (NWIS "00060:00003", Hub'Eau
// "QmnJ"); it is empty for single-series sources.
type Record struct {
	Timestamp   time.Time         `json:"timestamp"`
	Series      string            `json:"series,omitempty"`
	Value       *float64          `json:"value"`
	QualityFlag string            `json:"qualityFlag"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Float returns a pointer to v, for building Records.
func Float(v float64) *float64 {
	return &v
}

// Table is the time series returned for a single site.
// Records are expected to be ordered by Timestamp ascending.
type Table struct {
	Source  string   `json:"source"`
	Site    string   `json:"site"`
	Records []Record `json:"records"`
}

// ExtraColumns returns the sorted union of source-specific column names.
func (t *Table) ExtraColumns() []string {
	seen := make(map[string]struct{})
	for _, r := range t.Records {
		for k := range r.Extra {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Status is the outcome of fetching one site.
type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
	StatusFailed Status = "failed"
)

// SiteResult is the per-site outcome of a Client.GetData run.
// Table is set only for StatusOK, Err only for StatusFailed.
type SiteResult struct {
	Site   string `json:"site"`
	Status Status `json:"status"`
	Table  *Table `json:"table,omitempty"`
	Err    error  `json:"-"`
}

// NoData reports whether the site produced zero records.
func (r SiteResult) NoData() bool {
	return r.Status == StatusNoData
}

// Results holds every site's outcome in request order.
type Results struct {
	RunID  string
	Sites  []string
	BySite map[string]SiteResult
}

// Tables returns the tables of all successful sites, keyed by site.
func (r *Results) Tables() map[string]*Table {
	out := make(map[string]*Table, len(r.BySite))
	for site, res := range r.BySite {
		if res.Status == StatusOK {
			out[site] = res.Table
		}
	}
	return out
}

// Failed returns the sites whose fetch failed, in request order.
func (r *Results) Failed() []SiteResult {
	var failed []SiteResult
	for _, site := range r.Sites {
		if res, ok := r.BySite[site]; ok && res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}
