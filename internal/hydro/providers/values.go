package providers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts the layouts the upstream services use. Values
// without an offset are read in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// toString renders a decoded JSON scalar. Lists render their first element.
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		if len(t) == 0 {
			return ""
		}
		return toString(t[0])
	default:
		return fmt.Sprint(t)
	}
}

// toFloat converts a decoded JSON value. Empty or unparsable values are nil.
func toFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return hydro.Float(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return hydro.Float(f)
	}
	return nil
}

// rowsToMetadata builds a metadata table whose first column is siteColumn
// followed by the remaining keys sorted.
func rowsToMetadata(rows []map[string]any, siteColumn string) *hydro.Metadata {
	seen := map[string]struct{}{siteColumn: {}}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	m := hydro.NewMetadata(append([]string{siteColumn}, cols...)...)
	for _, r := range rows {
		row := make(map[string]string, len(r))
		for k, v := range r {
			row[k] = toString(v)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}
