package providers

import (
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// BOM publishes in local standard time, so eastern states all map to the
// non-DST Queensland zone.
var jurisdictionZones = map[string]string{
	"ACT":    "Australia/Queensland",
	"ACTNSW": "Australia/Queensland",
	"NSW":    "Australia/Queensland",
	"QLD":    "Australia/Queensland",
	"TAS":    "Australia/Queensland",
	"VIC":    "Australia/Queensland",
	"SA":     "Australia/Darwin",
	"NT":     "Australia/Darwin",
	"WA":     "Australia/Perth",
}

// Jurisdiction extracts the jurisdiction label from a BOM data owner name,
// e.g. "NSW - WaterNSW" -> "NSW".
func Jurisdiction(owner string) string {
	label, _, _ := strings.Cut(owner, " -")
	return strings.TrimSpace(label)
}

// ResolveTimezone returns the explicit zone when given, otherwise the zone
// of the owner's jurisdiction. Unknown jurisdictions fall back to UTC.
func ResolveTimezone(explicit, owner string, logger *slog.Logger) (*time.Location, error) {
	if explicit != "" {
		loc, err := time.LoadLocation(explicit)
		if err != nil {
			return nil, &hydro.ValidationError{Field: "timezone", Value: explicit, Msg: "invalid timezone " + explicit + ": not an IANA zone name"}
		}
		return loc, nil
	}

	j := Jurisdiction(owner)
	name, ok := jurisdictionZones[j]
	if !ok {
		if logger != nil {
			logger.Warn("jurisdiction not found, returning datetimes in UTC", "jurisdiction", j, "owner", owner)
		}
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return loc, nil
}
