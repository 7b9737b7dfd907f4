package hydro

import (
	"sort"
	"time"
)

// Mapping translates canonical vocabulary into a source-native code.
type Mapping map[string]string

// Keys returns the canonical values accepted by the mapping, sorted.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MapArgument maps every value through m. An empty mapping passes values
// through unchanged. Empty values are dropped.
func MapArgument(name string, values []string, m Mapping) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if len(m) == 0 {
		return append([]string(nil), values...), nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		code, ok := m[v]
		if !ok {
			return nil, &ValidationError{Field: name, Value: v, Valid: m.Keys()}
		}
		out = append(out, code)
	}
	return out, nil
}

func mapScalar(name, value string, m Mapping) (string, error) {
	if value == "" {
		return "", nil
	}
	out, err := MapArgument(name, []string{value}, m)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// Normalizer holds one adapter's mapping tables.
type Normalizer struct {
	Variables   Mapping
	Frequencies Mapping
	Statistics  Mapping
}

// Normalize maps q into source-native Args and rejects start > end.
func (n Normalizer) Normalize(q Query) (Args, error) {
	variables, err := MapArgument("variable", q.Variables, n.Variables)
	if err != nil {
		return Args{}, err
	}
	frequency, err := mapScalar("frequency", q.Frequency, n.Frequencies)
	if err != nil {
		return Args{}, err
	}
	statistic, err := mapScalar("statistic", q.Statistic, n.Statistics)
	if err != nil {
		return Args{}, err
	}
	if err := CheckTimeOrder(q.Start, q.End); err != nil {
		return Args{}, err
	}
	return Args{
		Variables: variables,
		Frequency: frequency,
		Statistic: statistic,
		Start:     q.Start,
		End:       q.End,
	}, nil
}

// CheckTimeOrder rejects start > end when both are supplied.
func CheckTimeOrder(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	if start.After(end) {
		return &ValidationError{
			Field: "end",
			Value: end.Format(time.RFC3339),
			Msg:   "end date must be after start date",
		}
	}
	return nil
}

// RequireTimes rejects a query missing either bound.
func RequireTimes(start, end time.Time) error {
	if start.IsZero() {
		return &ValidationError{Field: "start", Msg: "start time is required"}
	}
	if end.IsZero() {
		return &ValidationError{Field: "end", Msg: "end time is required"}
	}
	return nil
}
