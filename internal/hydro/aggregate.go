package hydro

import (
	"sort"
	"time"
)

type recordKey struct {
	ts     time.Time
	series string
}

// MergeRecords combines two record lists into one ordered by timestamp, then
// series. Records are identified by timestamp and series: when both lists
// carry the same one the incoming record wins, so refetching an overlapping
// window replaces provisional values instead of duplicating them.
func MergeRecords(existing, incoming []Record) []Record {
	byKey := make(map[recordKey]int, len(existing)+len(incoming))
	out := make([]Record, 0, len(existing)+len(incoming))

	add := func(r Record) {
		key := recordKey{ts: r.Timestamp.UTC(), series: r.Series}
		if i, ok := byKey[key]; ok {
			out[i] = r
			return
		}
		byKey[key] = len(out)
		out = append(out, r)
	}
	for _, r := range existing {
		add(r)
	}
	for _, r := range incoming {
		add(r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Series < out[j].Series
	})
	return out
}

// Window returns the records with from <= Timestamp <= to. A zero bound is open.
func Window(records []Record, from, to time.Time) []Record {
	var out []Record
	for _, r := range records {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}
