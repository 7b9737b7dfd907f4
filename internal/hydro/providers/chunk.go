package providers

import (
	"context"
	"time"
)

type chunkUnit int

const (
	chunkDays chunkUnit = iota
	chunkMonths
)

// dateRange is an inclusive [Start, End] span of calendar dates.
type dateRange struct {
	Start time.Time
	End   time.Time
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// splitRange cuts [start, end] into contiguous, non-overlapping ranges of
// at most limit units each. Ranges cover every date once.
func splitRange(start, end time.Time, limit int, unit chunkUnit) []dateRange {
	if limit < 1 {
		limit = 1
	}
	start, end = truncateDay(start), truncateDay(end)

	var out []dateRange
	for chunkStart := start; !chunkStart.After(end); {
		var chunkEnd time.Time
		switch unit {
		case chunkMonths:
			chunkEnd = chunkStart.AddDate(0, limit, -1)
		default:
			chunkEnd = chunkStart.AddDate(0, 0, limit-1)
		}
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		out = append(out, dateRange{Start: chunkStart, End: chunkEnd})
		chunkStart = chunkEnd.AddDate(0, 0, 1)
	}
	return out
}

// fetchChunked calls fetch for every range in order and concatenates the
// results. It returns nil when every chunk came back empty.
func fetchChunked(ctx context.Context, ranges []dateRange, fetch func(ctx context.Context, r dateRange) ([]map[string]any, error)) ([]map[string]any, error) {
	var all []map[string]any
	for _, r := range ranges {
		rows, err := fetch(ctx, r)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}
