package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func table(source, site string, days ...int) *hydro.Table {
	t := &hydro.Table{Source: source, Site: site}
	for _, d := range days {
		t.Records = append(t.Records, hydro.Record{Timestamp: day(d), Value: hydro.Float(float64(d))})
	}
	return t
}

func TestMemoryStoreWriteModes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)

	if err := s.Write(ctx, table("nwis", "A", 1, 2), hydro.WriteReject); err != nil {
		t.Fatalf("first write: %v", err)
	}

	var exists *hydro.ErrExists
	if err := s.Write(ctx, table("nwis", "A", 3), hydro.WriteReject); !errors.As(err, &exists) {
		t.Fatalf("second reject write: err = %v, want ErrExists", err)
	}

	if err := s.Write(ctx, table("nwis", "A", 2, 3), hydro.WriteAppend); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.GetLatest("nwis", "A")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if len(got.Records) != 3 {
		t.Errorf("after append records = %d, want 3", len(got.Records))
	}

	if err := s.Write(ctx, table("nwis", "A", 5), hydro.WriteOverwrite); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.GetLatest("nwis", "A")
	if len(got.Records) != 1 || !got.Records[0].Timestamp.Equal(day(5)) {
		t.Errorf("after overwrite records = %+v", got.Records)
	}

	if _, err := s.GetLatest("bom", "A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other source: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3, 0)
	if err := s.Write(ctx, table("bom", "410730", 1, 2, 3, 4, 5), hydro.WriteAppend); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetLatest("bom", "410730")
	if len(got.Records) != 3 || !got.Records[0].Timestamp.Equal(day(3)) {
		t.Errorf("count retention kept %+v", got.Records)
	}

	s = NewMemoryStore(0, 48*time.Hour)
	s.now = func() time.Time { return day(5) }
	if err := s.Write(ctx, table("bom", "410730", 1, 2, 3, 4, 5), hydro.WriteAppend); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetLatest("bom", "410730")
	if len(got.Records) != 3 || !got.Records[0].Timestamp.Equal(day(3)) {
		t.Errorf("age retention kept %+v", got.Records)
	}
}

func TestMemoryStoreGetRange(t *testing.T) {
	s := NewMemoryStore(0, 0)
	if err := s.Write(context.Background(), table("eaufrance", "K0010010", 1, 2, 3, 4), hydro.WriteReject); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRange("eaufrance", "K0010010", day(2), day(3))
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("records = %d, want 2", len(got))
	}

	if _, err := s.GetRange("eaufrance", "K0010010", day(10), day(11)); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty window: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreAppendKeepsParallelSeries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)
	tick := &hydro.Table{Source: "nwis", Site: "01646500"}
	for _, stat := range []string{"00001", "00002", "00003"} {
		tick.Records = append(tick.Records, hydro.Record{
			Timestamp: day(1),
			Series:    "00060:" + stat,
			Value:     hydro.Float(1),
			Extra:     map[string]string{"parameter_cd": "00060", "stat_cd": stat},
		})
	}

	for i := 0; i < 2; i++ {
		if err := s.Write(ctx, tick, hydro.WriteAppend); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
		got, _ := s.GetLatest("nwis", "01646500")
		if len(got.Records) != 3 {
			t.Fatalf("after tick %d records = %d, want 3", i+1, len(got.Records))
		}
	}
}
