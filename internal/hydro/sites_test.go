package hydro

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMergeSites(t *testing.T) {
	got := MergeSites([]string{"A", "B", "A"}, []string{"B", "C", " "})
	if strings.Join(got, ",") != "A,B,C" {
		t.Errorf("MergeSites = %v, want [A B C]", got)
	}
}

func TestResolveSitesMissingColumn(t *testing.T) {
	m := NewMetadata("name")
	_, err := ResolveSites(nil, m, "site_no", true)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Value != "site_no" {
		t.Fatalf("err = %v, want ValidationError naming site_no", err)
	}
}

func TestResolveSitesEmpty(t *testing.T) {
	m := NewMetadata("site_no")
	_, err := ResolveSites(nil, m, "site_no", true)
	if !errors.Is(err, ErrNoSites) {
		t.Fatalf("err = %v, want ErrNoSites", err)
	}
}

func TestMetadataCSVRoundTrip(t *testing.T) {
	m := NewMetadata("site_no", "station_nm")
	m.AddRow(map[string]string{"site_no": "01010000", "station_nm": "St. John River, ME"})
	m.AddRow(map[string]string{"site_no": "01010500", "station_nm": "St. John River at Dickey"})

	var buf bytes.Buffer
	if err := m.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	got, err := ReadMetadataCSV(&buf)
	if err != nil {
		t.Fatalf("ReadMetadataCSV: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("rows = %d, want 2", got.Len())
	}
	row, ok := got.Find("site_no", "01010000")
	if !ok {
		t.Fatal("row 01010000 not found")
	}
	if row["station_nm"] != "St. John River, ME" {
		t.Errorf("station_nm = %q", row["station_nm"])
	}
}

func TestWithMetadataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.csv")
	if err := os.WriteFile(path, []byte("site_id,name\nA,first\nB,second\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewClient(&fakeAdapter{}, WithMetadataFile(path))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	sites, err := c.GetSites(nil, true)
	if err != nil {
		t.Fatalf("GetSites: %v", err)
	}
	if strings.Join(sites, ",") != "A,B" {
		t.Errorf("sites = %v, want [A B]", sites)
	}
}

func TestWithMetadataFileMissing(t *testing.T) {
	_, err := NewClient(&fakeAdapter{}, WithMetadataFile(filepath.Join(t.TempDir(), "missing.csv")))
	if err == nil {
		t.Fatal("expected error for missing metadata file")
	}
}

func TestMergeRecordsReplacesSameTimestamp(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC) }
	existing := []Record{{Timestamp: day(1), Value: Float(1)}, {Timestamp: day(2), Value: Float(2)}}
	incoming := []Record{{Timestamp: day(3), Value: Float(3)}, {Timestamp: day(2), Value: Float(20)}}

	got := MergeRecords(existing, incoming)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if *got[1].Value != 20 {
		t.Errorf("day 2 value = %v, want 20", *got[1].Value)
	}
	if !got[2].Timestamp.Equal(day(3)) {
		t.Errorf("last timestamp = %v, want %v", got[2].Timestamp, day(3))
	}

	w := Window(got, day(2), day(2))
	if len(w) != 1 {
		t.Errorf("Window len = %d, want 1", len(w))
	}
}

func TestMergeRecordsKeepsSeriesApart(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := []Record{
		{Timestamp: ts, Series: "00060:00003", Value: Float(10)},
		{Timestamp: ts, Series: "00060:00001", Value: Float(15)},
		{Timestamp: ts, Series: "00060:00002", Value: Float(5)},
	}

	got := MergeRecords(nil, tick)
	got = MergeRecords(got, tick)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"00060:00001", "00060:00002", "00060:00003"}
	for i, r := range got {
		if r.Series != want[i] {
			t.Errorf("record %d series = %q, want %q", i, r.Series, want[i])
		}
	}

	updated := MergeRecords(got, []Record{{Timestamp: ts, Series: "00060:00003", Value: Float(11)}})
	if len(updated) != 3 || *updated[2].Value != 11 {
		t.Errorf("updated = %+v", updated)
	}
}
