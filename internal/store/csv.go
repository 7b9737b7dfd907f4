package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// CSVStore writes one <dir>/<site>.csv file per site.
type CSVStore struct {
	dir string
}

// NewCSVStore creates dir if it does not exist.
func NewCSVStore(dir string) (*CSVStore, error) {
	if dir == "" {
		return nil, errors.New("csv store: output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv store: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// Path is the file a site's table is written to.
func (s *CSVStore) Path(site string) string {
	return filepath.Join(s.dir, site+".csv")
}

// Write creates the site file, or on an existing file overwrites it,
// appends rows without a header, or fails with ErrExists.
func (s *CSVStore) Write(ctx context.Context, t *hydro.Table, mode hydro.WriteMode) error {
	path := s.Path(t.Site)

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	header := true
	if _, err := os.Stat(path); err == nil {
		switch mode {
		case hydro.WriteOverwrite:
		case hydro.WriteAppend:
			flag = os.O_WRONLY | os.O_APPEND
			header = false
		default:
			return &hydro.ErrExists{Target: path}
		}
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	if err := writeTable(f, t, header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeTable(f *os.File, t *hydro.Table, header bool) error {
	extras := t.ExtraColumns()
	w := csv.NewWriter(f)
	if header {
		if err := w.Write(append([]string{"timestamp", "value", "quality_flag"}, extras...)); err != nil {
			return err
		}
	}
	rec := make([]string, 3+len(extras))
	for _, r := range t.Records {
		rec[0] = r.Timestamp.Format(time.RFC3339)
		rec[1] = ""
		if r.Value != nil {
			rec[1] = strconv.FormatFloat(*r.Value, 'f', -1, 64)
		}
		rec[2] = r.QualityFlag
		for i, c := range extras {
			rec[3+i] = r.Extra[c]
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteMetadata saves a metadata table to path, creating parent directories.
func WriteMetadata(path string, m *hydro.Metadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var _ hydro.Sink = (*CSVStore)(nil)
