package hydro

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Metadata is a site table, one row per site. Columns keeps the original
// column order so the table can be written back out.
type Metadata struct {
	Columns []string
	Rows    []map[string]string
}

func NewMetadata(columns ...string) *Metadata {
	return &Metadata{Columns: append([]string(nil), columns...)}
}

func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}

func (m *Metadata) HasColumn(name string) bool {
	if m == nil {
		return false
	}
	for _, c := range m.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddRow appends a row, registering any unseen columns.
func (m *Metadata) AddRow(row map[string]string) {
	for k := range row {
		if !m.HasColumn(k) {
			m.Columns = append(m.Columns, k)
		}
	}
	m.Rows = append(m.Rows, row)
}

// Append adds every row of other.
func (m *Metadata) Append(other *Metadata) {
	if other == nil {
		return
	}
	for _, c := range other.Columns {
		if !m.HasColumn(c) {
			m.Columns = append(m.Columns, c)
		}
	}
	m.Rows = append(m.Rows, other.Rows...)
}

// Values returns the column's values in row order.
func (m *Metadata) Values(column string) []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Rows))
	for _, r := range m.Rows {
		out = append(out, r[column])
	}
	return out
}

// Find returns the first row whose column equals value.
func (m *Metadata) Find(column, value string) (map[string]string, bool) {
	if m == nil {
		return nil, false
	}
	for _, r := range m.Rows {
		if r[column] == value {
			return r, true
		}
	}
	return nil, false
}

// WriteCSV writes the table with a header row.
func (m *Metadata) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(m.Columns); err != nil {
		return err
	}
	rec := make([]string, len(m.Columns))
	for _, r := range m.Rows {
		for i, c := range m.Columns {
			rec[i] = r[c]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMetadataCSV parses a CSV with a header row.
func ReadMetadataCSV(r io.Reader) (*Metadata, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("metadata: empty file")
		}
		return nil, fmt.Errorf("metadata: read header: %w", err)
	}
	m := NewMetadata(header...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, c := range header {
			if i < len(rec) {
				row[c] = rec[i]
			}
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}

// LoadMetadataFile reads a metadata CSV from path.
func LoadMetadataFile(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	defer f.Close()
	return ReadMetadataCSV(f)
}
