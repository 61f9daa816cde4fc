package generate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyCSV is returned for an upload with no header row.
var ErrEmptyCSV = errors.New("csv file is empty")

// Table is one uploaded export. Rows are keyed by the header column names,
// repeated names are suffixed ".1", ".2" and so on so no value is lost.
type Table struct {
	Name    string
	Columns []string
	Rows    []map[string]string
}

// ParseCSV reads a CSV export whose first row holds the column names.
// Rows shorter than the header are padded with empty values.
func ParseCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s header: %w", name, err)
	}

	columns := columnNames(header)
	table := &Table{Name: name, Columns: columns, Rows: []map[string]string{}}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// columnNames cleans the header row and makes every name unique.
func columnNames(header []string) []string {
	columns := make([]string, len(header))
	counts := make(map[string]int, len(header))

	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if col == "" {
			col = fmt.Sprintf("column_%d", i+1)
		}

		n := counts[col]
		for n > 0 {
			counts[col] = n + 1
			col = fmt.Sprintf("%s.%d", col, n)
			n = counts[col]
		}
		counts[col] = 1

		columns[i] = col
	}

	return columns
}
