// Package tabular reads the uploaded CSV into row records. The first line is
// the header; every following line becomes one Row keyed by column name.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Row maps a column name to the cell value for one record.
type Row map[string]string

// Get returns the trimmed cell value, or "" when the column is absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// ReadRows parses CSV input. It returns the rows in file order together with
// the header columns. Short records are tolerated: missing trailing cells
// simply leave those columns unset for that row.
func ReadRows(r io.Reader) ([]Row, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("invalid csv header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("csv read failed at row %d: %w", len(rows)+1, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if col == "" || i >= len(rec) {
				continue
			}
			row[col] = rec[i]
		}
		rows = append(rows, row)
	}

	return rows, columns, nil
}
