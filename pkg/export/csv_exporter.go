package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is ordered tabular report content. Rows shorter than Columns are
// padded, longer ones truncated, so renderers never misalign cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t Table) cells(row []string) []string {
	cells := make([]string, len(t.Columns))
	copy(cells, row)
	return cells
}

// CSVExporter renders tables as CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the table, header row first.
func (e *CSVExporter) Render(table Table) ([]byte, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("csv export needs at least one column")
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range table.Rows {
		if err := w.Write(table.cells(row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
