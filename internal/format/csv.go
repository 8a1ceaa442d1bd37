package format

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"document-deidentifier/internal/deid"
)

// CSV handles comma-separated tables with a header row. Every cell is kept
// as text; empty cells are empty strings.
type CSV struct{}

// Name implements Adapter.
func (CSV) Name() string { return "csv" }

// Parse implements Adapter.
func (CSV) Parse(path string) (*Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse %s: no header row", path)
	}

	columns := uniqueColumns(records[0])
	cols := make([]deid.Value, len(columns))
	for i, c := range columns {
		cols[i] = deid.Text(c)
	}
	rows := make([]deid.Value, 0, len(records)-1)
	for _, rec := range records[1:] {
		fields := make([]deid.Field, len(columns))
		for i, c := range columns {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			fields[i] = deid.KV(c, deid.Text(cell))
		}
		rows = append(rows, deid.Mapping(fields...))
	}

	v := deid.Mapping(append(fileInfo(path),
		deid.KV("columns", deid.Sequence(cols...)),
		deid.KV("rows", deid.Sequence(rows...)),
		deid.KV("row_count", deid.Scalar(len(rows))),
		deid.KV("column_count", deid.Scalar(len(columns))),
	)...)
	return &Document{Value: v}, nil
}

// Save writes .csv, .json or .txt; any other extension is written as a
// sibling .csv file.
func (CSV) Save(doc *Document, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return writeJSON(path, doc.Value)
	case ".csv":
	case ".txt":
		columns, rows, err := table(doc.Value)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.WriteString(strings.Join(columns, ",") + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, ",") + "\n")
		}
		return writeFile(path, []byte(b.String()))
	default:
		path = withExt(path, ".csv")
	}

	columns, rows, err := table(doc.Value)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return "", err
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

// table extracts the header and the rows in column order.
func table(v deid.Value) ([]string, [][]string, error) {
	colsV, ok := v.Get("columns")
	if !ok || colsV.Kind() != deid.KindSequence {
		return nil, nil, fmt.Errorf("document has no columns")
	}
	columns := make([]string, 0, colsV.Len())
	for _, c := range colsV.Items() {
		columns = append(columns, c.Str())
	}

	rowsV, _ := v.Get("rows")
	rows := make([][]string, 0, rowsV.Len())
	for i, r := range rowsV.Items() {
		if r.Kind() != deid.KindMapping {
			return nil, nil, fmt.Errorf("row %d is a %s, not a mapping", i, r.Kind())
		}
		row := make([]string, len(columns))
		for j, c := range columns {
			if cell, ok := r.Get(c); ok {
				row[j] = cell.Str()
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// uniqueColumns renames repeated headers to name.1, name.2, ...
func uniqueColumns(header []string) []string {
	used := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := h
		for n := 1; used[name]; n++ {
			name = h + "." + strconv.Itoa(n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}
