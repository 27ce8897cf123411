// Package fetcher reads tabular input files into memory.
package fetcher

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// Table holds a parsed worksheet: one header row plus data rows. Rows may be
// ragged; missing trailing cells read as empty strings via Cell.
type Table struct {
	Header []string
	Rows   [][]string
}

// Cell returns the value of row r at column index c, or "" when the row is
// shorter than the header.
func (t *Table) Cell(r, c int) string {
	if c < 0 || c >= len(t.Rows[r]) {
		return ""
	}
	return t.Rows[r][c]
}

// ReadTable reads an XLSX file and returns the first row as the header and
// the remaining rows as data.
func ReadTable(path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: %s: empty sheet", path)
	}

	t := &Table{Header: rowToStrings(sheet.Rows[0])}
	for _, row := range sheet.Rows[1:] {
		t.Rows = append(t.Rows, rowToStrings(row))
	}

	return t, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
