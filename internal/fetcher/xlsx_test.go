package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Hoja1")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadTable(t *testing.T) {
	path := writeTestXLSX(t, [][]string{
		{"ID_PRESTADOR", "NOMBRE_FANTASIA"},
		{"1", "Clinica Uno"},
		{"2", "Sanatorio Dos"},
	})

	tbl, err := ReadTable(path, XLSXOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ID_PRESTADOR", "NOMBRE_FANTASIA"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Clinica Uno", tbl.Cell(0, 1))
	assert.Equal(t, "2", tbl.Cell(1, 0))
}

func TestReadTable_RaggedRows(t *testing.T) {
	path := writeTestXLSX(t, [][]string{
		{"A", "B", "C"},
		{"1"},
	})

	tbl, err := ReadTable(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1", tbl.Cell(0, 0))
	assert.Equal(t, "", tbl.Cell(0, 2))
}

func TestReadTable_MissingFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestReadTable_SheetByName(t *testing.T) {
	path := writeTestXLSX(t, [][]string{{"X"}, {"1"}})

	_, err := ReadTable(path, XLSXOptions{SheetName: "NoSuch"})
	assert.Error(t, err)

	tbl, err := ReadTable(path, XLSXOptions{SheetName: "Hoja1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, tbl.Header)
}
