package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/school-atlas/internal/model"
)

func sampleRecords() []model.Institution {
	return []model.Institution{
		{
			Name:                      model.Some("University of Michigan"),
			StudentTotal:              model.Some(46002),
			InternationalStudentTotal: model.Some(7211),
			FacultyTotal:              model.Some(6771),
			Tuition:                   model.Some(49350),
			Street:                    model.Some("500 S State St"),
			City:                      model.Some("Ann Arbor"),
			State:                     model.Some("MI"),
			Zipcode:                   model.Some("48109"),
			Locale:                    model.Some("City"),
			Longitude:                 model.Some(-83.7382),
			Latitude:                  model.Some(42.278),
		},
		{
			Name:    model.Some("Sparse College, Inc."),
			Tuition: model.Absent[int](model.ErrMalformed),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{
		"University of Michigan", "46002", "7211", "6771", "49350",
		"500 S State St", "Ann Arbor", "MI", "48109", "City", "-83.7382", "42.278",
	}, rows[1])
	assert.Equal(t, []string{"Sparse College, Inc.", "", "", "", "", "", "", "", "", "", "", ""}, rows[2])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "Name,StudentTotal,InternationalStudentTotal,FacultyTotal,Tuition,Street,City,State,Zipcode,Locale,longitude,latitude\n", buf.String())
}

func TestWriteFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schools_output.csv")
	require.NoError(t, WriteFile(path, FormatCSV, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "University of Michigan,46002")
}

func TestWriteFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schools.xlsx")
	require.NoError(t, WriteFile(path, FormatXLSX, sampleRecords()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "Name", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "latitude", sheet.Rows[0].Cells[11].String())
	assert.Equal(t, "University of Michigan", sheet.Rows[1].Cells[0].String())
	n, err := sheet.Rows[1].Cells[1].Int()
	require.NoError(t, err)
	assert.Equal(t, 46002, n)
	lat, err := sheet.Rows[1].Cells[11].Float()
	require.NoError(t, err)
	assert.InDelta(t, 42.278, lat, 0.0001)
	assert.Equal(t, "Sparse College, Inc.", sheet.Rows[2].Cells[0].String())
}

func TestWriteFile_UnknownFormat(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "x"), "parquet", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestWriteFile_BadPath(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "x.csv"), FormatCSV, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: create file")
}
