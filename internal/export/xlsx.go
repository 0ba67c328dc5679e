package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/school-atlas/internal/model"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Schools"

// WriteXLSX writes records to a workbook with numeric cells for counts and
// coordinates. Absent fields are empty cells.
func WriteXLSX(path string, records []model.Institution) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}

	for _, r := range records {
		row := sheet.AddRow()
		addString(row, r.Name)
		addInt(row, r.StudentTotal)
		addInt(row, r.InternationalStudentTotal)
		addInt(row, r.FacultyTotal)
		addInt(row, r.Tuition)
		addString(row, r.Street)
		addString(row, r.City)
		addString(row, r.State)
		addString(row, r.Zipcode)
		addString(row, r.Locale)
		addFloat(row, r.Longitude)
		addFloat(row, r.Latitude)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

func addString(row *xlsx.Row, f model.Field[string]) {
	cell := row.AddCell()
	if v, ok := f.Get(); ok {
		cell.SetString(v)
	}
}

func addInt(row *xlsx.Row, f model.Field[int]) {
	cell := row.AddCell()
	if v, ok := f.Get(); ok {
		cell.SetInt(v)
	}
}

func addFloat(row *xlsx.Row, f model.Field[float64]) {
	cell := row.AddCell()
	if v, ok := f.Get(); ok {
		cell.SetFloat(v)
	}
}
