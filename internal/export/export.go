// Package export writes institution records to flat files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/school-atlas/internal/model"
)

// Columns is the ordered header of every export.
var Columns = []string{
	"Name",
	"StudentTotal",
	"InternationalStudentTotal",
	"FacultyTotal",
	"Tuition",
	"Street",
	"City",
	"State",
	"Zipcode",
	"Locale",
	"longitude",
	"latitude",
}

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// WriteFile writes records to path in the given format.
func WriteFile(path, format string, records []model.Institution) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(path, records)
	case FormatCSV, "":
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "export: create file")
		}
		if err := WriteCSV(f, records); err != nil {
			_ = f.Close()
			return err
		}
		return eris.Wrap(f.Close(), "export: close file")
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// WriteCSV writes a header and one row per record. Absent fields are empty
// cells.
func WriteCSV(w io.Writer, records []model.Institution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range records {
		if err := cw.Write(buildRow(r)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// buildRow maps a record to cells in Columns order.
func buildRow(r model.Institution) []string {
	return []string{
		str(r.Name),
		num(r.StudentTotal),
		num(r.InternationalStudentTotal),
		num(r.FacultyTotal),
		num(r.Tuition),
		str(r.Street),
		str(r.City),
		str(r.State),
		str(r.Zipcode),
		str(r.Locale),
		coord(r.Longitude),
		coord(r.Latitude),
	}
}

func str(f model.Field[string]) string {
	return f.OrZero()
}

func num(f model.Field[int]) string {
	if v, ok := f.Get(); ok {
		return strconv.Itoa(v)
	}
	return ""
}

func coord(f model.Field[float64]) string {
	if v, ok := f.Get(); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
