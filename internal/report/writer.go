package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Header is the first line of every report.
var Header = []string{"AreaName", "AreaType", "NTIA Speed Code", "NTIA Speed Range", "Percentage", "Count", "Address Count"}

func (r Row) strings() []string {
	return []string{
		r.AreaName,
		r.AreaType,
		strconv.Itoa(r.Code),
		r.Label,
		r.Percentage.String(),
		strconv.FormatInt(r.Count, 10),
		strconv.FormatInt(r.Total, 10),
	}
}

// WriteCSV writes the header and rows to w.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.strings()); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "report: flush csv")
	}
	return nil
}

// WriteCSVFile writes rep to dir/<name>.csv and returns the path.
func WriteCSVFile(dir string, rep Report) (string, error) {
	path := filepath.Join(dir, rep.Name()+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := WriteCSV(f, rep.Rows); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "report: close %s", path)
	}
	return path, nil
}

// WriteXLSX writes one sheet per report, named after the report, to path.
func WriteXLSX(path string, reports []Report) error {
	f := xlsx.NewFile()
	for _, rep := range reports {
		sheet, err := f.AddSheet(rep.Name())
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", rep.Name())
		}
		hdr := sheet.AddRow()
		for _, h := range Header {
			hdr.AddCell().SetString(h)
		}
		for _, r := range rep.Rows {
			row := sheet.AddRow()
			row.AddCell().SetString(r.AreaName)
			row.AddCell().SetString(r.AreaType)
			row.AddCell().SetInt(r.Code)
			row.AddCell().SetString(r.Label)
			row.AddCell().SetFloat(r.Percentage.InexactFloat64())
			row.AddCell().SetInt64(r.Count)
			row.AddCell().SetInt64(r.Total)
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
