// Package export writes scraped school records to CSV, JSON, or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/jedeschule/schulsync/internal/model"
)

// Format selects the output encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatCSV
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "json"
	}
}

// ParseFormat converts the CLI flag value into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return 0, eris.Errorf("unknown output format %q (valid: json, csv, xlsx)", s)
	}
}

// DetectFormat guesses the format from a file extension, defaulting to JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatJSON
	}
}

// columns defines the ordered tabular output columns.
var columns = []string{
	"id",
	"name",
	"address",
	"address2",
	"zip",
	"city",
	"website",
	"email",
	"school_type",
	"legal_status",
	"provider",
	"director",
	"phone",
	"fax",
	"latitude",
	"longitude",
}

// Write encodes schools to w in the given format.
func Write(w io.Writer, format Format, schools []model.School) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, schools)
	case FormatXLSX:
		return writeXLSX(w, schools)
	default:
		return writeJSON(w, schools)
	}
}

// WriteFile encodes schools to a file, creating parent directories as needed.
func WriteFile(path string, format Format, schools []model.School) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "export: create output directory")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	if err := Write(f, format, schools); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "export: close file")
}

func writeJSON(w io.Writer, schools []model.School) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if schools == nil {
		schools = []model.School{}
	}
	return eris.Wrap(enc.Encode(schools), "export: encode json")
}

func writeCSV(w io.Writer, schools []model.School) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, s := range schools {
		if err := cw.Write(buildRow(s)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func writeXLSX(w io.Writer, schools []model.School) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Schulen")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}
	for _, s := range schools {
		row := sheet.AddRow()
		for _, value := range buildRow(s) {
			row.AddCell().SetString(value)
		}
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// buildRow maps a School to the tabular column order.
func buildRow(s model.School) []string {
	return []string{
		s.ID,
		s.Name,
		s.Address,
		s.Address2,
		s.Zip,
		s.City,
		s.Website,
		s.Email,
		s.SchoolType,
		s.LegalStatus,
		s.Provider,
		s.Director,
		s.Phone,
		s.Fax,
		coord(s.Latitude),
		coord(s.Longitude),
	}
}

func coord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
