// Package roster turns tabular class rosters into records the attendance
// service can import.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/checkin/internal/models"
	"github.com/noah-isme/checkin/pkg/config"
	appErrors "github.com/noah-isme/checkin/pkg/errors"
	"github.com/noah-isme/checkin/pkg/export"
)

// Column names expected in the roster header.
const (
	ColumnCourse    = "Course"
	ColumnFirstName = "First Name"
	ColumnLastName  = "Last Name"
	ColumnGender    = "Gender"
	ColumnGrade     = "Grade"
)

var requiredColumns = []string{ColumnCourse, ColumnFirstName, ColumnLastName, ColumnGender, ColumnGrade}

// Headers of the roster sheet produced after an import; Date and Status are
// left blank for manual completion.
var ExportHeaders = []string{"Course", "Student", "Gender", "Grade", "Date", "Status"}

// Row is one raw roster line.
type Row struct {
	Course    string
	FirstName string
	LastName  string
	Gender    string
	Grade     string
}

// Parse normalises raw rows. The first prefixSkip characters of every course
// code are dropped (an institutional prefix) before title-casing.
func Parse(rows []Row, prefixSkip int) ([]models.RosterRecord, error) {
	if prefixSkip < config.MinRosterPrefixSkip || prefixSkip > config.MaxRosterPrefixSkip {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("course prefix length must be between %d and %d", config.MinRosterPrefixSkip, config.MaxRosterPrefixSkip))
	}

	records := make([]models.RosterRecord, 0, len(rows))
	for i, row := range rows {
		if err := checkRequired(i+1, row); err != nil {
			return nil, err
		}

		course := []rune(row.Course)
		if len(course) > prefixSkip {
			course = course[prefixSkip:]
		} else {
			course = nil
		}
		class := models.TitleCase(strings.TrimSpace(string(course)))
		if class == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("row %d: course %q is empty once its %d-character prefix is removed", i+1, row.Course, prefixSkip))
		}

		records = append(records, models.RosterRecord{
			Class:    class,
			FullName: models.TitleCase(strings.TrimSpace(row.FirstName) + " " + strings.TrimSpace(row.LastName)),
			Gender:   capitalize(strings.TrimSpace(row.Gender)),
			Grade:    strings.TrimSpace(row.Grade),
		})
	}
	return records, nil
}

func checkRequired(line int, row Row) error {
	fields := []struct{ name, value string }{
		{ColumnCourse, row.Course},
		{ColumnFirstName, row.FirstName},
		{ColumnLastName, row.LastName},
		{ColumnGender, row.Gender},
		{ColumnGrade, row.Grade},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("row %d: %s is missing", line, f.name))
		}
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// ReadCSV reads a roster CSV whose first line is the header.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	table, err := reader.ReadAll()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "roster is not valid CSV")
	}
	return rowsFromTable(table)
}

// ReadXLSX reads a roster from a workbook sheet; an empty sheet name selects the first sheet.
func ReadXLSX(r io.Reader, sheet string) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "roster is not a readable workbook")
	}
	defer f.Close() //nolint:errcheck

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "workbook has no sheets")
		}
		sheet = sheets[0]
	}
	table, err := f.GetRows(sheet)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("read sheet %q", sheet))
	}
	return rowsFromTable(table)
}

// rowsFromTable maps a header-first table onto rows, skipping blank lines.
func rowsFromTable(table [][]string) ([]Row, error) {
	if len(table) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster is empty")
	}

	columns := make(map[string]int, len(table[0]))
	for i, name := range table[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster header is missing: "+strings.Join(missing, ", "))
	}

	cell := func(line []string, name string) string {
		if i := columns[name]; i < len(line) {
			return line[i]
		}
		return ""
	}

	rows := make([]Row, 0, len(table)-1)
	for _, line := range table[1:] {
		if isBlank(line) {
			continue
		}
		rows = append(rows, Row{
			Course:    cell(line, ColumnCourse),
			FirstName: cell(line, ColumnFirstName),
			LastName:  cell(line, ColumnLastName),
			Gender:    cell(line, ColumnGender),
			Grade:     cell(line, ColumnGrade),
		})
	}
	return rows, nil
}

func isBlank(line []string) bool {
	for _, v := range line {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ExportDataset lays out imported records as the roster sheet.
func ExportDataset(records []models.RosterRecord) export.Dataset {
	rows := make([]map[string]string, len(records))
	for i, rec := range records {
		rows[i] = map[string]string{
			"Course":  rec.Class,
			"Student": rec.FullName,
			"Gender":  rec.Gender,
			"Grade":   rec.Grade,
			"Date":    "",
			"Status":  "",
		}
	}
	return export.Dataset{Headers: ExportHeaders, Rows: rows}
}

// IsWorkbook reports whether a file name looks like an Excel workbook.
func IsWorkbook(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
}

var errUnsupported = errors.New("unsupported roster format")

// Read dispatches on the file name extension.
func Read(filename string, r io.Reader) ([]Row, error) {
	lower := strings.ToLower(filename)
	switch {
	case IsWorkbook(lower):
		return ReadXLSX(r, "")
	case strings.HasSuffix(lower, ".csv"), !strings.Contains(lower, "."):
		return ReadCSV(r)
	default:
		return nil, appErrors.Wrap(errUnsupported, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("%s: expected .csv or .xlsx", filename))
	}
}
