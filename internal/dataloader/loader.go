package dataloader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

const (
	// MaxFileSizeBytes is the upload ceiling (10 MB).
	MaxFileSizeBytes = 10 * 1024 * 1024

	noDataSentinel = "No data loaded."

	sampleCount     = 3
	sampleMaxLength = 30
)

var supportedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xls":  true,
}

// Loader validates uploaded files and parses them into dataframes.
// Schema and Info produce plain-text summaries meant as prompt
// fragments for the planner, not machine-parsed structures.
type Loader struct{}

func New() *Loader {
	return &Loader{}
}

func extension(fileName string) string {
	if idx := strings.LastIndex(fileName, "."); idx >= 0 {
		return strings.ToLower(fileName[idx:])
	}
	return ""
}

// Validate checks name and size before any content is inspected.
func (l *Loader) Validate(fileName string, sizeBytes int64) (bool, string) {
	if sizeBytes > MaxFileSizeBytes {
		return false, "File size exceeds 10MB limit. Please upload a smaller file."
	}
	if !supportedExtensions[extension(fileName)] {
		return false, "Unsupported file type. Please upload a CSV or XLSX file."
	}
	return true, ""
}

// Load parses CSV or Excel content into a dataframe. Failures are
// reported as messages, never panics; a zero-row table counts as a
// failure so downstream code can rely on at least one data row.
func (l *Loader) Load(data []byte, fileName string) (bool, string, *dataframe.DataFrame) {
	var df dataframe.DataFrame

	switch ext := extension(fileName); ext {
	case ".csv":
		df = dataframe.ReadCSV(bytes.NewReader(data))
		if df.Err != nil {
			// gota reports a header-only file as an "empty DataFrame"
			// load error rather than a zero-row table.
			if strings.Contains(df.Err.Error(), "empty DataFrame") {
				return false, "The uploaded file is empty.", nil
			}
			return false, fmt.Sprintf("Error parsing file: %v", df.Err), nil
		}
	case ".xlsx", ".xls":
		records, err := readExcelRecords(data)
		if err != nil {
			return false, fmt.Sprintf("Error parsing file: %v", err), nil
		}
		if len(records) < 2 {
			return false, "The uploaded file is empty.", nil
		}
		df = dataframe.LoadRecords(records)
		if df.Err != nil {
			return false, fmt.Sprintf("Error parsing file: %v", df.Err), nil
		}
	default:
		return false, "Unsupported file format.", nil
	}

	if df.Nrow() == 0 {
		return false, "The uploaded file is empty.", nil
	}

	msg := fmt.Sprintf("Successfully loaded %d rows and %d columns.", df.Nrow(), df.Ncol())
	return true, msg, &df
}

// readExcelRecords extracts the first sheet as header+rows, padding
// short rows so the dataframe loader sees a rectangular table.
func readExcelRecords(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook contains no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	width := len(rows[0])
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row[:width]
	}
	return rows, nil
}

// Schema emits, per column, its name, inferred type, non-null counts
// and up to three sample values in native column order.
func (l *Loader) Schema(df *dataframe.DataFrame) string {
	if df == nil {
		return noDataSentinel
	}

	parts := []string{"COLUMNS AND DATA TYPES:"}
	total := df.Nrow()

	for _, name := range df.Names() {
		col := df.Col(name)

		nonNull := 0
		var samples []string
		for i := 0; i < col.Len(); i++ {
			elem := col.Elem(i)
			if elem.IsNA() {
				continue
			}
			nonNull++
			if len(samples) < sampleCount {
				samples = append(samples, truncate(elem.String(), sampleMaxLength))
			}
		}

		parts = append(parts, fmt.Sprintf("  - %s (%s): %d/%d non-null | Sample: [%s]",
			name, col.Type(), nonNull, total, strings.Join(samples, ", ")))
	}

	return strings.Join(parts, "\n")
}

// Info summarizes row count, column count and the ordered column list.
func (l *Loader) Info(df *dataframe.DataFrame) string {
	if df == nil {
		return noDataSentinel
	}

	return strings.Join([]string{
		fmt.Sprintf("Total Rows: %d", df.Nrow()),
		fmt.Sprintf("Total Columns: %d", df.Ncol()),
		fmt.Sprintf("Column Names: %s", strings.Join(df.Names(), ", ")),
	}, "\n")
}

// truncate caps a sample at max characters, not bytes, so multi-byte
// values are never split mid-rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
