package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	csvExtension  = ".csv"
	xlsxExtension = ".xlsx"

	datasetReadErrorFormat        = "read dataset %s: %w"
	unsupportedExtensionFormat    = "unsupported dataset extension %q (want .csv or .xlsx): %s"
	emptyDatasetErrorFormat       = "dataset %s has no rows"
	missingColumnErrorFormat      = "column %q not found in %s; available columns: %s"
	spreadsheetOpenErrorFormat    = "open spreadsheet %s: %w"
	spreadsheetRowsErrorFormat    = "read spreadsheet rows %s: %w"
	csvParseErrorFormat           = "parse csv %s: %w"
	spreadsheetNoSheetErrorFormat = "spreadsheet %s has no sheets"
)

// LoadColumn reads one named column from a CSV or XLSX dataset, dropping
// blank cells. Row order is preserved; the returned slice index plus one is
// the row identifier used in batch request custom ids.
func LoadColumn(fileSystem fsops.FS, path string, columnName string) ([]string, error) {
	extension := strings.ToLower(filepath.Ext(path))
	if extension != csvExtension && extension != xlsxExtension {
		return nil, fmt.Errorf(unsupportedExtensionFormat, filepath.Ext(path), path)
	}

	content, readErr := fileSystem.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf(datasetReadErrorFormat, path, readErr)
	}

	var rows [][]string
	var parseErr error
	switch extension {
	case csvExtension:
		rows, parseErr = csvRows(path, content)
	default:
		rows, parseErr = xlsxRows(path, content)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return selectColumn(path, rows, columnName)
}

func csvRows(path string, content []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf(csvParseErrorFormat, path, err)
	}
	return rows, nil
}

func xlsxRows(path string, content []byte) ([][]string, error) {
	workbook, openErr := excelize.OpenReader(bytes.NewReader(content))
	if openErr != nil {
		return nil, fmt.Errorf(spreadsheetOpenErrorFormat, path, openErr)
	}
	defer func() { _ = workbook.Close() }()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf(spreadsheetNoSheetErrorFormat, path)
	}
	rows, rowsErr := workbook.GetRows(sheets[0])
	if rowsErr != nil {
		return nil, fmt.Errorf(spreadsheetRowsErrorFormat, path, rowsErr)
	}
	return rows, nil
}

func selectColumn(path string, rows [][]string, columnName string) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf(emptyDatasetErrorFormat, path)
	}

	header := rows[0]
	columnIndex := -1
	for index, name := range header {
		if strings.TrimSpace(name) == columnName {
			columnIndex = index
			break
		}
	}
	if columnIndex < 0 {
		available := make([]string, 0, len(header))
		for _, name := range header {
			available = append(available, strings.TrimSpace(name))
		}
		return nil, fmt.Errorf(missingColumnErrorFormat, columnName, path, strings.Join(available, ", "))
	}

	var values []string
	for _, row := range rows[1:] {
		if columnIndex >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[columnIndex])
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values, nil
}
