// File: internal/dataset/dataset.go

// Package dataset parses the uploaded tabular file into ordered rows and
// renders result tables back out as CSV for download.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var (
	// ErrEmptyDataset is returned when the file parses but has no data rows.
	ErrEmptyDataset = errors.New("dataset has no data rows")
	// ErrNoHeader is returned when the file is empty.
	ErrNoHeader = errors.New("dataset has no header row")
)

// Parse reads a CSV document whose first row is the column header and returns
// the ordered rows as column-to-value maps. Quoting irregularities common in
// exported spreadsheets are tolerated via LazyQuotes; inconsistent column
// counts are not, since that is what makes the input tabular.
func Parse(r io.Reader, filename string) (*schemas.Dataset, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	if len(records) == 0 {
		return nil, ErrNoHeader
	}
	if len(records) < 2 {
		return nil, ErrEmptyDataset
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if i == 0 {
			// Spreadsheet exports often lead with a UTF-8 BOM.
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers[i] = h
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			row[h] = record[i]
		}
		rows = append(rows, row)
	}

	return &schemas.Dataset{
		Headers:  headers,
		Rows:     rows,
		Filename: filepath.Base(filename),
	}, nil
}

// WriteCSV renders a result table as CSV with the reference-code column
// appended. Every field is double-quoted with doubled-quote escaping and rows
// end in CRLF, which keeps the output stable for spreadsheet imports
// regardless of field content. encoding/csv only quotes when forced, so the
// quoting is done by hand.
func WriteCSV(w io.Writer, table *schemas.ResultTable) error {
	headers := append(append([]string(nil), table.Headers...), schemas.ReferenceColumn)
	if err := writeRecord(w, headers); err != nil {
		return err
	}

	for _, row := range table.Rows {
		record := make([]string, 0, len(headers))
		for _, h := range table.Headers {
			record = append(record, row.Fields[h])
		}
		record = append(record, row.Reference)
		if err := writeRecord(w, record); err != nil {
			return err
		}
	}
	return nil
}

// DownloadFilename derives the attachment name for a table's CSV export.
func DownloadFilename(table *schemas.ResultTable) string {
	base := strings.TrimSuffix(table.Filename, filepath.Ext(table.Filename))
	if base == "" {
		return "results.csv"
	}
	return base + "_results.csv"
}

func writeRecord(w io.Writer, fields []string) error {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(f, `"`, `""`))
		sb.WriteByte('"')
	}
	sb.WriteString("\r\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
