package docparse

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser renders every sheet as tab-separated rows under a sheet header.
type XLSXParser struct{}

func (XLSXParser) Parse(ctx context.Context, f File) (Content, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(f.Data))
	if err != nil {
		return Content{}, fmt.Errorf("could not open spreadsheet: %w", err)
	}
	defer wb.Close()

	var b strings.Builder
	for _, sheet := range wb.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return Content{}, fmt.Errorf("could not read sheet %q: %w", sheet, err)
		}
		body := renderRows(rows)
		if body == "" {
			continue
		}
		fmt.Fprintf(&b, "--- Sheet: %s ---\n%s\n", sheet, body)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return Content{}, errors.New("spreadsheet is empty")
	}
	return Content{Text: text}, nil
}

// CSVParser renders rows tab-separated. Ragged rows and stray quotes are tolerated.
type CSVParser struct{}

func (CSVParser) Parse(_ context.Context, f File) (Content, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(f.Data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Content{}, fmt.Errorf("could not parse CSV: %w", err)
		}
		rows = append(rows, rec)
	}

	text := renderRows(rows)
	if text == "" {
		return Content{}, errors.New("CSV is empty")
	}
	return Content{Text: text}, nil
}

func renderRows(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		cells := make([]string, len(row))
		empty := true
		for i, c := range row {
			cells[i] = strings.TrimSpace(c)
			if cells[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, "\t"), "\t"))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
