package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dataset is a header-ordered table. Rows are keyed by header name; missing
// keys render as empty cells.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter writes datasets as RFC 4180 CSV. With bom set the output opens
// with a UTF-8 byte order mark so spreadsheet tools pick the right charset.
type CSVExporter struct {
	bom bool
}

func NewCSVExporter(bom bool) *CSVExporter {
	return &CSVExporter{bom: bom}
}

// Render buffers the whole document.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the document to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return errors.New("csv export requires at least one header")
	}
	if e.bom {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(data.Headers); err != nil {
		return err
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, h := range data.Headers {
			record[i] = neutralize(row[h])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// neutralize prefixes cells a spreadsheet would evaluate as a formula.
// Signed numbers pass through untouched.
func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '@', '\t', '\r':
		return "'" + cell
	case '+', '-':
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			return cell
		}
		return "'" + cell
	}
	return cell
}
