package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed upload.
type Table struct {
	Headers []string
	Rows    []Record
	// Lines holds the file line each row starts on, parallel to Rows.
	Lines []int
}

// Parse reads a CSV upload. Header names are lower-cased and trimmed, ragged
// rows are tolerated and blank rows are dropped without renumbering the rows
// that follow.
func Parse(r io.Reader, filename string) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.Format(apperrors.CodeEmptyFile, filename)
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeFileUnreadable, err.Error()).WithCause(err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = normalizeHeader(h)
	}

	table := &Table{Headers: headers}
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Format(apperrors.CodeFileUnreadable, err.Error()).WithCause(err)
		}
		if blank(fields) {
			continue
		}
		line, _ := reader.FieldPos(0)

		rec := make(Record, len(headers))
		for i, name := range headers {
			if name == "" {
				continue
			}
			if i < len(fields) {
				rec[name] = fields[i]
			} else {
				rec[name] = ""
			}
		}
		table.Rows = append(table.Rows, rec)
		table.Lines = append(table.Lines, line)
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.Format(apperrors.CodeEmptyFile, filename)
	}
	return table, nil
}

// Validate runs ValidateAllRows numbering each row by its file line.
func (t *Table) Validate(hasEmailColumn bool) Result {
	return validateRows(t.Rows, t.Lines, hasEmailColumn)
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
