// Package contacts parses uploaded recipient lists.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EmailColumn is the column every contact file must carry (any case).
const EmailColumn = "email"

// Contact is one row keyed by the original column names.
type Contact map[string]string

// Email returns the recipient address of the row.
func (c Contact) Email() string {
	for k, v := range c {
		if strings.EqualFold(k, EmailColumn) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Sheet is a parsed contact file.
type Sheet struct {
	Columns  []string
	Contacts []Contact
}

// MaxRows caps the number of data rows accepted from a single upload.
const MaxRows = 100_000

// ParseCSV reads a header row followed by data rows. Blank lines are skipped,
// short rows are padded with empty values and long rows are rejected.
func ParseCSV(r io.Reader) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, errors.Join(ErrMalformedFile, err)
	}

	columns, err := normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	sheet := &Sheet{Columns: columns}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Join(ErrMalformedFile, err)
		}
		if blank(rec) {
			continue
		}
		if len(rec) > len(columns) {
			return nil, errors.Join(ErrMalformedFile, fmt.Errorf("line %d has %d fields, header has %d", line, len(rec), len(columns)))
		}
		if len(sheet.Contacts) == MaxRows {
			return nil, ErrTooManyRows
		}
		c := make(Contact, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				c[col] = strings.TrimSpace(rec[i])
			} else {
				c[col] = ""
			}
		}
		sheet.Contacts = append(sheet.Contacts, c)
	}
	return sheet, nil
}

func normalizeHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	hasEmail := false
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, errors.Join(ErrInvalidHeader, fmt.Errorf("column %d has no name", i+1))
		}
		key := strings.ToUpper(h)
		if _, dup := seen[key]; dup {
			return nil, errors.Join(ErrInvalidHeader, fmt.Errorf("duplicate column %q", h))
		}
		seen[key] = struct{}{}
		if strings.EqualFold(h, EmailColumn) {
			hasEmail = true
		}
		columns[i] = h
	}
	if !hasEmail {
		return nil, ErrNoEmailColumn
	}
	return columns, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
