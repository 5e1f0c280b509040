// Package ingest turns uploaded CSV buffers into header-keyed rows.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"sales-portal/domain"
)

// Row maps a header to the cell value of one record. Cells that are empty or
// missing from a short record are omitted.
type Row map[string]string

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads buf as comma separated text whose first record is the header.
// Records shorter than the header omit the missing keys, longer records are
// truncated. Syntax errors such as an unterminated quote fail with
// domain.ErrMalformedInput.
func Parse(buf []byte, filename string) ([]Row, error) {
	buf = bytes.TrimPrefix(buf, utf8BOM)
	if !utf8.Valid(buf) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrMalformedInput, filename)
	}

	r := csv.NewReader(bytes.NewReader(buf))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, malformed(filename, err)
	}
	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}

	rows := []Row{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(filename, err)
		}
		row := make(Row, len(headers))
		for i, v := range rec {
			if i >= len(headers) {
				break
			}
			if headers[i] == "" || v == "" {
				continue
			}
			if _, dup := row[headers[i]]; dup {
				continue
			}
			row[headers[i]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func malformed(filename string, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %s line %d: %v", domain.ErrMalformedInput, filename, perr.StartLine, perr.Err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrMalformedInput, filename, err)
}

// Headers returns the distinct keys present across rows. Keys are collected
// row by row, each row contributing its keys in sorted order.
func Headers(rows []Row) []string {
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		for _, k := range sortedKeys(row) {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Lookup returns the rows whose column matches value. Both the column name
// and the value are compared case-insensitively after trimming.
func Lookup(rows []Row, column, value string) []Row {
	value = strings.TrimSpace(value)
	out := []Row{}
	for _, row := range rows {
		v, ok := Field(row, column)
		if ok && strings.EqualFold(strings.TrimSpace(v), value) {
			out = append(out, row)
		}
	}
	return out
}

// Field returns the first value whose header matches one of names. Headers
// match ignoring case, spaces, underscores and hyphens, so "Product Demand"
// and "product_demand" both match "productDemand".
func Field(row Row, names ...string) (string, bool) {
	if len(row) == 0 {
		return "", false
	}
	for _, name := range names {
		if v, ok := row[name]; ok {
			return strings.TrimSpace(v), true
		}
	}
	for _, name := range names {
		want := normalize(name)
		for _, k := range sortedKeys(row) {
			if normalize(k) == want {
				return strings.TrimSpace(row[k]), true
			}
		}
	}
	return "", false
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
