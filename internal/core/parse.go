package core

// parse.go turns raw upload bytes into a string-preserving Table.
//
// No type coercion happens here: every cell is either a string or null.
// Empty cells, and any configured null tokens, become null.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ParseOptions controls how cells are read.
type ParseOptions struct {
	// NullTokens are cell values read as null in addition to "".
	NullTokens []string
}

// ParseCSV parses data into a Table whose first record is the header.
//
// A leading BOM is skipped and input that is not valid UTF-8 is decoded as
// Latin-1. NUL bytes are rejected. Blank header cells are
// named "Unnamed: <index>". A record with more fields than the header is an
// error; a shorter one is padded with nulls.
func ParseCSV(data []byte, opts ParseOptions) (Table, error) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		line := bytes.Count(data[:i], []byte("\n")) + 1
		return Table{}, fmt.Errorf("invalid csv: line %d contains a NUL byte", line)
	}

	var src io.Reader = NewBOMSkippingReader(bytes.NewReader(data))
	if !utf8.Valid(data) {
		src = charmap.ISO8859_1.NewDecoder().Reader(src)
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return Table{}, fmt.Errorf("invalid csv: line %d: %w", perr.Line, perr.Err)
		}
		return Table{}, fmt.Errorf("encoding error: %w", err)
	}
	if len(records) == 0 {
		return Table{}, errors.New("empty file: no header row")
	}

	nulls := make(map[string]bool, len(opts.NullTokens)+1)
	nulls[""] = true
	for _, tok := range opts.NullTokens {
		nulls[tok] = true
	}

	header := records[0]
	body := records[1:]

	t := Table{
		Columns:   make([]Column, len(header)),
		Positions: make([]int, len(body)),
	}
	for ci, name := range header {
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", ci)
		}
		t.Columns[ci] = Column{
			Name:   name,
			Kind:   ColumnString,
			Values: make([]Value, len(body)),
		}
	}

	for ri, rec := range body {
		if len(rec) > len(header) {
			return Table{}, fmt.Errorf("invalid csv: data row %d has %d fields, header has %d",
				ri+1, len(rec), len(header))
		}
		t.Positions[ri] = ri
		for ci := range t.Columns {
			if ci >= len(rec) || nulls[rec[ci]] {
				continue // zero Value is null
			}
			t.Columns[ci].Values[ri] = StringValue(rec[ci])
		}
	}

	return t, nil
}
