// Package dataset loads delimited tabular data into an in-memory Table with
// per-column type inference. A column is numeric only when every non-missing
// cell parses as a number; anything else makes it categorical.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// Column holds one named column of raw string cells plus its inferred kind.
// Numeric holds the parsed values for numeric columns, aligned with Cells;
// missing cells are NaN-free: Numeric[i] is only valid when Present[i] is true.
type Column struct {
	Name    string
	Kind    Kind
	Cells   []string
	Present []bool // false where the cell is missing
	Numeric []float64
}

// Table is an ordered set of columns with a uniform row count.
type Table struct {
	Columns []Column
	rows    int
}

// Rows returns the number of data rows (header excluded).
func (t *Table) Rows() int { return t.rows }

// Cols returns the number of columns.
func (t *Table) Cols() int { return len(t.Columns) }

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ParseError indicates the input could not be decoded as delimited text.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse table: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ErrEmptyTable indicates the input had no data rows or no columns.
var ErrEmptyTable = errors.New("table has no rows or columns")

// missingTokens are treated as missing values in addition to the empty cell.
// Matches the null markers pandas recognizes, so re-analysis of files produced
// by the previous backend stays consistent.
var missingTokens = map[string]struct{}{
	"na": {}, "n/a": {}, "null": {}, "nan": {},
}

func isMissing(cell string) bool {
	s := strings.TrimSpace(cell)
	if s == "" {
		return true
	}
	_, ok := missingTokens[strings.ToLower(s)]
	return ok
}

// Load reads a CSV stream (header row required, UTF-8) into a Table.
// Returns *ParseError for undecodable input and ErrEmptyTable when no data
// rows or no columns survive parsing.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyTable
		}
		return nil, &ParseError{Err: err}
	}
	ncol := len(header)
	if ncol == 0 {
		return nil, ErrEmptyTable
	}
	for _, h := range header {
		if !utf8.ValidString(h) {
			return nil, &ParseError{Err: errors.New("header is not valid UTF-8")}
		}
	}

	cols := make([]Column, ncol)
	for i, h := range header {
		cols[i] = Column{Name: strings.TrimSpace(h)}
	}

	rows := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &ParseError{Err: fmt.Errorf("row %d: %w", rows+1, err)}
		}
		rows++
		if len(rec) > ncol {
			return nil, &ParseError{Err: fmt.Errorf("row %d: expected %d fields, saw %d", rows, ncol, len(rec))}
		}
		for j := 0; j < ncol; j++ {
			var cell string
			if j < len(rec) {
				cell = strings.TrimSpace(rec[j])
			}
			if !utf8.ValidString(cell) {
				return nil, &ParseError{Err: fmt.Errorf("row %d column %d: invalid UTF-8", rows, j+1)}
			}
			cols[j].Cells = append(cols[j].Cells, cell)
			cols[j].Present = append(cols[j].Present, !isMissing(cell))
		}
	}
	if rows == 0 {
		return nil, ErrEmptyTable
	}

	t := &Table{Columns: cols, rows: rows}
	t.inferKinds()
	return t, nil
}

// inferKinds classifies each column and fills Numeric for numeric columns.
// A column with zero non-missing values is categorical with zero uniques.
func (t *Table) inferKinds() {
	for i := range t.Columns {
		c := &t.Columns[i]
		c.Kind = KindCategorical
		c.Numeric = nil

		nonMissing := 0
		parsed := make([]float64, len(c.Cells))
		allNumeric := true
		for j, cell := range c.Cells {
			if !c.Present[j] {
				continue
			}
			nonMissing++
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				allNumeric = false
				break
			}
			parsed[j] = v
		}
		if nonMissing > 0 && allNumeric {
			c.Kind = KindNumeric
			c.Numeric = parsed
		}
	}
}

// ReinferKinds re-runs type inference, used after cleaning mutates cells.
func (t *Table) ReinferKinds() { t.inferKinds() }

// SetRows records the new row count after an in-place mutation removes rows.
func (t *Table) SetRows(n int) { t.rows = n }

// Sample returns up to n leading rows as raw string records.
func (t *Table) Sample(n int) [][]string {
	if n > t.rows {
		n = t.rows
	}
	out := make([][]string, 0, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(t.Columns))
		for c := range t.Columns {
			row[c] = t.Columns[c].Cells[r]
		}
		out = append(out, row)
	}
	return out
}

// Header returns the column names in order.
func (t *Table) Header() []string {
	h := make([]string, len(t.Columns))
	for i := range t.Columns {
		h[i] = t.Columns[i].Name
	}
	return h
}
