// Package cleaning repairs a loaded table before re-storage: missing-value
// imputation, cell normalization, and CSV re-encoding.
package cleaning

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/dataloom/internal/dataset"
)

// Strategy selects how missing values are handled.
type Strategy string

const (
	// StrategyAuto fills numeric columns with the column median and
	// categorical columns with the mode.
	StrategyAuto Strategy = "auto"
	// StrategyDrop removes every row with at least one missing cell.
	StrategyDrop Strategy = "drop"
	// StrategyFill replaces all missing cells with a caller-supplied constant.
	StrategyFill Strategy = "fill"
)

// ErrFillValueRequired is returned when StrategyFill is used without a value.
var ErrFillValueRequired = errors.New("fill strategy requires a fill value")

// Clean applies the strategy in place and re-runs kind inference, so columns
// that become fully numeric after normalization are reclassified.
func Clean(t *dataset.Table, strategy Strategy, fillValue string) error {
	if t == nil || t.Rows() == 0 {
		return dataset.ErrEmptyTable
	}
	normalize(t)
	switch strategy {
	case StrategyAuto, "":
		imputeAuto(t)
	case StrategyDrop:
		dropMissingRows(t)
	case StrategyFill:
		if fillValue == "" {
			return ErrFillValueRequired
		}
		for i := range t.Columns {
			fillMissing(&t.Columns[i], fillValue)
		}
	default:
		return fmt.Errorf("unsupported strategy: %s", strategy)
	}
	t.ReinferKinds()
	if t.Rows() == 0 {
		return dataset.ErrEmptyTable
	}
	return nil
}

// normalize trims whitespace from every cell.
func normalize(t *dataset.Table) {
	for i := range t.Columns {
		c := &t.Columns[i]
		for j := range c.Cells {
			c.Cells[j] = strings.TrimSpace(c.Cells[j])
		}
	}
}

func imputeAuto(t *dataset.Table) {
	for i := range t.Columns {
		c := &t.Columns[i]
		switch c.Kind {
		case dataset.KindNumeric:
			fillMissing(c, formatFloat(columnMedian(c)))
		default:
			if m, ok := columnMode(c); ok {
				fillMissing(c, m)
			}
		}
	}
}

func fillMissing(c *dataset.Column, value string) {
	for j := range c.Cells {
		if !c.Present[j] {
			c.Cells[j] = value
			c.Present[j] = true
		}
	}
}

func columnMedian(c *dataset.Column) float64 {
	vals := make([]float64, 0, len(c.Cells))
	for j := range c.Cells {
		if c.Present[j] {
			vals = append(vals, c.Numeric[j])
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return (vals[mid-1] + vals[mid]) / 2
	}
	return vals[mid]
}

// columnMode returns the most frequent non-missing value, ties broken by
// first appearance. ok is false when the column has no values at all.
func columnMode(c *dataset.Column) (string, bool) {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	order := 0
	for j := range c.Cells {
		if !c.Present[j] {
			continue
		}
		v := c.Cells[j]
		if _, ok := counts[v]; !ok {
			firstSeen[v] = order
			order++
		}
		counts[v]++
	}
	var mode string
	best := 0
	for v, n := range counts {
		if n > best || (n == best && firstSeen[v] < firstSeen[mode]) {
			best = n
			mode = v
		}
	}
	return mode, best > 0
}

func dropMissingRows(t *dataset.Table) {
	keep := make([]bool, t.Rows())
	kept := 0
	for r := 0; r < t.Rows(); r++ {
		keep[r] = true
		for i := range t.Columns {
			if !t.Columns[i].Present[r] {
				keep[r] = false
				break
			}
		}
		if keep[r] {
			kept++
		}
	}
	for i := range t.Columns {
		c := &t.Columns[i]
		cells := make([]string, 0, kept)
		present := make([]bool, 0, kept)
		for r := range c.Cells {
			if keep[r] {
				cells = append(cells, c.Cells[r])
				present = append(present, c.Present[r])
			}
		}
		c.Cells = cells
		c.Present = present
	}
	t.SetRows(kept)
}

// Encode writes the table back out as CSV with a header row.
func Encode(t *dataset.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, row := range t.Sample(t.Rows()) {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
