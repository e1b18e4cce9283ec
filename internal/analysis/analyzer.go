// Package analysis computes descriptive statistics over a loaded dataset:
// per-column numeric or categorical summaries, IQR outlier fences, and
// pairwise-complete Pearson correlations across numeric columns.
package analysis

import (
	"math"
	"sort"

	"github.com/KaramelBytes/dataloom/internal/dataset"
)

// Options controls analysis behavior.
type Options struct {
	// TopValues bounds the categorical frequency table per column.
	TopValues int
	// TopCorrelations bounds the ranked strongest-pair list.
	TopCorrelations int
	// SampleRows determines how many raw rows to carry in the result.
	SampleRows int
}

// DefaultOptions returns the defaults used by the upload pipeline.
func DefaultOptions() Options {
	return Options{TopValues: 10, TopCorrelations: 5, SampleRows: 5}
}

// OutlierSummary reports values outside the 1.5*IQR fences.
type OutlierSummary struct {
	Count      int     `json:"total_outliers"`
	Percentage float64 `json:"percentage_outliers"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// NumericSummary describes a numeric column. Std uses the sample formula
// (n-1 denominator), matching the previous backend; quantiles use linear
// interpolation between order statistics (the R-7 method).
type NumericSummary struct {
	Mean              float64         `json:"mean"`
	Median            float64         `json:"median"`
	Std               float64         `json:"std"`
	Min               float64         `json:"min"`
	Max               float64         `json:"max"`
	Q1                float64         `json:"q1"`
	Q3                float64         `json:"q3"`
	Missing           int             `json:"missing"`
	MissingPercentage float64         `json:"missing_percentage"`
	Outliers          *OutlierSummary `json:"outliers,omitempty"`
}

// CategoryCount is one entry of the top-value frequency table.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CategoricalSummary describes a non-numeric column.
type CategoricalSummary struct {
	UniqueValues      int             `json:"unique_values"`
	TopValues         []CategoryCount `json:"top_values"`
	Missing           int             `json:"missing"`
	MissingPercentage float64         `json:"missing_percentage"`
}

// ColumnSummary is a tagged variant: exactly one of Numeric or Categorical
// is set, discriminated by Kind.
type ColumnSummary struct {
	Name        string              `json:"name"`
	Kind        dataset.Kind        `json:"kind"`
	Numeric     *NumericSummary     `json:"numeric,omitempty"`
	Categorical *CategoricalSummary `json:"categorical,omitempty"`
}

// PairCorrelation is one ranked correlation pair.
type PairCorrelation struct {
	Column1     string  `json:"column1"`
	Column2     string  `json:"column2"`
	Correlation float64 `json:"correlation"`
}

// CorrelationSummary holds the symmetric Pearson matrix over numeric columns
// plus the strongest pairs by |r|.
type CorrelationSummary struct {
	Columns  []string          `json:"columns"`
	Matrix   [][]float64       `json:"correlation_matrix"`
	TopPairs []PairCorrelation `json:"top_correlations"`
}

// Result is the immutable outcome of one analysis run.
type Result struct {
	Filename     string              `json:"filename,omitempty"`
	FileKey      string              `json:"file_key,omitempty"`
	TotalRows    int                 `json:"total_rows"`
	TotalColumns int                 `json:"total_columns"`
	Columns      []ColumnSummary     `json:"columns"`
	Correlations *CorrelationSummary `json:"correlations,omitempty"`
	SampleRows   [][]string          `json:"sample_rows,omitempty"`
	Header       []string            `json:"header,omitempty"`
}

// Column returns the summary for the named column, or nil.
func (r *Result) Column(name string) *ColumnSummary {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i]
		}
	}
	return nil
}

// Analyze transforms a loaded table into a Result. It is a pure function of
// its input: no shared state, safe for concurrent use. A table with fewer
// than two numeric columns yields a partial result without correlations.
func Analyze(t *dataset.Table, opt Options) (*Result, error) {
	if t == nil || t.Rows() == 0 || t.Cols() == 0 {
		return nil, dataset.ErrEmptyTable
	}
	if opt.TopValues <= 0 {
		opt.TopValues = 10
	}
	if opt.TopCorrelations <= 0 {
		opt.TopCorrelations = 5
	}

	res := &Result{
		TotalRows:    t.Rows(),
		TotalColumns: t.Cols(),
		Header:       t.Header(),
	}
	if opt.SampleRows > 0 {
		res.SampleRows = t.Sample(opt.SampleRows)
	}

	var numericIdx []int
	for i := range t.Columns {
		c := &t.Columns[i]
		cs := ColumnSummary{Name: c.Name, Kind: c.Kind}
		switch c.Kind {
		case dataset.KindNumeric:
			cs.Numeric = summarizeNumeric(c, t.Rows())
			numericIdx = append(numericIdx, i)
		default:
			cs.Categorical = summarizeCategorical(c, t.Rows(), opt.TopValues)
		}
		res.Columns = append(res.Columns, cs)
	}

	if len(numericIdx) >= 2 {
		res.Correlations = correlate(t, numericIdx, opt.TopCorrelations)
	}
	return res, nil
}

func summarizeNumeric(c *dataset.Column, totalRows int) *NumericSummary {
	vals := make([]float64, 0, totalRows)
	missing := 0
	for i := range c.Cells {
		if !c.Present[i] {
			missing++
			continue
		}
		vals = append(vals, c.Numeric[i])
	}
	s := &NumericSummary{
		Missing:           missing,
		MissingPercentage: pct(missing, totalRows),
	}
	if len(vals) == 0 {
		return s
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = mean(vals)
	s.Std = sampleStd(vals, s.Mean)
	s.Median = quantile(sorted, 0.5)
	s.Q1 = quantile(sorted, 0.25)
	s.Q3 = quantile(sorted, 0.75)

	iqr := s.Q3 - s.Q1
	lo := s.Q1 - 1.5*iqr
	hi := s.Q3 + 1.5*iqr
	count := 0
	for _, v := range vals {
		if v < lo || v > hi {
			count++
		}
	}
	s.Outliers = &OutlierSummary{
		Count:      count,
		Percentage: pct(count, len(vals)),
		LowerBound: lo,
		UpperBound: hi,
	}
	return s
}

func summarizeCategorical(c *dataset.Column, totalRows, topN int) *CategoricalSummary {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	missing := 0
	order := 0
	for i := range c.Cells {
		if !c.Present[i] {
			missing++
			continue
		}
		v := c.Cells[i]
		if _, ok := counts[v]; !ok {
			firstSeen[v] = order
			order++
		}
		counts[v]++
	}
	tops := make([]CategoryCount, 0, len(counts))
	for v, n := range counts {
		tops = append(tops, CategoryCount{Value: v, Count: n})
	}
	// Descending by count, ties broken by first appearance in the data.
	sort.SliceStable(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return firstSeen[tops[i].Value] < firstSeen[tops[j].Value]
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > topN {
		tops = tops[:topN]
	}
	return &CategoricalSummary{
		UniqueValues:      len(counts),
		TopValues:         tops,
		Missing:           missing,
		MissingPercentage: pct(missing, totalRows),
	}
}

// correlate computes pairwise-complete Pearson correlations: each pair uses
// only the rows where both columns are present.
func correlate(t *dataset.Table, idx []int, topK int) *CorrelationSummary {
	n := len(idx)
	names := make([]string, n)
	for i, ci := range idx {
		names[i] = t.Columns[ci].Name
	}
	mat := make([][]float64, n)
	for i := range mat {
		mat[i] = make([]float64, n)
		mat[i][i] = 1
	}

	var pairs []PairCorrelation
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r := pearson(&t.Columns[idx[a]], &t.Columns[idx[b]])
			mat[a][b] = r
			mat[b][a] = r
			pairs = append(pairs, PairCorrelation{Column1: names[a], Column2: names[b], Correlation: r})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].Correlation) > math.Abs(pairs[j].Correlation)
	})
	if len(pairs) > topK {
		pairs = pairs[:topK]
	}
	return &CorrelationSummary{Columns: names, Matrix: mat, TopPairs: pairs}
}

func pearson(x, y *dataset.Column) float64 {
	var n, sumX, sumY, sumXX, sumYY, sumXY float64
	for i := range x.Cells {
		if !x.Present[i] || !y.Present[i] {
			continue
		}
		a, b := x.Numeric[i], y.Numeric[i]
		n++
		sumX += a
		sumY += b
		sumXX += a * a
		sumYY += b * b
		sumXY += a * b
	}
	if n < 2 {
		return 0
	}
	denom := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if denom == 0 {
		return 0
	}
	r := (n*sumXY - sumX*sumY) / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sampleStd(vals []float64, mu float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// quantile interpolates linearly between order statistics (R-7).
// Input must be sorted ascending.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
