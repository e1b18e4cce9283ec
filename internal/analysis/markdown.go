package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Markdown renders a compact structured-text summary of the result, used as
// prompt context for the completion service.
func (r *Result) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Filename != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Filename))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.TotalRows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", r.TotalColumns))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Columns {
		switch {
		case c.Numeric != nil:
			n := c.Numeric
			b.WriteString(fmt.Sprintf("- %s: numeric (missing %.1f%%) — min %.4g, q1 %.4g, median %.4g, q3 %.4g, max %.4g, mean %.4g, std %.4g",
				safeName(c.Name), n.MissingPercentage, n.Min, n.Q1, n.Median, n.Q3, n.Max, n.Mean, n.Std))
			if o := n.Outliers; o != nil && o.Count > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d (%.1f%%) outside [%.4g, %.4g]",
					o.Count, o.Percentage, o.LowerBound, o.UpperBound))
			}
			b.WriteString("\n")
		case c.Categorical != nil:
			cat := c.Categorical
			b.WriteString(fmt.Sprintf("- %s: categorical (missing %.1f%%, unique %d)",
				safeName(c.Name), cat.MissingPercentage, cat.UniqueValues))
			if len(cat.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range cat.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
			}
			b.WriteString("\n")
		}
	}

	if r.Correlations != nil && len(r.Correlations.TopPairs) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Correlations.TopPairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", safeName(p.Column1), safeName(p.Column2), p.Correlation))
		}
	}

	if len(r.SampleRows) > 0 && len(r.Header) > 0 {
		b.WriteString("\n[SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, h := range r.Header {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(h))
		}
		b.WriteString(" |\n| ")
		for i := range r.Header {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.SampleRows {
			b.WriteString("| ")
			for i := range r.Header {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				val = truncate(val, 80)
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/")
}

// truncate shortens s to at most max runes, never splitting a multi-byte
// rune mid-sequence.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
