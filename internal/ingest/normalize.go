// Package ingest implements the spreadsheet reconciliation and load pipeline:
// column-layout normalization, deduplication, embedding enrichment and
// batched upserts into the store.
package ingest

import "strings"

// accent substitutions applied by Normalize. The source data is Spanish;
// full Unicode folding is deliberately out of scope.
var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"ä", "a", "ë", "e", "ï", "i", "ö", "o", "ü", "u",
	"ñ", "n",
)

// Clean trims the text, collapses internal whitespace runs to a single space
// and strips non-breaking spaces. It returns nil for empty cells and for the
// literal "nan" markers that appear in spreadsheet exports.
func Clean(s string) *string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	return &s
}

// Normalize applies Clean, lowercases and replaces accented characters with
// their unaccented ASCII equivalents. Returns nil when Clean does.
func Normalize(s string) *string {
	c := Clean(s)
	if c == nil {
		return nil
	}
	n := accentReplacer.Replace(strings.ToLower(*c))
	return &n
}
