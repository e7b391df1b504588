// Package dedup finds near-identical titles among approved records and
// retires one record of each pair.
package dedup

import (
	"strings"

	"github.com/agext/levenshtein"
	"github.com/matsen/snowball/internal/article"
	"github.com/pmezard/go-difflib/difflib"
)

// Similarity scores two normalized titles in [0, 1].
type Similarity func(a, b string) float64

// DefaultThreshold is the similarity at which two titles are duplicate candidates.
const DefaultThreshold = 0.8

func chars(s string) []string {
	return strings.Split(s, "")
}

// SequenceRatio is the matching-blocks ratio 2*M/T over characters. The
// matcher's result depends on argument order, so both orders are scored and
// the larger kept.
func SequenceRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	ca, cb := chars(a), chars(b)
	ab := difflib.NewMatcher(ca, cb).Ratio()
	ba := difflib.NewMatcher(cb, ca).Ratio()
	if ba > ab {
		return ba
	}
	return ab
}

// LevenshteinRatio is one minus the edit distance over the longer length.
func LevenshteinRatio(a, b string) float64 {
	return levenshtein.Similarity(a, b, nil)
}

// ByName returns a similarity function by name: "sequence" (default) or
// "levenshtein".
func ByName(name string) (Similarity, bool) {
	switch strings.ToLower(name) {
	case "", "sequence", "ratio":
		return SequenceRatio, true
	case "levenshtein", "edit":
		return LevenshteinRatio, true
	}
	return nil, false
}

// TitleSimilarity normalizes both titles and scores them with sim.
func TitleSimilarity(sim Similarity, a, b string) float64 {
	return sim(article.NormalizeTitle(a), article.NormalizeTitle(b))
}
