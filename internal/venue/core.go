package venue

import (
	"html"
	"os"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rotisserie/eris"
)

// CoreEntry is one row of a conference ranking table.
type CoreEntry struct {
	Acronym string `csv:"acronym"`
	Name    string `csv:"standard_name"`
	Rank    string `csv:"rank"`
}

// CoreTable is a reference ranking table used to suggest ranks.
type CoreTable struct {
	Entries []CoreEntry
}

// Suggestion is a table row that resembles a venue.
type Suggestion struct {
	Entry CoreEntry
	Score float64
}

// LoadCoreTable reads a CSV with acronym, standard_name and rank columns.
func LoadCoreTable(path string) (*CoreTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "reading ranking table")
	}
	var entries []CoreEntry
	if err := csvutil.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "parsing %s", path)
	}
	return &CoreTable{Entries: entries}, nil
}

// normalizeName lowercases a venue name and decodes HTML entities such as
// &amp; left over from BibTeX exports.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(html.UnescapeString(s)))
}

// nameRatio is the matching-blocks ratio 2*M/T over the characters of a and b.
func nameRatio(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// Suggest returns up to n rows ordered by similarity to venue. An exact
// acronym or name match scores 1.
func (t *CoreTable) Suggest(venue string, n int) []Suggestion {
	v := normalizeName(venue)
	if v == "" {
		return nil
	}
	out := make([]Suggestion, 0, len(t.Entries))
	for _, e := range t.Entries {
		name := normalizeName(e.Name)
		acr := normalizeName(e.Acronym)
		score := nameRatio(v, name)
		if acr != "" && (v == acr || strings.Contains(v, "("+acr+")") || strings.Contains(v, " "+acr+" ")) {
			score = 1
		}
		if name == v {
			score = 1
		}
		out = append(out, Suggestion{Entry: e, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
