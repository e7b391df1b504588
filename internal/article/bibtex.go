package article

import "strings"

// NoBibTeX marks a record whose BibTeX could not be obtained from any source.
const NoBibTeX = "NO_BIBTEX"

// BibTeXState describes the fetch state of a record's bibtex field.
type BibTeXState int

const (
	Unfetched BibTeXState = iota
	Missing
	Present
)

func (s BibTeXState) String() string {
	switch s {
	case Missing:
		return "missing"
	case Present:
		return "present"
	}
	return "unfetched"
}

// StateOf classifies a bibtex column value.
func StateOf(bibtex string) BibTeXState {
	switch strings.TrimSpace(bibtex) {
	case "":
		return Unfetched
	case NoBibTeX:
		return Missing
	}
	return Present
}

// BetterBibTeX reports whether replacing old with candidate is an upgrade.
// A fetched entry is never replaced by the sentinel or by an empty string.
func BetterBibTeX(old, candidate string) bool {
	return StateOf(candidate) > StateOf(old)
}
