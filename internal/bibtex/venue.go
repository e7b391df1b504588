package bibtex

import "strings"

// nonVenueTypes are entry types that never count as peer-reviewed venues.
var nonVenueTypes = map[string]bool{
	"book":          true,
	"phdthesis":     true,
	"mastersthesis": true,
}

// Venue returns the booktitle of the entry, falling back to the journal.
func (e Entry) Venue() string {
	if v := e.Field("booktitle"); v != "" {
		return v
	}
	return e.Field("journal")
}

// IsThesisOrBook reports whether the entry is a book or a thesis.
func (e Entry) IsThesisOrBook() bool {
	return nonVenueTypes[e.Type]
}

// Venue extracts the venue of the first entry in s. Unparseable input,
// books and theses yield "".
func Venue(s string) string {
	entries, err := Parse(s)
	if err != nil {
		return ""
	}
	if entries[0].IsThesisOrBook() {
		return ""
	}
	return entries[0].Venue()
}

// ValidVenue reports whether v names a real publication venue. Preprint
// servers and scraper placeholders are rejected.
func ValidVenue(v string) bool {
	l := strings.ToLower(strings.TrimSpace(v))
	switch {
	case l == "":
		return false
	case l == "corr", strings.HasPrefix(l, "corr "):
		return false
	case strings.Contains(l, "arxiv"):
		return false
	case l == "no title":
		return false
	}
	return true
}
