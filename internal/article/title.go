package article

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeTitle lowercases and trims a title. It is the key of the seen-title
// index and the input to duplicate detection. A Caser is stateful, so one
// is built per call.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(cases.Lower(language.Und).String(title))
}
