package bibtex

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/matsen/snowball/internal/article"
	"github.com/rotisserie/eris"
)

// FromRecord synthesizes an entry from the record's own fields, for records
// whose entry could not be fetched.
func FromRecord(r article.Record) string {
	entryType := determineEntryType(r.Venue)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, citeKey(r)))
	if r.Authors != "" {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", escapeLatex(r.Authors)))
	}
	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(r.Title)))
	if r.Venue != "" {
		fieldName := "journal"
		if entryType == "inproceedings" {
			fieldName = "booktitle"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(r.Venue)))
	}
	if r.PubYear > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", r.PubYear))
	}
	if r.PubURL != "" {
		b.WriteString(fmt.Sprintf("  url = {%s},\n", r.PubURL))
	}
	b.WriteString("}\n")
	return b.String()
}

var keyUnsafe = regexp.MustCompile(`[^A-Za-z0-9_:-]+`)

func citeKey(r article.Record) string {
	key := keyUnsafe.ReplaceAllString(r.ID, "")
	if key == "" {
		key = fmt.Sprintf("record%d", r.Iteration)
	}
	return key
}

func determineEntryType(venue string) string {
	v := strings.ToLower(venue)
	if strings.Contains(v, "arxiv") {
		return "article"
	}
	if strings.Contains(v, "proceedings") ||
		strings.Contains(v, "conference") ||
		strings.Contains(v, "workshop") ||
		strings.Contains(v, "symposium") {
		return "inproceedings"
	}
	return "article"
}

func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
	)
	return replacer.Replace(s)
}

// Write concatenates entries separated by blank lines.
func Write(w io.Writer, entries []string) error {
	for i, e := range entries {
		sep := "\n"
		if i == 0 {
			sep = ""
		}
		if _, err := io.WriteString(w, sep+strings.TrimSpace(e)+"\n"); err != nil {
			return eris.Wrap(err, "writing bibtex entry")
		}
	}
	return nil
}
