package download

import (
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/matsen/snowball/internal/article"
	"github.com/rotisserie/eris"
)

// titlePages is how many leading pages are searched for the article title.
const titlePages = 2

// ExtractText returns the plain text of the first maxPages pages of a PDF.
// A maxPages of zero or less reads every page. Pages whose text cannot be
// decoded are skipped.
func ExtractText(path string, maxPages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", eris.Errorf("extracting text from %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}
	var b strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// TitleMismatch reports whether the PDF at path has extractable text on its
// first pages that does not contain title. Scanned PDFs with no text layer
// never mismatch.
func TitleMismatch(path, title string) bool {
	text, err := ExtractText(path, titlePages)
	if err != nil || strings.TrimSpace(text) == "" || strings.TrimSpace(title) == "" {
		return false
	}
	return !titleInText(title, text)
}

// titleInText compares on lowercase letters and digits only, since PDF text
// extraction drops or inserts spaces and hyphenation around line breaks.
func titleInText(title, text string) bool {
	return strings.Contains(squash(text), squash(title))
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range article.NormalizeTitle(s) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
