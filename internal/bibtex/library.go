package bibtex

import (
	"context"
	"os"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/fetch"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Library is a local .bib file indexed by normalized title. It serves as a
// fetch source ahead of any network lookup.
type Library struct {
	path    string
	byTitle map[string]string
}

// LoadLibrary parses a .bib file. A missing file yields an empty library.
func LoadLibrary(path string) (*Library, error) {
	lib := &Library{path: path, byTitle: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return nil, eris.Wrap(err, "reading bib library")
	}
	entries, err := Parse(string(data))
	if eris.Is(err, ErrEmpty) {
		return lib, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "parsing %s", path)
	}
	for _, e := range entries {
		title := article.NormalizeTitle(e.Field("title"))
		if title == "" {
			continue
		}
		if _, dup := lib.byTitle[title]; dup {
			zap.L().Debug("duplicate title in bib library", zap.String("key", e.Key))
			continue
		}
		lib.byTitle[title] = e.Raw
	}
	return lib, nil
}

// Len returns the number of indexed entries.
func (l *Library) Len() int { return len(l.byTitle) }

// Lookup returns the raw entry for title.
func (l *Library) Lookup(title string) (string, bool) {
	raw, ok := l.byTitle[article.NormalizeTitle(title)]
	return raw, ok
}

// Name implements fetch.Source.
func (l *Library) Name() string { return "library" }

// FetchBibTeX implements fetch.Source.
func (l *Library) FetchBibTeX(_ context.Context, rec article.Record) (string, error) {
	if raw, ok := l.Lookup(rec.Title); ok {
		return raw, nil
	}
	return "", eris.Wrapf(fetch.ErrNotFound, "%q not in %s", rec.Title, l.path)
}
