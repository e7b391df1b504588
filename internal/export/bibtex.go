package export

import (
	"io"
	"os"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/bibtex"
	"github.com/rotisserie/eris"
)

// BibResult counts what WriteBibTeX did.
type BibResult struct {
	Written     int `json:"written"`
	Synthesized int `json:"synthesized"`
	Skipped     int `json:"skipped"`
}

// BibOptions controls WriteBibTeX.
type BibOptions struct {
	// Synthesize builds an entry from record fields when none was fetched.
	Synthesize bool
	// Existing holds entries already in the target file; records matching
	// one by normalized title are skipped.
	Existing *bibtex.Library
}

// WriteBibTeX concatenates the records' entries. Records with no entry are
// skipped unless Synthesize is set.
func WriteBibTeX(w io.Writer, recs []article.Record, opts BibOptions) (BibResult, error) {
	var res BibResult
	var entries []string
	for _, r := range recs {
		if opts.Existing != nil {
			if _, ok := opts.Existing.Lookup(r.Title); ok {
				res.Skipped++
				continue
			}
		}
		switch {
		case article.StateOf(r.BibTeX) == article.Present:
			entries = append(entries, r.BibTeX)
		case opts.Synthesize:
			entries = append(entries, bibtex.FromRecord(r))
			res.Synthesized++
		default:
			res.Skipped++
			continue
		}
		res.Written++
	}
	return res, bibtex.Write(w, entries)
}

// AppendBibTeXFile adds the records' entries to a .bib file, skipping
// articles the file already holds.
func AppendBibTeXFile(path string, recs []article.Record, synthesize bool) (BibResult, error) {
	lib, err := bibtex.LoadLibrary(path)
	if err != nil {
		return BibResult{}, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return BibResult{}, eris.Wrap(err, "opening bib file")
	}
	if lib.Len() > 0 {
		if _, err := io.WriteString(f, "\n"); err != nil {
			f.Close()
			return BibResult{}, eris.Wrap(err, "writing bib file")
		}
	}
	res, err := WriteBibTeX(f, recs, BibOptions{Synthesize: synthesize, Existing: lib})
	if cerr := f.Close(); err == nil {
		err = eris.Wrap(cerr, "closing bib file")
	}
	return res, err
}
