// Package discovery finds candidate records through a search backend and
// grows the record store one snowball iteration at a time.
package discovery

import (
	"context"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/fetch"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
)

// ErrUnsupported is returned by a backend for an operation it cannot serve.
var ErrUnsupported = eris.New("operation not supported by backend")

// Backend is a search service. Backends differ in capability; operations a
// backend lacks return ErrUnsupported.
type Backend interface {
	// Name is the search method recorded on every record the backend finds.
	Name() string
	// Search returns records matching a title query, best match first.
	Search(ctx context.Context, query string) ([]article.Record, error)
	// Snowball returns the records citing or cited by seed.
	Snowball(ctx context.Context, seed article.Record) ([]article.Record, error)
	FetchBibTeX(ctx context.Context, rec article.Record) (string, error)
}

// FileBackend serves candidates exported by an external search tool as
// JSONL. Lines without a seed_id are search results; lines with one are the
// snowball neighbours of that seed.
type FileBackend struct {
	name    string
	results []article.Record
	bySeed  map[string][]article.Record
	byID    map[string]article.Record
}

// LoadFileBackend reads a candidates file. name is used as the search
// method of records that do not carry one.
func LoadFileBackend(name, path string) (*FileBackend, error) {
	cands, err := storage.ReadCandidates(path)
	if err != nil {
		return nil, err
	}
	return NewFileBackend(name, cands), nil
}

// NewFileBackend indexes candidates in memory.
func NewFileBackend(name string, cands []storage.Candidate) *FileBackend {
	b := &FileBackend{
		name:   name,
		bySeed: make(map[string][]article.Record),
		byID:   make(map[string]article.Record),
	}
	for _, c := range cands {
		rec := c.Record
		if rec.SearchMethod == "" {
			rec.SearchMethod = name
		}
		if _, ok := b.byID[rec.ID]; !ok {
			b.byID[rec.ID] = rec
		}
		if c.SeedID == "" {
			b.results = append(b.results, rec)
			continue
		}
		b.bySeed[c.SeedID] = append(b.bySeed[c.SeedID], rec)
	}
	return b
}

func (b *FileBackend) Name() string { return b.name }

// Search matches on the normalized title.
func (b *FileBackend) Search(_ context.Context, query string) ([]article.Record, error) {
	want := article.NormalizeTitle(query)
	var out []article.Record
	for _, r := range b.results {
		if article.NormalizeTitle(r.Title) == want {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *FileBackend) Snowball(_ context.Context, seed article.Record) ([]article.Record, error) {
	return b.bySeed[seed.ID], nil
}

// FetchBibTeX returns the entry exported alongside the candidate, if any.
func (b *FileBackend) FetchBibTeX(_ context.Context, rec article.Record) (string, error) {
	c, ok := b.byID[rec.ID]
	if !ok || article.StateOf(c.BibTeX) != article.Present {
		return "", eris.Wrapf(fetch.ErrNotFound, "%s has no exported bibtex", rec.ID)
	}
	return c.BibTeX, nil
}

// BackendSource adapts a Backend to a fetch.Source.
type BackendSource struct {
	Backend Backend
}

func (s BackendSource) Name() string { return s.Backend.Name() }

func (s BackendSource) FetchBibTeX(ctx context.Context, rec article.Record) (string, error) {
	raw, err := s.Backend.FetchBibTeX(ctx, rec)
	if eris.Is(err, ErrUnsupported) {
		return "", eris.Wrap(fetch.ErrNotFound, err.Error())
	}
	return raw, err
}
