// Package article defines the candidate publication record tracked through
// the review pipeline.
package article

import (
	"github.com/matsen/snowball/internal/stage"
	"github.com/rotisserie/eris"
)

// Key identifies a record within one store.
type Key struct {
	ID        string `json:"id"`
	Iteration int    `json:"iteration"`
}

// Record is one candidate publication discovered at one iteration.
type Record struct {
	// Identity
	ID        string `json:"id"` // Source-assigned; unique only within (iteration, store)
	Iteration int    `json:"iteration"`

	// Bibliographic
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	Venue         string `json:"venue"`
	PubYear       int    `json:"pub_year"` // 0 if unknown
	PubURL        string `json:"pub_url"`
	EprintURL     string `json:"eprint_url"`
	NumCitations  int    `json:"num_citations"`
	CitedByURL    string `json:"citedby_url"`
	URLRelated    string `json:"url_related,omitempty"`
	ContainerType string `json:"container_type,omitempty"`
	Source        string `json:"source"`
	SearchMethod  string `json:"search_method"`
	NewPub        bool   `json:"new_pub,omitempty"`

	// BibTeX is empty until fetched, NoBibTeX once every source failed.
	BibTeX string `json:"bibtex"`

	// Pipeline
	Selected stage.Stage `json:"selected"`

	YearFilteredOut     bool `json:"year_filtered_out"`
	VenueFilteredOut    bool `json:"venue_filtered_out"`
	TitleFilteredOut    bool `json:"title_filtered_out"`
	AbstractFilteredOut bool `json:"abstract_filtered_out"`
	ContentFilteredOut  bool `json:"content_filtered_out"`
	LanguageFilteredOut bool `json:"language_filtered_out"`
	DownloadFilteredOut bool `json:"download_filtered_out"`

	TitleReason   string `json:"title_reason"`
	ContentReason string `json:"content_reason"`
	Duplicate     bool   `json:"duplicate"`
}

// ErrInvalidRecord is returned by Validate.
var ErrInvalidRecord = eris.New("invalid record")

// Key returns the record's natural key.
func (r *Record) Key() Key {
	return Key{ID: r.ID, Iteration: r.Iteration}
}

// Excluded reports whether any filter flag is set. An excluded record is out
// of the pipeline regardless of its numeric stage.
func (r *Record) Excluded() bool {
	for _, f := range Flags() {
		if r.Flag(f) {
			return true
		}
	}
	return false
}

// Active reports whether the record is still in the pipeline.
func (r *Record) Active() bool {
	return !r.Excluded() && !r.Selected.Terminal()
}

// Validate checks the record invariants that do not need the store.
func (r *Record) Validate() error {
	if r.ID == "" {
		return eris.Wrap(ErrInvalidRecord, "empty id")
	}
	if r.Iteration < 0 {
		return eris.Wrapf(ErrInvalidRecord, "%s: negative iteration %d", r.ID, r.Iteration)
	}
	if !r.Selected.Valid() {
		return eris.Wrapf(ErrInvalidRecord, "%s: unknown stage %d", r.ID, int(r.Selected))
	}
	for _, f := range Flags() {
		if !r.Flag(f) {
			continue
		}
		// A record filtered at a check cannot sit beyond the stage that check guards.
		if r.Selected.Rank() > f.CheckedAt().Rank() && !r.Selected.Terminal() {
			return eris.Wrapf(ErrInvalidRecord, "%s: %s set but stage is %s", r.ID, f, r.Selected)
		}
	}
	if r.Duplicate && r.Selected != stage.Duplicate {
		return eris.Wrapf(ErrInvalidRecord, "%s: duplicate flag set but stage is %s", r.ID, r.Selected)
	}
	return nil
}

// New returns a record with default placeholders for fields a discovery
// source did not supply.
func New(id string, iteration int, title string) Record {
	return Record{
		ID:        id,
		Iteration: iteration,
		Title:     title,
		Selected:  stage.NotSelected,
	}
}
