// Package reconcile finds records on which independent raters disagree at a
// stage and applies one binding resolution to every rater's store.
package reconcile

import (
	"context"
	"sort"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
)

var (
	// ErrTooFewRaters is returned when fewer than two stores are given.
	ErrTooFewRaters = eris.New("reconciliation needs at least two raters")
	// ErrMissingRecord is returned when a record selected by one rater is
	// absent from another rater's store. Raters must review the same
	// discovered pool.
	ErrMissingRecord = eris.New("record missing from a rater store")
	// ErrStage is returned for stages no rater approves into.
	ErrStage = eris.New("stage cannot be reconciled")
)

// Store is one rater's record store.
type Store interface {
	Records(ctx context.Context, f storage.Filter) ([]article.Record, error)
	ApplyBatch(ctx context.Context, updates []storage.Update) error
	LogResolution(ctx context.Context, e storage.ResolutionEntry) error
}

// Rater names a store.
type Rater struct {
	Name  string
	Store Store
}

// Vote is what one rater's store says about a record.
type Vote struct {
	Rater    string         `json:"rater"`
	Selected stage.Stage    `json:"selected"`
	Approved bool           `json:"approved"`
	Flags    []article.Flag `json:"flags,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// Disagreement is a record whose stage differs between raters.
type Disagreement struct {
	ID        string      `json:"id"`
	Iteration int         `json:"iteration"`
	Stage     stage.Stage `json:"stage"`
	Title     string      `json:"title"`
	PubURL    string      `json:"pub_url"`
	EprintURL string      `json:"eprint_url"`
	Votes     []Vote      `json:"votes"`
}

func checkStage(s stage.Stage) error {
	for _, r := range stage.ReviewStages() {
		if r == s {
			return nil
		}
	}
	return eris.Wrapf(ErrStage, "%s", s)
}

// reasonColumn is the column holding reviewer reasons for s.
func reasonColumn(s stage.Stage) string {
	if s == stage.TitleApproved {
		return "title_reason"
	}
	if s.AtLeast(stage.AbstractIntroApproved) {
		return "content_reason"
	}
	return ""
}

func reasonFor(r *article.Record, s stage.Stage) string {
	switch reasonColumn(s) {
	case "title_reason":
		return r.TitleReason
	case "content_reason":
		return r.ContentReason
	}
	return ""
}

// Detect lists every record that some rater has at exactly s while another
// rater does not. Records on which all raters agree are left out.
func Detect(ctx context.Context, raters []Rater, iteration int, s stage.Stage) ([]Disagreement, error) {
	if len(raters) < 2 {
		return nil, ErrTooFewRaters
	}
	if err := checkStage(s); err != nil {
		return nil, err
	}

	// ids any rater holds at s, in first-seen order
	var ids []string
	seen := make(map[string]bool)
	for _, r := range raters {
		recs, err := r.Store.Records(ctx, storage.Filter{Iterations: []int{iteration}, Stages: []stage.Stage{s}})
		if err != nil {
			return nil, eris.Wrapf(err, "reading rater %s", r.Name)
		}
		for _, rec := range recs {
			if !seen[rec.ID] {
				seen[rec.ID] = true
				ids = append(ids, rec.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	byRater := make([]map[string]article.Record, len(raters))
	for i, r := range raters {
		recs, err := r.Store.Records(ctx, storage.Filter{Iterations: []int{iteration}, IDs: ids})
		if err != nil {
			return nil, eris.Wrapf(err, "reading rater %s", r.Name)
		}
		byRater[i] = make(map[string]article.Record, len(recs))
		for _, rec := range recs {
			byRater[i][rec.ID] = rec
		}
	}

	var out []Disagreement
	for _, id := range ids {
		d := Disagreement{ID: id, Iteration: iteration, Stage: s}
		agree := true
		for i, r := range raters {
			rec, ok := byRater[i][id]
			if !ok {
				return nil, eris.Wrapf(ErrMissingRecord, "%s at iteration %d not in rater %s", id, iteration, r.Name)
			}
			if d.Title == "" {
				d.Title, d.PubURL, d.EprintURL = rec.Title, rec.PubURL, rec.EprintURL
			}
			v := Vote{
				Rater:    r.Name,
				Selected: rec.Selected,
				Approved: rec.Selected == s,
				Flags:    rec.SetFlags(),
				Reason:   reasonFor(&rec, s),
			}
			if !v.Approved {
				agree = false
			}
			d.Votes = append(d.Votes, v)
		}
		if !agree {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
