package discovery

import (
	"context"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoSeeds is returned by Expand when the previous iteration has no
// content-approved records for the backend's search method.
var ErrNoSeeds = eris.New("no content-approved seeds in previous iteration")

// Store is the record store as seen by discovery.
type Store interface {
	Records(ctx context.Context, f storage.Filter) ([]article.Record, error)
	SeenTitle(ctx context.Context, title string) (string, bool, error)
	InsertDiscovered(ctx context.Context, recs []article.Record, seen []storage.SeenTitle) error
}

// SeedResult reports the outcome of Seed.
type SeedResult struct {
	Titles   int      `json:"titles"`
	Inserted int      `json:"inserted"`
	Seen     int      `json:"already_seen"`
	Missing  []string `json:"not_found,omitempty"`
}

// Seed creates iteration 0 from a list of known-relevant titles. Each
// title is looked up through the backend; the best match is stored as
// content-approved and its title marked seen. Titles already in the
// seen-title index are skipped so seeding can be rerun.
func Seed(ctx context.Context, store Store, backend Backend, titles []string) (SeedResult, error) {
	res := SeedResult{Titles: len(titles)}
	var recs []article.Record
	var seen []storage.SeenTitle
	ids := make(map[string]bool)

	for _, title := range titles {
		if article.NormalizeTitle(title) == "" {
			continue
		}
		if _, ok, err := store.SeenTitle(ctx, title); err != nil {
			return res, err
		} else if ok {
			res.Seen++
			continue
		}
		found, err := backend.Search(ctx, title)
		if err != nil {
			return res, eris.Wrapf(err, "searching %q", title)
		}
		if len(found) == 0 {
			zap.L().Warn("seed title not found", zap.String("title", title), zap.String("backend", backend.Name()))
			res.Missing = append(res.Missing, title)
			continue
		}
		rec := fresh(found[0], 0, backend.Name())
		rec.Selected = stage.ContentApproved
		if ids[rec.ID] {
			res.Seen++
			continue
		}
		ids[rec.ID] = true
		recs = append(recs, rec)
		seen = append(seen, storage.SeenTitle{Title: title, ID: rec.ID})
	}

	if err := store.InsertDiscovered(ctx, recs, seen); err != nil {
		return res, eris.Wrap(err, "inserting seed records")
	}
	res.Inserted = len(recs)
	return res, nil
}

// ExpandResult reports the outcome of Expand.
type ExpandResult struct {
	Iteration  int `json:"iteration"`
	Seeds      int `json:"seeds"`
	Discovered int `json:"discovered"`
	Inserted   int `json:"inserted"`
	Suppressed int `json:"suppressed"`
}

// Expand runs one snowball iteration. Every content-approved record of the
// previous iteration found by the backend's search method is used as a
// seed. Neighbours whose title was seen before, in any iteration or earlier
// in this run, are dropped. Each seed's new records and their titles are
// committed together.
func Expand(ctx context.Context, store Store, backend Backend, iteration int) (ExpandResult, error) {
	res := ExpandResult{Iteration: iteration}
	if iteration < 1 {
		return res, eris.Errorf("iteration %d cannot be expanded, seed iteration 0 instead", iteration)
	}
	seeds, err := store.Records(ctx, storage.Filter{
		Iterations:   []int{iteration - 1},
		Stages:       []stage.Stage{stage.ContentApproved},
		SearchMethod: backend.Name(),
	})
	if err != nil {
		return res, err
	}
	if len(seeds) == 0 {
		return res, eris.Wrapf(ErrNoSeeds, "iteration %d, search method %s", iteration-1, backend.Name())
	}
	res.Seeds = len(seeds)

	existing, err := store.Records(ctx, storage.Iteration(iteration))
	if err != nil {
		return res, err
	}
	ids := make(map[string]bool, len(existing))
	for _, r := range existing {
		ids[r.ID] = true
	}
	titles := make(map[string]bool)

	for _, seed := range seeds {
		found, err := backend.Snowball(ctx, seed)
		if err != nil {
			return res, eris.Wrapf(err, "snowballing from %s", seed.ID)
		}
		res.Discovered += len(found)

		var recs []article.Record
		var seen []storage.SeenTitle
		for _, f := range found {
			norm := article.NormalizeTitle(f.Title)
			if norm == "" || titles[norm] || ids[f.ID] {
				res.Suppressed++
				continue
			}
			_, ok, err := store.SeenTitle(ctx, f.Title)
			if err != nil {
				return res, err
			}
			if ok {
				res.Suppressed++
				continue
			}
			titles[norm] = true
			ids[f.ID] = true
			recs = append(recs, fresh(f, iteration, backend.Name()))
			seen = append(seen, storage.SeenTitle{Title: f.Title, ID: f.ID})
		}
		if len(recs) == 0 {
			continue
		}
		if err := store.InsertDiscovered(ctx, recs, seen); err != nil {
			return res, eris.Wrapf(err, "inserting records found from %s", seed.ID)
		}
		res.Inserted += len(recs)
		zap.L().Info("seed expanded",
			zap.Int("iteration", iteration),
			zap.String("seed", seed.ID),
			zap.Int("found", len(found)),
			zap.Int("new", len(recs)))
	}
	return res, nil
}

// fresh strips review state from a backend record and places it in an
// iteration under the backend's search method.
func fresh(r article.Record, iteration int, method string) article.Record {
	out := article.New(r.ID, iteration, r.Title)
	out.Authors = r.Authors
	out.Venue = r.Venue
	out.PubYear = r.PubYear
	out.PubURL = r.PubURL
	out.EprintURL = r.EprintURL
	out.NumCitations = r.NumCitations
	out.CitedByURL = r.CitedByURL
	out.URLRelated = r.URLRelated
	out.ContainerType = r.ContainerType
	out.Source = r.Source
	out.NewPub = r.NewPub
	out.BibTeX = r.BibTeX
	out.SearchMethod = method
	return out
}
