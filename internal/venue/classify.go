package venue

import (
	"context"
	"sort"
	"strings"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/bibtex"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAborted is returned when the operator stops classification.
var ErrAborted = eris.New("classification aborted")

// Store reads and writes the rank table.
type Store interface {
	RankStore
	PutVenueRanks(ctx context.Context, ranks ...storage.VenueRank) error
}

// RankChooser asks an operator for the rank of a venue. Suggestions come from
// a reference table and may be empty. Returning ErrAborted stops the run;
// ranks chosen so far are kept.
type RankChooser interface {
	ChooseRank(ctx context.Context, venue string, index, total int, suggestions []Suggestion) (Rank, error)
}

// Collect returns the distinct venues named in the records' BibTeX, skipping
// unfetched entries, books and theses.
func Collect(recs []article.Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range recs {
		if article.StateOf(r.BibTeX) != article.Present {
			continue
		}
		v := bibtex.Venue(r.BibTeX)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// preprint reports whether a venue is a preprint server, ranked NA without asking.
func preprint(v string) bool {
	l := strings.ToLower(v)
	return strings.Contains(l, "arxiv") || strings.Contains(l, "ssrn") || l == "corr"
}

// ClassifyResult counts what Classify did.
type ClassifyResult struct {
	Known     int `json:"known"`
	Automatic int `json:"automatic"`
	Chosen    int `json:"chosen"`
}

// Classify ranks every venue not yet in the store. Each rank is persisted as
// soon as it is known.
func Classify(ctx context.Context, store Store, venues []string, table *CoreTable, chooser RankChooser) (ClassifyResult, error) {
	var res ClassifyResult
	var pending []string
	for _, v := range venues {
		_, ok, err := store.VenueRank(ctx, v)
		if err != nil {
			return res, err
		}
		if ok {
			res.Known++
			continue
		}
		if preprint(v) {
			if err := store.PutVenueRanks(ctx, storage.VenueRank{Venue: v, Rank: string(RankNA)}); err != nil {
				return res, err
			}
			res.Automatic++
			continue
		}
		pending = append(pending, v)
	}

	for i, v := range pending {
		var suggestions []Suggestion
		if table != nil {
			suggestions = table.Suggest(v, 3)
		}
		rank, err := chooser.ChooseRank(ctx, v, i+1, len(pending), suggestions)
		if err != nil {
			return res, err
		}
		if err := store.PutVenueRanks(ctx, storage.VenueRank{Venue: v, Rank: string(rank)}); err != nil {
			return res, err
		}
		zap.L().Info("ranked venue", zap.String("venue", v), zap.String("rank", string(rank)))
		res.Chosen++
	}
	return res, nil
}
