package dedup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approved(id string, iteration int, title string, citations, year int) article.Record {
	r := article.New(id, iteration, title)
	r.Selected = stage.ContentApproved
	r.NumCitations = citations
	r.PubYear = year
	return r
}

func openStore(t *testing.T, recs ...article.Record) *storage.DB {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InsertRecords(context.Background(), recs))
	return db
}

func TestSequenceRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "graph networks", "graph networks", 1, 1},
		{"trailing period", "efficient graph neural networks", "efficient graph neural networks.", 0.95, 0.99},
		{"unrelated", "program repair", "quantum chemistry", 0, 0.5},
		{"one empty", "", "abc", 0, 0},
		{"both empty", "", "", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SequenceRatio(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
			assert.Equal(t, got, SequenceRatio(tt.b, tt.a), "must be symmetric")
		})
	}
}

func TestLevenshteinRatio(t *testing.T) {
	assert.InDelta(t, 1.0, LevenshteinRatio("abc", "abc"), 1e-9)
	assert.Greater(t, LevenshteinRatio("efficient gnns", "efficient gnns."), 0.9)
	assert.Less(t, LevenshteinRatio("abc", "xyz"), 0.1)

	sim, ok := ByName("levenshtein")
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim("x", "x"), 1e-9)
	_, ok = ByName("cosine")
	assert.False(t, ok)
}

func TestFindCandidatesGreedy(t *testing.T) {
	recs := []article.Record{
		approved("a", 1, "Efficient Graph Neural Networks", 0, 0),
		approved("b", 1, "Efficient Graph Neural Networks.", 0, 0),
		approved("c", 2, "efficient graph neural networks", 0, 0),
		approved("d", 2, "Something Else Entirely", 0, 0),
	}
	pairs := FindCandidates(recs, DefaultThreshold, nil)
	require.Len(t, pairs, 1, "each record joins at most one pair per pass")
	assert.Equal(t, "a", pairs[0].A.ID)
	assert.Equal(t, "b", pairs[0].B.ID)
}

func TestFindCandidatesKeyedByIteration(t *testing.T) {
	// same id in two iterations is two records
	recs := []article.Record{
		approved("a", 1, "Same Title", 0, 0),
		approved("a", 2, "Same Title", 0, 0),
	}
	pairs := FindCandidates(recs, DefaultThreshold, SequenceRatio)
	require.Len(t, pairs, 1)
}

func TestAutoChooser(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		a, b article.Record
		want Choice
	}{
		{"more citations A", approved("a", 1, "T", 10, 2020), approved("b", 1, "T", 3, 2020), KeepA},
		{"more citations B", approved("a", 1, "T", 3, 2022), approved("b", 1, "T", 10, 2020), KeepB},
		{"newer A", approved("a", 1, "T", 5, 2022), approved("b", 1, "T", 5, 2020), KeepA},
		{"newer B", approved("a", 1, "T", 5, 2020), approved("b", 1, "T", 5, 2022), KeepB},
		{"tie keeps B", approved("a", 1, "T", 5, 2020), approved("b", 1, "T", 5, 2020), KeepB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AutoChooser{}.Choose(ctx, Pair{A: tt.a, B: tt.b}, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunTrailingPeriodRetiresExactlyOne(t *testing.T) {
	ctx := context.Background()
	db := openStore(t,
		approved("a", 1, "Efficient Graph Neural Networks", 0, 2020),
		approved("b", 2, "Efficient Graph Neural Networks.", 0, 2020),
	)
	sum, err := Run(ctx, db, nil, DefaultThreshold, SequenceRatio, AutoChooser{}, false)
	require.NoError(t, err)
	assert.True(t, sum.Applied)

	recs, err := db.Records(ctx, storage.Filter{})
	require.NoError(t, err)
	dups, kept := 0, 0
	for _, r := range recs {
		switch r.Selected {
		case stage.Duplicate:
			dups++
			assert.True(t, r.Duplicate)
		case stage.ContentApproved:
			kept++
		}
	}
	assert.Equal(t, 1, dups)
	assert.Equal(t, 1, kept)
}

func TestRunCitationsDecide(t *testing.T) {
	ctx := context.Background()
	db := openStore(t,
		approved("popular", 1, "Neural Program Repair", 10, 2020),
		approved("obscure", 1, "Neural Program Repair", 3, 2021),
	)
	_, err := Run(ctx, db, []int{1}, DefaultThreshold, SequenceRatio, AutoChooser{}, false)
	require.NoError(t, err)

	popular, err := db.Record(ctx, article.Key{ID: "popular", Iteration: 1})
	require.NoError(t, err)
	assert.Equal(t, stage.ContentApproved, popular.Selected)
	assert.False(t, popular.Duplicate)

	obscure, err := db.Record(ctx, article.Key{ID: "obscure", Iteration: 1})
	require.NoError(t, err)
	assert.Equal(t, stage.Duplicate, obscure.Selected)
}

type scriptedChooser []Choice

func (s *scriptedChooser) Choose(context.Context, Pair, int, int) (Choice, error) {
	c := (*s)[0]
	*s = (*s)[1:]
	return c, nil
}

func TestAbortPersistsNothing(t *testing.T) {
	ctx := context.Background()
	db := openStore(t,
		approved("a", 1, "Graph Networks", 0, 0),
		approved("b", 1, "Graph Networks!", 0, 0),
		approved("c", 1, "Type Systems", 0, 0),
		approved("d", 1, "Type Systems.", 0, 0),
	)
	chooser := scriptedChooser{KeepA, Abort}
	_, err := Run(ctx, db, nil, DefaultThreshold, SequenceRatio, &chooser, false)
	assert.True(t, eris.Is(err, ErrAborted))

	recs, err := db.Records(ctx, storage.Filter{Stages: []stage.Stage{stage.Duplicate}})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestKeepBothAndDryRun(t *testing.T) {
	ctx := context.Background()
	db := openStore(t,
		approved("a", 1, "Graph Networks", 0, 0),
		approved("b", 1, "Graph Networks!", 0, 0),
	)
	chooser := scriptedChooser{KeepBoth}
	sum, err := Run(ctx, db, nil, DefaultThreshold, SequenceRatio, &chooser, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Plan.KeptBoth)
	assert.Empty(t, sum.Plan.Remove)

	sum, err = Run(ctx, db, nil, DefaultThreshold, SequenceRatio, AutoChooser{}, true)
	require.NoError(t, err)
	assert.False(t, sum.Applied)
	assert.Len(t, sum.Plan.Remove, 1)
	recs, err := db.Records(ctx, storage.Filter{Stages: []stage.Stage{stage.Duplicate}})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestApplyRefusesUnapproved(t *testing.T) {
	ctx := context.Background()
	r := article.New("x", 1, "T")
	r.Selected = stage.TitleApproved
	db := openStore(t, r)

	err := Apply(ctx, db, Plan{Remove: []article.Key{{ID: "x", Iteration: 1}}})
	assert.True(t, eris.Is(err, ErrNotApproved))
}
