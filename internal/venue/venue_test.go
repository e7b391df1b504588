package venue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	require.NoError(t, db.PutVenueRanks(ctx,
		storage.VenueRank{Venue: "ICSE", Rank: "A*"},
		storage.VenueRank{Venue: "Small Workshop", Rank: "C"}))
	c := NewChecker(db, nil)

	tests := []struct {
		name string
		bib  string
		want Result
	}{
		{"ranked A*", "@inproceedings{a, booktitle = {ICSE}}", Pass},
		{"ranked C", "@inproceedings{a, booktitle = {Small Workshop}}", Fail},
		{"unranked", "@article{a, journal = {Journal of Nowhere}}", Unknown},
		{"corr", "@article{a, journal = {CORR}}", Fail},
		{"arxiv", "@article{a, journal = {arXiv preprint}}", Fail},
		{"thesis", "@phdthesis{a, school = {MIT}}", Fail},
		{"no venue", "@misc{a, title = {T}}", Fail},
		{"sentinel", article.NoBibTeX, Fail},
		{"malformed", "@article{a, journal = {ICSE}", Fail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := c.Check(ctx, tt.bib)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Result, v.Reason)
		})
	}

	custom := NewChecker(db, []Rank{RankC})
	v, err := custom.Check(ctx, "@inproceedings{a, booktitle = {Small Workshop}}")
	require.NoError(t, err)
	assert.Equal(t, Pass, v.Result)
}

func TestParseRank(t *testing.T) {
	r, err := ParseRank(" a* ")
	require.NoError(t, err)
	assert.Equal(t, RankAStar, r)

	_, err = ParseRank("Z")
	assert.True(t, eris.Is(err, ErrInvalidRank))
}

type scriptedChooser struct {
	ranks []Rank
	asked []string
}

func (s *scriptedChooser) ChooseRank(_ context.Context, venue string, _, _ int, _ []Suggestion) (Rank, error) {
	s.asked = append(s.asked, venue)
	if len(s.ranks) == 0 {
		return "", ErrAborted
	}
	r := s.ranks[0]
	s.ranks = s.ranks[1:]
	return r, nil
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	require.NoError(t, db.PutVenueRanks(ctx, storage.VenueRank{Venue: "ICSE", Rank: "A*"}))

	recs := []article.Record{
		{BibTeX: "@inproceedings{a, booktitle = {ICSE}}"},
		{BibTeX: "@article{b, journal = {arXiv preprint}}"},
		{BibTeX: "@article{c, journal = {TOSEM}}"},
		{BibTeX: "@article{d, journal = {TOSEM}}"},
		{BibTeX: ""},
		{BibTeX: "@book{e, booktitle = {Big Book}}"},
	}
	venues := Collect(recs)
	assert.Equal(t, []string{"ICSE", "TOSEM", "arXiv preprint"}, venues)

	chooser := &scriptedChooser{ranks: []Rank{RankA}}
	res, err := Classify(ctx, db, venues, nil, chooser)
	require.NoError(t, err)
	assert.Equal(t, ClassifyResult{Known: 1, Automatic: 1, Chosen: 1}, res)
	assert.Equal(t, []string{"TOSEM"}, chooser.asked)

	rank, ok, err := db.VenueRank(ctx, "arXiv preprint")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "NA", rank)
}

func TestClassifyAbortKeepsEarlierRanks(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)

	chooser := &scriptedChooser{ranks: []Rank{RankB}}
	_, err := Classify(ctx, db, []string{"First", "Second"}, nil, chooser)
	assert.True(t, eris.Is(err, ErrAborted))

	_, ok, err := db.VenueRank(ctx, "First")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = db.VenueRank(ctx, "Second")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoreTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.csv")
	csv := "acronym,standard_name,rank\n" +
		"ICSE,International Conference on Software Engineering,A*\n" +
		"ASE,Automated Software Engineering Conference,A\n" +
		"PLDI,Programming Language Design and Implementation,A*\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	table, err := LoadCoreTable(path)
	require.NoError(t, err)
	require.Len(t, table.Entries, 3)

	got := table.Suggest("International Conference on Software Engineering", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "ICSE", got[0].Entry.Acronym)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)

	got = table.Suggest("Proceedings of the 2021 (PLDI)", 1)
	assert.Equal(t, "PLDI", got[0].Entry.Acronym)
}

func TestSuggestUnescapesNames(t *testing.T) {
	table := &CoreTable{Entries: []CoreEntry{
		{Acronym: "FPS", Name: "Foundations &amp; Practice of Software", Rank: "B"},
		{Acronym: "ICSE", Name: "International Conference on Software Engineering", Rank: "A*"},
	}}

	got := table.Suggest("Foundations & Practice of Software", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "FPS", got[0].Entry.Acronym)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Less(t, got[1].Score, 1.0)

	got = table.Suggest("Foundations &amp; Practise of Software", 1)
	assert.Equal(t, "FPS", got[0].Entry.Acronym)
	assert.Greater(t, got[0].Score, 0.9)
}

func TestNameRatio(t *testing.T) {
	assert.InDelta(t, 0.75, nameRatio("abcd", "bcde"), 1e-9)
	assert.InDelta(t, 1.0, nameRatio("icse", "icse"), 1e-9)
	assert.InDelta(t, 0.0, nameRatio("abc", "xyz"), 1e-9)
}
