package selection

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/matsen/snowball/internal/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers questions in order and records what it was asked.
type scripted struct {
	answers []Decision
	asked   []Question
	reason  string
}

func (s *scripted) Decide(_ context.Context, q Question) (Decision, error) {
	s.asked = append(s.asked, q)
	if len(s.answers) == 0 {
		return Quit, nil
	}
	d := s.answers[0]
	s.answers = s.answers[1:]
	return d, nil
}

func (s *scripted) Reason(context.Context, Question, Decision) (string, error) {
	return s.reason, nil
}

// countingStore wraps a DB and counts writes.
type countingStore struct {
	*storage.DB
	writes int
	calls  int
}

func (c *countingStore) ApplyBatch(ctx context.Context, updates []storage.Update) error {
	c.calls++
	c.writes += len(updates)
	return c.DB.ApplyBatch(ctx, updates)
}

func setup(t *testing.T, recs ...article.Record) *countingStore {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InsertRecords(context.Background(), recs))
	return &countingStore{DB: db}
}

func load(t *testing.T, s *countingStore, iteration int) []article.Record {
	t.Helper()
	recs, err := s.Records(context.Background(), storage.Iteration(iteration))
	require.NoError(t, err)
	return recs
}

func get(t *testing.T, s *countingStore, id string) article.Record {
	t.Helper()
	r, err := s.Record(context.Background(), article.Key{ID: id, Iteration: 1})
	require.NoError(t, err)
	return *r
}

func atStage(id string, s stage.Stage) article.Record {
	r := article.New(id, 1, "Title "+id)
	r.Selected = s
	return r
}

func TestTitleReview(t *testing.T) {
	ctx := context.Background()
	store := setup(t,
		atStage("a", stage.MetadataApproved),
		atStage("b", stage.MetadataApproved),
		atStage("c", stage.MetadataApproved),
		atStage("d", stage.NotSelected),
	)
	dec := &scripted{answers: []Decision{Yes, No, Skip}, reason: "because"}

	res, err := NewRunner(store).Run(ctx, load(t, store, 1), TitleReview, dec)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Ineligible)
	assert.Len(t, dec.asked, 3)

	a := get(t, store, "a")
	assert.Equal(t, stage.TitleApproved, a.Selected)
	assert.Equal(t, "because", a.TitleReason)

	b := get(t, store, "b")
	assert.Equal(t, stage.MetadataApproved, b.Selected, "rejection never moves the stage")
	assert.True(t, b.TitleFilteredOut)

	c := get(t, store, "c")
	assert.Equal(t, stage.MetadataApproved, c.Selected)
	assert.False(t, c.TitleFilteredOut)
}

func TestRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setup(t,
		atStage("a", stage.MetadataApproved),
		atStage("b", stage.MetadataApproved),
		atStage("c", stage.ContentApproved),
		atStage("d", stage.Duplicate),
	)
	_, err := NewRunner(store).Run(ctx, load(t, store, 1), TitleReview, &scripted{answers: []Decision{Yes, No}})
	require.NoError(t, err)
	before := store.writes

	dec := &scripted{}
	res, err := NewRunner(store).Run(ctx, load(t, store, 1), TitleReview, dec)
	require.NoError(t, err)
	assert.Equal(t, before, store.writes, "second run must not write")
	assert.Empty(t, dec.asked)
	assert.Equal(t, 4, res.AlreadyDecided)
}

func TestQuestionsCountOnlyUndecided(t *testing.T) {
	ctx := context.Background()
	decidedTitle := atStage("done", stage.MetadataApproved)
	decidedTitle.TitleFilteredOut = true
	store := setup(t,
		atStage("a", stage.MetadataApproved),
		decidedTitle,
		atStage("b", stage.MetadataApproved),
		atStage("c", stage.ContentApproved),
		atStage("n", stage.NotSelected),
	)
	dec := &scripted{answers: []Decision{Skip, Skip}}
	_, err := NewRunner(store).Run(ctx, load(t, store, 1), TitleReview, dec)
	require.NoError(t, err)
	require.Len(t, dec.asked, 2)
	for i, q := range dec.asked {
		assert.Equal(t, i+1, q.Index)
		assert.Equal(t, 2, q.Total)
	}
}

func TestQuitFlushesDecidedWork(t *testing.T) {
	ctx := context.Background()
	store := setup(t,
		atStage("a", stage.TitleApproved),
		atStage("b", stage.TitleApproved),
		atStage("c", stage.TitleApproved),
	)
	dec := &scripted{answers: []Decision{Yes, Quit}}

	res, err := NewRunner(store).Run(ctx, load(t, store, 1), AbstractIntroReview, dec)
	require.NoError(t, err)
	assert.True(t, res.Quit)
	assert.Equal(t, stage.AbstractIntroApproved, get(t, store, "a").Selected)
	assert.Equal(t, stage.TitleApproved, get(t, store, "b").Selected)
	assert.Equal(t, stage.TitleApproved, get(t, store, "c").Selected)
}

func TestBatching(t *testing.T) {
	ctx := context.Background()
	var recs []article.Record
	var answers []Decision
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		recs = append(recs, atStage(id, stage.AbstractIntroApproved))
		answers = append(answers, Yes)
	}
	store := setup(t, recs...)

	rn := &Runner{Store: store, BatchSize: 2}
	res, err := rn.Run(ctx, load(t, store, 1), ContentReview, &scripted{answers: answers})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 5, res.Advanced)
}

func TestStageMonotonicUnderReview(t *testing.T) {
	ctx := context.Background()
	store := setup(t,
		atStage("a", stage.MetadataApproved),
		atStage("b", stage.MetadataApproved),
	)
	before := load(t, store, 1)
	_, err := NewRunner(store).Run(ctx, before, TitleReview, &scripted{answers: []Decision{No, Yes}})
	require.NoError(t, err)

	after := load(t, store, 1)
	for i := range before {
		assert.True(t, after[i].Selected.AtLeast(before[i].Selected), after[i].ID)
		require.NoError(t, after[i].Validate())
	}
}

type fixedRanks map[string]string

func (f fixedRanks) VenueRank(_ context.Context, v string) (string, bool, error) {
	r, ok := f[v]
	return r, ok, nil
}

func TestMetadataCorrVenueShortCircuits(t *testing.T) {
	ctx := context.Background()
	rec := article.New("x", 1, "Some Paper")
	rec.BibTeX = "@inproceedings{x, title = {Some Paper}, booktitle = {CORR}}"
	store := setup(t, rec)

	// A decider that is consulted would mean a later check ran.
	dec := &scripted{}
	m := &Metadata{
		Store:  store,
		Venues: venue.NewChecker(fixedRanks{}, nil),
		Checks: MetadataChecks{Venue: true, Year: false},
	}
	res, err := m.Run(ctx, load(t, store, 1), dec)
	require.NoError(t, err)
	assert.Empty(t, dec.asked)
	assert.Equal(t, 1, res.Rejected)

	got := get(t, store, "x")
	assert.True(t, got.VenueFilteredOut)
	assert.False(t, got.YearFilteredOut)
	assert.Equal(t, stage.NotSelected, got.Selected)
}

func TestMetadataFirstFailureOnly(t *testing.T) {
	ctx := context.Background()
	rec := article.New("x", 1, "Old Paper")
	rec.BibTeX = "@article{x, journal = {CoRR}}"
	rec.PubYear = 0 // the year check would have to ask
	store := setup(t, rec)

	dec := &scripted{}
	m := &Metadata{Store: store, Venues: venue.NewChecker(fixedRanks{}, nil), Checks: AllChecks(2018, 0)}
	_, err := m.Run(ctx, load(t, store, 1), dec)
	require.NoError(t, err)
	assert.Empty(t, dec.asked)
	got := get(t, store, "x")
	assert.Equal(t, []article.Flag{article.FlagVenue}, got.SetFlags())
}

func TestMetadataAllPass(t *testing.T) {
	ctx := context.Background()
	good := article.New("good", 1, "Good")
	good.BibTeX = "@inproceedings{g, booktitle = {ICSE}}"
	good.PubYear = 2021
	good.EprintURL = "https://example.org/good.pdf"

	old := article.New("old", 1, "Old")
	old.BibTeX = "@inproceedings{o, booktitle = {ICSE}}"
	old.PubYear = 2010
	old.EprintURL = "https://example.org/old.pdf"

	unranked := article.New("unranked", 1, "Unranked")
	unranked.BibTeX = "@article{u, journal = {Journal of Things}}"
	unranked.PubYear = 2022

	unfetched := article.New("unfetched", 1, "Unfetched")

	store := setup(t, good, old, unranked, unfetched)
	// unranked: venue yes, language yes, download (no eprint) no
	dec := &scripted{answers: []Decision{Yes, Yes, No}}
	m := &Metadata{
		Store:  store,
		Venues: venue.NewChecker(fixedRanks{"ICSE": "A*"}, nil),
		Checks: AllChecks(2018, 2024),
	}
	res, err := m.Run(ctx, load(t, store, 1), dec)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, 2, res.Rejected)
	assert.Equal(t, 1, res.Pending)
	require.Len(t, dec.asked, 3)
	assert.Equal(t, []string{"venue", "language", "download"},
		[]string{dec.asked[0].Check, dec.asked[1].Check, dec.asked[2].Check})

	assert.Equal(t, stage.MetadataApproved, get(t, store, "good").Selected)
	assert.True(t, get(t, store, "old").YearFilteredOut)
	assert.True(t, get(t, store, "unranked").DownloadFilteredOut)
	assert.Equal(t, stage.NotSelected, get(t, store, "unfetched").Selected)
}

func TestMetadataRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	good := article.New("good", 1, "Good")
	good.BibTeX = "@inproceedings{g, booktitle = {ICSE}}"
	good.PubYear = 2021
	good.EprintURL = "https://example.org/good.pdf"

	old := article.New("old", 1, "Old")
	old.BibTeX = "@inproceedings{o, booktitle = {ICSE}}"
	old.PubYear = 2010

	preprint := article.New("pre", 1, "Preprint")
	preprint.BibTeX = "@article{p, journal = {CoRR}}"
	preprint.PubYear = 2021

	store := setup(t, good, old, preprint)
	m := &Metadata{
		Store:  store,
		Venues: venue.NewChecker(fixedRanks{"ICSE": "A*"}, nil),
		Checks: AllChecks(2018, 2024),
	}
	first, err := m.Run(ctx, load(t, store, 1), &scripted{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Advanced)
	assert.Equal(t, 2, first.Rejected)
	before := store.writes

	dec := &scripted{}
	second, err := m.Run(ctx, load(t, store, 1), dec)
	require.NoError(t, err)
	assert.Empty(t, dec.asked)
	assert.Equal(t, 0, second.Writes)
	assert.Equal(t, 3, second.AlreadyDecided)
	assert.Equal(t, before, store.writes, "second run must not write")
}

func TestMetadataLanguageOnlyAsksWithoutBibTeX(t *testing.T) {
	ctx := context.Background()
	store := setup(t, article.New("u", 1, "Unfetched"), article.New("v", 1, "Also Unfetched"))

	dec := &scripted{answers: []Decision{Yes, No}}
	m := &Metadata{Store: store, Checks: MetadataChecks{Language: true}}
	res, err := m.Run(ctx, load(t, store, 1), dec)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pending)
	require.Len(t, dec.asked, 2)
	assert.Equal(t, "language", dec.asked[0].Check)
	assert.Equal(t, 2, dec.asked[1].Total)
	assert.Equal(t, stage.MetadataApproved, get(t, store, "u").Selected)
	assert.True(t, get(t, store, "v").LanguageFilteredOut)

	// with the venue check on, unfetched records wait for their entry
	store = setup(t, article.New("w", 1, "Waiting"))
	m = &Metadata{Store: store, Venues: venue.NewChecker(fixedRanks{}, nil), Checks: MetadataChecks{Venue: true, Language: true}}
	res, err = m.Run(ctx, load(t, store, 1), &scripted{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)
}

type fakeProbe map[string]bool

func (f fakeProbe) Check(_ context.Context, url string) (bool, error) {
	return f[url], nil
}

func TestMetadataDownloadProbe(t *testing.T) {
	ctx := context.Background()
	rec := article.New("p", 1, "Probed")
	rec.EprintURL = "https://example.org/landing"
	store := setup(t, rec)

	dec := &scripted{answers: []Decision{No}}
	m := &Metadata{Store: store, Probe: fakeProbe{}, Checks: MetadataChecks{Download: true}}
	_, err := m.Run(ctx, load(t, store, 1), dec)
	require.NoError(t, err)
	require.Len(t, dec.asked, 1)
	assert.Contains(t, dec.asked[0].Detail, "no pdf")
	assert.True(t, get(t, store, "p").DownloadFilteredOut)
}

func TestReviewFor(t *testing.T) {
	r, err := ReviewFor(stage.ContentApproved)
	require.NoError(t, err)
	assert.Equal(t, article.FlagContent, r.Flag)

	_, err = ReviewFor(stage.MetadataApproved)
	assert.Error(t, err)
}
