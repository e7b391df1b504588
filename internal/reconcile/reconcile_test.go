package reconcile

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

func rec(id string, s stage.Stage) article.Record {
	r := article.New(id, 1, "Title "+id)
	r.Selected = s
	return r
}

func openStore(t *testing.T, name string, recs ...article.Record) *storage.DB {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InsertRecords(context.Background(), recs))
	return db
}

func stageOf(t *testing.T, db *storage.DB, id string) stage.Stage {
	t.Helper()
	r, err := db.Record(context.Background(), article.Key{ID: id, Iteration: 1})
	require.NoError(t, err)
	return r.Selected
}

type scripted []Resolution

func (s *scripted) Resolve(context.Context, Disagreement, int, int) (Resolution, error) {
	r := (*s)[0]
	*s = (*s)[1:]
	return r, nil
}

func TestDetect(t *testing.T) {
	ctx := context.Background()
	a := openStore(t, "a", rec("x", stage.TitleApproved), rec("y", stage.TitleApproved), rec("z", stage.MetadataApproved))
	b := openStore(t, "b", rec("x", stage.NotSelected), rec("y", stage.TitleApproved), rec("z", stage.MetadataApproved))
	raters := []Rater{{"alice", a}, {"bob", b}}

	ds, err := Detect(ctx, raters, 1, stage.TitleApproved)
	require.NoError(t, err)
	require.Len(t, ds, 1, "agreements are not surfaced")
	d := ds[0]
	assert.Equal(t, "x", d.ID)
	require.Len(t, d.Votes, 2)
	assert.True(t, d.Votes[0].Approved)
	assert.False(t, d.Votes[1].Approved)
	assert.Equal(t, stage.NotSelected, d.Votes[1].Selected)
}

func TestAcceptScenario(t *testing.T) {
	ctx := context.Background()
	a := openStore(t, "a", rec("x", stage.TitleApproved))
	b := openStore(t, "b", rec("x", stage.NotSelected))
	raters := []Rater{{"alice", a}, {"bob", b}}

	chooser := scripted{Accept}
	sum, err := Run(ctx, raters, 1, stage.TitleApproved, &chooser)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Accepted)
	require.Len(t, sum.Outcomes, 1)
	assert.True(t, sum.Outcomes[0].Complete())

	assert.Equal(t, stage.TitleApproved, stageOf(t, a, "x"))
	assert.Equal(t, stage.TitleApproved, stageOf(t, b, "x"))

	log, err := b.Resolutions(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, stage.NotSelected, log[0].Previous)
	assert.Equal(t, sum.Outcomes[0].SagaID, log[0].SagaID)
}

func TestAcceptClearsGuardingFlags(t *testing.T) {
	ctx := context.Background()
	rejected := rec("x", stage.MetadataApproved)
	rejected.TitleFilteredOut = true
	a := openStore(t, "a", rec("x", stage.TitleApproved))
	b := openStore(t, "b", rejected)

	chooser := scripted{Accept}
	_, err := Run(ctx, []Rater{{"a", a}, {"b", b}}, 1, stage.TitleApproved, &chooser)
	require.NoError(t, err)

	got, err := b.Record(ctx, article.Key{ID: "x", Iteration: 1})
	require.NoError(t, err)
	assert.Equal(t, stage.TitleApproved, got.Selected)
	assert.False(t, got.TitleFilteredOut)
	assert.NoError(t, got.Validate())
}

func TestResolutionMergesReasons(t *testing.T) {
	ctx := context.Background()
	kept := rec("x", stage.TitleApproved)
	kept.TitleReason = "relevant"
	dropped := rec("x", stage.MetadataApproved)
	dropped.TitleFilteredOut = true
	dropped.TitleReason = "too narrow"
	a := openStore(t, "a", kept)
	b := openStore(t, "b", dropped)
	c := openStore(t, "c", rec("x", stage.MetadataApproved))

	chooser := scripted{Accept}
	_, err := Run(ctx, []Rater{{"alice", a}, {"bob", b}, {"carol", c}}, 1, stage.TitleApproved, &chooser)
	require.NoError(t, err)

	want := article.Reasons{"alice": "relevant", "bob": "too narrow"}
	for _, db := range []*storage.DB{a, b, c} {
		got, err := db.Record(ctx, article.Key{ID: "x", Iteration: 1})
		require.NoError(t, err)
		assert.Equal(t, want, article.ParseReasons(got.TitleReason))
		assert.Empty(t, got.ContentReason)
	}
}

func TestRejectRollsBackOneStage(t *testing.T) {
	ctx := context.Background()
	a := openStore(t, "a", rec("x", stage.AbstractIntroApproved))
	b := openStore(t, "b", rec("x", stage.TitleApproved))

	chooser := scripted{Reject}
	sum, err := Run(ctx, []Rater{{"a", a}, {"b", b}}, 1, stage.AbstractIntroApproved, &chooser)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Rejected)

	for _, db := range []*storage.DB{a, b} {
		got, err := db.Record(ctx, article.Key{ID: "x", Iteration: 1})
		require.NoError(t, err)
		assert.Equal(t, stage.TitleApproved, got.Selected)
		assert.Empty(t, got.SetFlags(), "rejection during reconciliation sets no flag")
	}
}

func TestConvergence(t *testing.T) {
	ctx := context.Background()
	a := openStore(t, "a", rec("p", stage.TitleApproved), rec("q", stage.MetadataApproved), rec("r", stage.TitleApproved))
	b := openStore(t, "b", rec("p", stage.MetadataApproved), rec("q", stage.TitleApproved), rec("r", stage.MetadataApproved))
	c := openStore(t, "c", rec("p", stage.TitleApproved), rec("q", stage.TitleApproved), rec("r", stage.TitleApproved))
	raters := []Rater{{"a", a}, {"b", b}, {"c", c}}

	chooser := scripted{Accept, Reject, Skip}
	sum, err := Run(ctx, raters, 1, stage.TitleApproved, &chooser)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Disagreements)
	assert.Equal(t, 1, sum.Skipped)

	ds, err := Detect(ctx, raters, 1, stage.TitleApproved)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "r", ds[0].ID, "only the skipped record remains")

	chooser = scripted{Accept}
	_, err = Run(ctx, raters, 1, stage.TitleApproved, &chooser)
	require.NoError(t, err)
	ds, err = Detect(ctx, raters, 1, stage.TitleApproved)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestAbortLeavesQueue(t *testing.T) {
	ctx := context.Background()
	a := openStore(t, "a", rec("x", stage.TitleApproved))
	b := openStore(t, "b", rec("x", stage.NotSelected))
	raters := []Rater{{"a", a}, {"b", b}}

	chooser := scripted{Abort}
	sum, err := Run(ctx, raters, 1, stage.TitleApproved, &chooser)
	assert.True(t, eris.Is(err, ErrAborted))
	assert.True(t, sum.Aborted)

	ds, err := Detect(ctx, raters, 1, stage.TitleApproved)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	a := openStore(t, "a", rec("x", stage.TitleApproved))
	b := openStore(t, "b", rec("other", stage.NotSelected))

	_, err := Detect(ctx, []Rater{{"a", a}}, 1, stage.TitleApproved)
	assert.True(t, eris.Is(err, ErrTooFewRaters))

	_, err = Detect(ctx, []Rater{{"a", a}, {"b", b}}, 1, stage.TitleApproved)
	assert.True(t, eris.Is(err, ErrMissingRecord))

	_, err = Detect(ctx, []Rater{{"a", a}, {"b", b}}, 1, stage.Duplicate)
	assert.True(t, eris.Is(err, ErrStage))
}

// failingStore rejects writes.
type failingStore struct {
	*storage.DB
}

func (failingStore) ApplyBatch(context.Context, []storage.Update) error {
	return eris.New("disk full")
}

func TestPartialApplyIsSurfaced(t *testing.T) {
	ctx := context.Background()
	a := openStore(t, "a", rec("x", stage.TitleApproved))
	b := openStore(t, "b", rec("x", stage.NotSelected))
	raters := []Rater{{"a", a}, {"b", failingStore{b}}}

	chooser := scripted{Accept}
	sum, err := Run(ctx, raters, 1, stage.TitleApproved, &chooser)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPartialApply))
	require.Len(t, sum.Outcomes, 1)
	out := sum.Outcomes[0]
	assert.False(t, out.Complete())
	assert.Equal(t, []string{"a"}, out.Applied)
	assert.Contains(t, out.Failed["b"], "disk full")

	// rerun still shows the dispute
	ds, err := Detect(ctx, []Rater{{"a", a}, {"b", b}}, 1, stage.TitleApproved)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
}
