package selection

import (
	"context"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of decided records committed together.
const DefaultBatchSize = 20

// Review is a human-decided stage.
type Review struct {
	Name         string
	Target       stage.Stage
	Flag         article.Flag
	ReasonColumn string // empty when no reason is collected
	Prompt       string
}

var (
	TitleReview = Review{
		Name:         "title",
		Target:       stage.TitleApproved,
		Flag:         article.FlagTitle,
		ReasonColumn: "title_reason",
		Prompt:       "Do you want to keep this article based on its title?",
	}
	AbstractIntroReview = Review{
		Name:         "abstract",
		Target:       stage.AbstractIntroApproved,
		Flag:         article.FlagAbstract,
		ReasonColumn: "content_reason",
		Prompt:       "Do you want to keep this article based on its abstract and introduction?",
	}
	ContentReview = Review{
		Name:         "content",
		Target:       stage.ContentApproved,
		Flag:         article.FlagContent,
		ReasonColumn: "content_reason",
		Prompt:       "Do you want to keep this article based on its full content?",
	}
)

// ReviewFor returns the review that approves records into target.
func ReviewFor(target stage.Stage) (Review, error) {
	for _, r := range []Review{TitleReview, AbstractIntroReview, ContentReview} {
		if r.Target == target {
			return r, nil
		}
	}
	return Review{}, eris.Errorf("no human review approves into %s", target)
}

// Result counts the outcome of one stage run.
type Result struct {
	Advanced       int  `json:"advanced"`
	Rejected       int  `json:"rejected"`
	Skipped        int  `json:"skipped"`
	AlreadyDecided int  `json:"already_decided"`
	Ineligible     int  `json:"ineligible"`
	Pending        int  `json:"pending,omitempty"`
	Writes         int  `json:"writes"`
	Batches        int  `json:"batches"`
	Quit           bool `json:"quit"`
}

// Runner applies a Review to a set of records.
type Runner struct {
	Store     Store
	BatchSize int
}

// NewRunner returns a Runner with the default batch size.
func NewRunner(store Store) *Runner {
	return &Runner{Store: store, BatchSize: DefaultBatchSize}
}

// decided reports whether a record needs no decision at target: it already
// reached target or was filtered out by flag.
func decided(r *article.Record, target stage.Stage, flag article.Flag) bool {
	return r.Selected.AtLeast(target) || r.Flag(flag)
}

// Run asks decider about every record sitting at the stage before
// review.Target. Records that already reached the target or carry the
// review's flag are passed over without prompting, so rerunning a stage
// writes nothing for them. Decisions are committed every BatchSize records;
// Quit commits what was decided and stops.
func (rn *Runner) Run(ctx context.Context, recs []article.Record, review Review, decider Decider) (Result, error) {
	var res Result
	from, err := review.Target.Previous()
	if err != nil {
		return res, err
	}
	b := newBatcher(rn.Store, rn.BatchSize, review.Name, &res)
	reasoner, _ := decider.(Reasoner)

	var todo []article.Record
	for _, rec := range recs {
		switch {
		case decided(&rec, review.Target, review.Flag):
			res.AlreadyDecided++
		case rec.Selected != from || rec.Excluded():
			res.Ineligible++
		default:
			todo = append(todo, rec)
		}
	}

	for i, rec := range todo {
		if err := ctx.Err(); err != nil {
			return res, b.abort(err)
		}

		q := Question{Record: rec, Check: review.Name, Prompt: review.Prompt, Index: i + 1, Total: len(todo)}
		d, err := decider.Decide(ctx, q)
		if err != nil {
			return res, b.abort(err)
		}

		key := rec.Key()
		var updates []storage.Update
		switch d {
		case Yes:
			updates = append(updates, storage.StageUpdate(key, review.Target))
			res.Advanced++
		case No:
			updates = append(updates, storage.FlagUpdate(key, review.Flag, true))
			res.Rejected++
		case Skip:
			res.Skipped++
			continue
		case Quit:
			res.Quit = true
			return res, b.flush(ctx)
		}

		if reasoner != nil && review.ReasonColumn != "" {
			reason, err := reasoner.Reason(ctx, q, d)
			if err != nil {
				return res, b.abort(err)
			}
			if reason != "" {
				updates = append(updates, storage.Update{Key: key, Column: review.ReasonColumn, Value: reason})
			}
		}
		if err := b.add(ctx, updates...); err != nil {
			return res, err
		}
	}
	return res, b.flush(ctx)
}

// batcher accumulates decided records and commits them in groups.
type batcher struct {
	store   Store
	size    int
	name    string
	res     *Result
	pending []storage.Update
	records int
}

func newBatcher(store Store, size int, name string, res *Result) *batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &batcher{store: store, size: size, name: name, res: res}
}

// add queues the updates for one decided record.
func (b *batcher) add(ctx context.Context, updates ...storage.Update) error {
	if len(updates) == 0 {
		return nil
	}
	b.pending = append(b.pending, updates...)
	b.records++
	if b.records >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.store.ApplyBatch(ctx, b.pending); err != nil {
		return eris.Wrapf(err, "committing %s batch", b.name)
	}
	b.res.Writes += len(b.pending)
	b.res.Batches++
	zap.L().Info("committed batch",
		zap.String("stage", b.name),
		zap.Int("batch", b.res.Batches),
		zap.Int("records", b.records),
		zap.Int("advanced", b.res.Advanced),
		zap.Int("rejected", b.res.Rejected))
	b.pending = b.pending[:0]
	b.records = 0
	return nil
}

// abort commits decided work before returning cause. Context cancellation
// uses a fresh context so the commit still happens.
func (b *batcher) abort(cause error) error {
	if err := b.flush(context.Background()); err != nil {
		return eris.Wrap(err, cause.Error())
	}
	return cause
}
