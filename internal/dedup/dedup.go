package dedup

import (
	"context"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/stage"
	"github.com/matsen/snowball/internal/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAborted is returned when the operator quits; nothing is persisted.
var ErrAborted = eris.New("duplicate resolution aborted")

// ErrNotApproved is returned when a plan would retire a record that is not
// content approved.
var ErrNotApproved = eris.New("only content-approved records can be retired")

// Pair is a duplicate candidate. A precedes B in the pool.
type Pair struct {
	A, B       article.Record
	Similarity float64
}

// FindCandidates pairs records whose titles score at least threshold. The
// pass is greedy: each record joins at most one pair, matched with the first
// later record that qualifies.
func FindCandidates(recs []article.Record, threshold float64, sim Similarity) []Pair {
	if sim == nil {
		sim = SequenceRatio
	}
	norm := make([]string, len(recs))
	for i, r := range recs {
		norm[i] = article.NormalizeTitle(r.Title)
	}

	var pairs []Pair
	processed := make(map[article.Key]bool)
	for i := range recs {
		if processed[recs[i].Key()] {
			continue
		}
		for j := i + 1; j < len(recs); j++ {
			if processed[recs[j].Key()] {
				continue
			}
			s := sim(norm[i], norm[j])
			if s >= threshold {
				pairs = append(pairs, Pair{A: recs[i], B: recs[j], Similarity: s})
				processed[recs[i].Key()] = true
				processed[recs[j].Key()] = true
				break
			}
		}
	}
	return pairs
}

// Choice is the resolution of one pair.
type Choice int

const (
	KeepA Choice = iota
	KeepB
	KeepBoth
	Abort
)

func (c Choice) String() string {
	switch c {
	case KeepA:
		return "keep-a"
	case KeepB:
		return "keep-b"
	case KeepBoth:
		return "keep-both"
	}
	return "abort"
}

// Chooser resolves a pair. Index is 1-based.
type Chooser interface {
	Choose(ctx context.Context, p Pair, index, total int) (Choice, error)
}

// AutoChooser keeps the record with more citations, then the newer one, and
// otherwise keeps B.
type AutoChooser struct{}

// Choose implements Chooser.
func (AutoChooser) Choose(_ context.Context, p Pair, _, _ int) (Choice, error) {
	switch {
	case p.A.NumCitations > p.B.NumCitations:
		return KeepA, nil
	case p.B.NumCitations > p.A.NumCitations:
		return KeepB, nil
	case p.A.PubYear > p.B.PubYear:
		return KeepA, nil
	}
	return KeepB, nil
}

// Plan lists the records to keep and retire.
type Plan struct {
	Keep     []article.Key `json:"keep"`
	Remove   []article.Key `json:"remove"`
	KeptBoth int           `json:"kept_both"`
}

// MakePlan asks chooser about every pair. Abort discards the whole plan.
func MakePlan(ctx context.Context, pairs []Pair, chooser Chooser) (Plan, error) {
	var plan Plan
	for i, p := range pairs {
		c, err := chooser.Choose(ctx, p, i+1, len(pairs))
		if err != nil {
			return Plan{}, err
		}
		switch c {
		case KeepA:
			plan.Keep = append(plan.Keep, p.A.Key())
			plan.Remove = append(plan.Remove, p.B.Key())
		case KeepB:
			plan.Keep = append(plan.Keep, p.B.Key())
			plan.Remove = append(plan.Remove, p.A.Key())
		case KeepBoth:
			plan.KeptBoth++
		default:
			return Plan{}, ErrAborted
		}
		zap.L().Debug("resolved duplicate pair",
			zap.String("a", p.A.ID), zap.String("b", p.B.ID),
			zap.Float64("similarity", p.Similarity), zap.Stringer("choice", c))
	}
	return plan, nil
}

// Store is the record store a plan is applied to.
type Store interface {
	Records(ctx context.Context, f storage.Filter) ([]article.Record, error)
	ApplyBatch(ctx context.Context, updates []storage.Update) error
}

// Apply retires every record in plan.Remove in one transaction. Each must
// still be content approved.
func Apply(ctx context.Context, store Store, plan Plan) error {
	if len(plan.Remove) == 0 {
		return nil
	}
	var updates []storage.Update
	for _, key := range plan.Remove {
		recs, err := store.Records(ctx, storage.Filter{Iterations: []int{key.Iteration}, IDs: []string{key.ID}})
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return eris.Wrapf(storage.ErrNotFound, "record %s at iteration %d", key.ID, key.Iteration)
		}
		if recs[0].Selected != stage.ContentApproved {
			return eris.Wrapf(ErrNotApproved, "%s is %s", key.ID, recs[0].Selected)
		}
		updates = append(updates,
			storage.StageUpdate(key, stage.Duplicate),
			storage.Update{Key: key, Column: "duplicate", Value: true})
	}
	return store.ApplyBatch(ctx, updates)
}

// Summary reports a Run.
type Summary struct {
	Pool    int  `json:"pool"`
	Pairs   int  `json:"pairs"`
	Plan    Plan `json:"plan"`
	Applied bool `json:"applied"`
}

// Run loads the content-approved records of the given iterations (all when
// empty), finds candidates, plans with chooser and applies the plan unless
// dryRun is set.
func Run(ctx context.Context, store Store, iterations []int, threshold float64, sim Similarity, chooser Chooser, dryRun bool) (Summary, error) {
	var sum Summary
	pool, err := store.Records(ctx, storage.Filter{Iterations: iterations, Stages: []stage.Stage{stage.ContentApproved}})
	if err != nil {
		return sum, err
	}
	sum.Pool = len(pool)
	pairs := FindCandidates(pool, threshold, sim)
	sum.Pairs = len(pairs)
	zap.L().Info("duplicate candidates", zap.Int("pool", sum.Pool), zap.Int("pairs", sum.Pairs), zap.Float64("threshold", threshold))

	plan, err := MakePlan(ctx, pairs, chooser)
	if err != nil {
		return sum, err
	}
	sum.Plan = plan
	if dryRun {
		return sum, nil
	}
	if err := Apply(ctx, store, plan); err != nil {
		return sum, err
	}
	sum.Applied = true
	return sum, nil
}
